package chat

import (
	"errors"
	"testing"
	"time"
)

func TestSenderValid(t *testing.T) {
	for _, s := range []Sender{SenderUser, SenderBot, SenderSystem} {
		if !s.Valid() {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if Sender("assistant").Valid() {
		t.Fatal("expected unknown sender to be invalid")
	}
}

func TestNewMessageUsesLayout(t *testing.T) {
	at := time.Date(2024, 5, 1, 15, 4, 5, 0, time.Local)

	msg := NewMessage("hi", SenderUser, at, "")
	if msg.Timestamp != "3:04:05 PM" {
		t.Fatalf("unexpected default timestamp: %s", msg.Timestamp)
	}

	msg = NewMessage("hi", SenderUser, at, "15:04")
	if msg.Timestamp != "15:04" {
		t.Fatalf("unexpected custom timestamp: %s", msg.Timestamp)
	}
}

func TestMessageValidate(t *testing.T) {
	if err := (Message{Text: "  ", Sender: SenderUser}).Validate(); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if err := (Message{Text: "hi", Sender: "robot"}).Validate(); !errors.Is(err, ErrInvalidSender) {
		t.Fatalf("expected ErrInvalidSender, got %v", err)
	}
	if err := (Message{Text: "hi", Sender: SenderBot}).Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
