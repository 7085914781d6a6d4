package socket

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatbox/internal/model/chat"
	"github.com/zhouzirui/chatbox/internal/protocol"
	"github.com/zhouzirui/chatbox/internal/service/ai"
	chatservice "github.com/zhouzirui/chatbox/internal/service/chat"
)

type failingResponder struct{}

func (failingResponder) Reply(context.Context, []chat.Message, string) (string, error) {
	return "", errors.New("model unavailable")
}

type slowResponder struct {
	delay time.Duration
}

func (r slowResponder) Reply(ctx context.Context, _ []chat.Message, text string) (string, error) {
	select {
	case <-time.After(r.delay):
		return "slow: " + text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func setupServer(t *testing.T, bot ai.Responder) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	return setupServerWithOptions(t, bot, Options{})
}

func setupServerWithOptions(t *testing.T, bot ai.Responder, opts Options) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	chatSvc, err := chatservice.NewService(chatservice.NewMemoryStore(), 100)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}

	r := chi.NewRouter()
	New(chatSvc, bot, opts, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, chatSvc
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readInbound(t *testing.T, conn *websocket.Conn) protocol.Inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read err: %v", err)
	}
	in, err := protocol.DecodeInbound(frame)
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	return in
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	frame, err := protocol.EncodeOutbound(protocol.UserMessage{Text: text})
	if err != nil {
		t.Fatalf("encode err: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write err: %v", err)
	}
}

func TestSocketSendsHistoryOnConnect(t *testing.T) {
	srv, chatSvc := setupServer(t, ai.EchoResponder{})
	if err := chatSvc.SaveMessage(context.Background(), chat.Message{Text: "old", Sender: chat.SenderBot}); err != nil {
		t.Fatalf("SaveMessage err: %v", err)
	}

	conn := dial(t, srv)
	history, ok := readInbound(t, conn).(protocol.History)
	if !ok {
		t.Fatal("expected chatHistory first")
	}
	if len(history.Messages) != 1 || history.Messages[0].Text != "old" {
		t.Fatalf("unexpected history: %+v", history.Messages)
	}
}

func TestSocketRepliesWithBotMessage(t *testing.T) {
	srv, chatSvc := setupServer(t, ai.EchoResponder{})
	conn := dial(t, srv)
	readInbound(t, conn)

	sendText(t, conn, "hi")
	bot, ok := readInbound(t, conn).(protocol.BotMessage)
	if !ok {
		t.Fatal("expected botMessage")
	}
	if bot.Message.Text != "You said: hi" || bot.Message.Sender != chat.SenderBot || bot.Message.Timestamp == "" {
		t.Fatalf("unexpected reply: %+v", bot.Message)
	}

	transcript, err := chatSvc.LoadTranscript(context.Background())
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 2 || transcript[0].Sender != chat.SenderUser || transcript[1].Sender != chat.SenderBot {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
}

func TestSocketIgnoresBlankMessages(t *testing.T) {
	srv, chatSvc := setupServer(t, ai.EchoResponder{})
	conn := dial(t, srv)
	readInbound(t, conn)

	sendText(t, conn, "   ")
	sendText(t, conn, "real")

	bot := readInbound(t, conn).(protocol.BotMessage)
	if bot.Message.Text != "You said: real" {
		t.Fatalf("blank message should not be answered, got %q", bot.Message.Text)
	}

	transcript, _ := chatSvc.LoadTranscript(context.Background())
	if len(transcript) != 2 {
		t.Fatalf("blank message should not be stored: %+v", transcript)
	}
}

func TestSocketFallsBackWhenResponderFails(t *testing.T) {
	srv, _ := setupServer(t, failingResponder{})
	conn := dial(t, srv)
	readInbound(t, conn)

	sendText(t, conn, "hi")
	bot := readInbound(t, conn).(protocol.BotMessage)
	if bot.Message.Text != fallbackReply {
		t.Fatalf("unexpected fallback: %q", bot.Message.Text)
	}
}

func TestSocketSurvivesReplyLongerThanReadTimeout(t *testing.T) {
	srv, _ := setupServerWithOptions(t, slowResponder{delay: 300 * time.Millisecond}, Options{
		ReadTimeout:  150 * time.Millisecond,
		ReplyTimeout: time.Second,
	})
	conn := dial(t, srv)
	readInbound(t, conn)

	for _, text := range []string{"first", "second"} {
		sendText(t, conn, text)
		bot, ok := readInbound(t, conn).(protocol.BotMessage)
		if !ok {
			t.Fatalf("expected botMessage for %q", text)
		}
		if bot.Message.Text != "slow: "+text {
			t.Fatalf("unexpected reply: %q", bot.Message.Text)
		}
	}
}

func TestOptionsReadTimeoutOutlastsReplyTimeout(t *testing.T) {
	opts := Options{}.withDefaults()
	if opts.ReadTimeout <= opts.ReplyTimeout {
		t.Fatalf("read timeout %v should exceed reply timeout %v", opts.ReadTimeout, opts.ReplyTimeout)
	}
}
