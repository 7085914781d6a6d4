package transport_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/chatbox/internal/model/chat"
	"github.com/zhouzirui/chatbox/internal/protocol"
	"github.com/zhouzirui/chatbox/internal/transport"
)

func historyFrame(text string) []byte {
	frame, _ := protocol.EncodeInbound(protocol.History{Messages: []chat.Message{{Text: text, Sender: chat.SenderBot}}})
	return frame
}

// echoServer greets every connection with a one-entry history and answers
// each user message with a bot message.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		frame, _ := protocol.EncodeInbound(protocol.History{Messages: []chat.Message{{Text: "old", Sender: chat.SenderBot}}})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			out, err := protocol.DecodeOutbound(raw)
			if err != nil {
				continue
			}
			text := out.(protocol.UserMessage).Text
			reply, _ := protocol.EncodeInbound(protocol.BotMessage{Message: chat.Message{Text: "echo: " + text, Sender: chat.SenderBot}})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextEvent(t *testing.T, events <-chan protocol.Inbound) protocol.Inbound {
	t.Helper()
	select {
	case in, ok := <-events:
		require.True(t, ok, "events channel closed")
		return in
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestClientDeliversHistoryAndReplies(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := echoServer(t)
	defer srv.Close()

	client := transport.Dial(context.Background(), transport.DefaultOptions(wsURL(srv)), zerolog.Nop())

	history, ok := nextEvent(t, client.Events()).(protocol.History)
	require.True(t, ok)
	assert.Equal(t, []chat.Message{{Text: "old", Sender: chat.SenderBot}}, history.Messages)

	require.NoError(t, client.Emit(protocol.UserMessage{Text: "hi"}))
	require.NoError(t, client.Emit(protocol.UserMessage{Text: "again"}))

	first := nextEvent(t, client.Events()).(protocol.BotMessage)
	second := nextEvent(t, client.Events()).(protocol.BotMessage)
	assert.Equal(t, "echo: hi", first.Message.Text)
	assert.Equal(t, "echo: again", second.Message.Text)

	require.NoError(t, client.Close())
	_, open := <-client.Events()
	assert.False(t, open, "events channel should be closed after Close")
}

func TestClientReportsDialFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	opts := transport.DefaultOptions(url)
	opts.ReconnectDelay = 10 * time.Millisecond
	opts.MaxRetries = 2

	client := transport.Dial(context.Background(), opts, zerolog.Nop())
	defer client.Close()

	for i := 0; i < 2; i++ {
		ce, ok := nextEvent(t, client.Events()).(protocol.ConnectError)
		require.True(t, ok, "expected ConnectError on attempt %d", i+1)
		assert.Error(t, ce.Err)
	}
}

func TestClientQueuesEmissionsUntilConnected(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := echoServer(t)
	defer srv.Close()

	client := transport.Dial(context.Background(), transport.DefaultOptions(wsURL(srv)), zerolog.Nop())
	defer client.Close()

	// queued before the dial has necessarily completed
	require.NoError(t, client.Emit(protocol.UserMessage{Text: "early"}))

	var replies []string
	for len(replies) < 1 {
		if bot, ok := nextEvent(t, client.Events()).(protocol.BotMessage); ok {
			replies = append(replies, bot.Message.Text)
		}
	}
	assert.Equal(t, []string{"echo: early"}, replies)
}

func TestEmitAfterCloseFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	opts := transport.DefaultOptions(url)
	opts.ReconnectDelay = time.Hour
	client := transport.Dial(context.Background(), opts, zerolog.Nop())

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Emit(protocol.UserMessage{Text: "late"}), transport.ErrClosed)
}

func TestMemoryTransport(t *testing.T) {
	mem := transport.NewMemory(4)

	require.NoError(t, mem.Push(protocol.ConnectError{}))
	require.NoError(t, mem.Emit(protocol.UserMessage{Text: "hi"}))
	assert.Equal(t, protocol.ConnectError{}, <-mem.Events())
	assert.Equal(t, []protocol.Outbound{protocol.UserMessage{Text: "hi"}}, mem.Sent())

	require.NoError(t, mem.Close())
	assert.True(t, mem.Closed())
	assert.ErrorIs(t, mem.Push(protocol.ConnectError{}), transport.ErrClosed)
	assert.ErrorIs(t, mem.Emit(protocol.UserMessage{Text: "x"}), transport.ErrClosed)
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	defer goleak.VerifyNone(t)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := conns.Add(1)
		if err := conn.WriteMessage(websocket.TextMessage, historyFrame(fmt.Sprint(n))); err != nil {
			return
		}
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	opts := transport.DefaultOptions(wsURL(srv))
	opts.ReconnectDelay = 10 * time.Millisecond
	client := transport.Dial(context.Background(), opts, zerolog.Nop())
	defer client.Close()

	first, ok := nextEvent(t, client.Events()).(protocol.History)
	require.True(t, ok)
	assert.Equal(t, "1", first.Messages[0].Text)

	// the drop itself produces no event; the next one is the fresh history
	second, ok := nextEvent(t, client.Events()).(protocol.History)
	require.True(t, ok, "expected History after reconnect")
	assert.Equal(t, "2", second.Messages[0].Text)
}

func TestEmitDropsWhenOutboxFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	opts := transport.DefaultOptions(url)
	opts.ReconnectDelay = time.Hour
	opts.OutboxSize = 1
	client := transport.Dial(context.Background(), opts, zerolog.Nop())
	defer client.Close()

	require.NoError(t, client.Emit(protocol.UserMessage{Text: "queued"}))
	assert.NoError(t, client.Emit(protocol.UserMessage{Text: "dropped"}))
	assert.NoError(t, client.Emit(protocol.UserMessage{Text: "dropped too"}))
}

func TestMemoryPushUnblocksOnClose(t *testing.T) {
	mem := transport.NewMemory(1)
	require.NoError(t, mem.Push(protocol.ConnectError{}))

	blocked := make(chan error, 1)
	go func() { blocked <- mem.Push(protocol.ConnectError{}) }()

	// a full buffer must not hold the lock
	require.NoError(t, mem.Emit(protocol.UserMessage{Text: "hi"}))
	assert.Len(t, mem.Sent(), 1)
	assert.False(t, mem.Closed())

	require.NoError(t, mem.Close())
	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("Push still blocked after Close")
	}
}
