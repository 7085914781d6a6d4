package socket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatbox/internal/model/chat"
	"github.com/zhouzirui/chatbox/internal/protocol"
	"github.com/zhouzirui/chatbox/internal/service/ai"
	chatservice "github.com/zhouzirui/chatbox/internal/service/chat"
)

// fallbackReply is sent when the responder fails so the widget's typing
// indicator still clears.
const fallbackReply = "Sorry, I could not answer that right now."

// Options tunes connection keepalive and timestamps.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ReplyTimeout time.Duration
	TimeLayout   string
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 90 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = 60 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Handler serves the chat event protocol over websocket.
type Handler struct {
	chatSvc  *chatservice.Service
	bot      ai.Responder
	opts     Options
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service, bot ai.Responder, opts Options, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		bot:     bot,
		opts:    opts.withDefaults(),
		log:     logger.With().Str("component", "socket").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/socket", h.handleSocket)
}

// peer serialises writes; gorilla allows one concurrent writer.
type peer struct {
	conn         *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

func (p *peer) send(in protocol.Inbound) error {
	frame, err := protocol.EncodeInbound(in)
	if err != nil {
		return err
	}
	return p.write(websocket.TextMessage, frame)
}

func (p *peer) write(messageType int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return p.conn.WriteMessage(messageType, data)
}

func (h *Handler) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("conn", uuid.NewString()).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("connected")
	defer log.Info().Msg("disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	p := &peer{conn: conn, writeTimeout: h.opts.WriteTimeout}

	_ = conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.pingLoop(ctx, p)

	history, err := h.chatSvc.LoadTranscript(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load transcript")
		history = []chat.Message{}
	}
	if err := p.send(protocol.History{Messages: history}); err != nil {
		log.Warn().Err(err).Msg("send history")
		return
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))

		out, err := protocol.DecodeOutbound(frame)
		if err != nil {
			log.Warn().Err(err).Msg("dropping frame")
			continue
		}

		switch ev := out.(type) {
		case protocol.UserMessage:
			if err := h.handleUserMessage(ctx, p, ev.Text, log); err != nil {
				log.Warn().Err(err).Msg("send reply")
				return
			}
			// pongs are not read while a reply is generated
			_ = conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		}
	}
}

// handleUserMessage stores the user entry, asks the responder and answers
// with a botMessage. Blank messages are ignored.
func (h *Handler) handleUserMessage(ctx context.Context, p *peer, text string, log zerolog.Logger) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	transcript, err := h.chatSvc.LoadTranscript(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load transcript")
	}

	userMsg := chat.NewMessage(text, chat.SenderUser, h.opts.Now(), h.opts.TimeLayout)
	if err := h.chatSvc.SaveMessage(ctx, userMsg); err != nil {
		log.Error().Err(err).Msg("save user message")
	}

	replyCtx, cancel := context.WithTimeout(ctx, h.opts.ReplyTimeout)
	reply, err := h.bot.Reply(replyCtx, transcript, text)
	cancel()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Error().Err(err).Msg("generate reply")
		reply = fallbackReply
	}

	botMsg := chat.NewMessage(reply, chat.SenderBot, h.opts.Now(), h.opts.TimeLayout)
	if err := h.chatSvc.SaveMessage(ctx, botMsg); err != nil {
		log.Error().Err(err).Msg("save bot message")
	}

	return p.send(protocol.BotMessage{Message: botMsg})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, p *peer) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
