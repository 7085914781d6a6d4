package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatbox/internal/protocol"
)

// ErrClosed is returned by Next once the session has been released.
var ErrClosed = errors.New("session closed")

// Transport is the connection a Session owns for its whole lifetime.
type Transport interface {
	Events() <-chan protocol.Inbound
	Emit(out protocol.Outbound) error
	Close() error
}

// Option customises a Session.
type Option func(*Session)

// WithClock overrides the time source used to stamp local entries.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.log = logger.With().Str("component", "session").Logger() }
}

// WithTimeLayout sets the layout used for locally created timestamps.
func WithTimeLayout(layout string) Option {
	return func(s *Session) { s.reducer.Layout = layout }
}

// WithOpen starts the widget expanded.
func WithOpen(open bool) Option {
	return func(s *Session) { s.state.Open = open }
}

// Session binds the reducer to a transport. State and Dispatch belong to a
// single event loop; Next may run on another goroutine since it only reads
// from the transport.
type Session struct {
	transport Transport
	reducer   Reducer
	state     State
	now       func() time.Time
	log       zerolog.Logger

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New takes ownership of t. Close releases it.
func New(t Transport, opts ...Option) *Session {
	s := &Session{
		transport: t,
		state:     NewState(),
		now:       time.Now,
		log:       zerolog.Nop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Session) State() State {
	return s.state
}

// Dispatch reduces ev into the current state and performs its emissions.
// Emissions are fire-and-forget: a failed send is logged and otherwise ignored.
func (s *Session) Dispatch(ev Event) State {
	next, outs := s.reducer.Reduce(s.state, ev)
	s.state = next
	for _, out := range outs {
		if err := s.transport.Emit(out); err != nil {
			s.log.Warn().Err(err).Msg("emit failed")
		}
	}
	return s.state
}

// Submit commits the draft using the session clock.
func (s *Session) Submit() State {
	return s.Dispatch(SubmitDraft{At: s.now()})
}

// Next blocks until the transport delivers an event and returns it as a
// reducer event. It returns ErrClosed after Close or when the transport
// stream ends.
func (s *Session) Next(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrClosed
		case in, ok := <-s.transport.Events():
			if !ok {
				return nil, ErrClosed
			}
			ev, err := FromInbound(in, s.now())
			if err != nil {
				s.log.Warn().Err(err).Msg("dropping inbound event")
				continue
			}
			if ce, isErr := in.(protocol.ConnectError); isErr {
				s.log.Warn().Err(ce.Err).Msg("connection error")
			}
			return ev, nil
		}
	}
}

// Close unsubscribes from the transport and releases it. Safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.transport.Close()
	})
	return s.closeErr
}
