// Package transport owns the real-time connection between the widget and the
// chat endpoint.
package transport

import (
	"errors"

	"github.com/zhouzirui/chatbox/internal/protocol"
)

// ErrClosed is returned when emitting on a released transport.
var ErrClosed = errors.New("transport closed")

// Transport delivers inbound events in order on a single channel and accepts
// fire-and-forget emissions. Close releases every resource and closes the
// events channel.
type Transport interface {
	Events() <-chan protocol.Inbound
	Emit(out protocol.Outbound) error
	Close() error
}
