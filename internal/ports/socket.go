package ports

import (
	"context"
	"errors"
)

// A decoded inbound frame. The payload stays encoded until Decode is
// called with the event's concrete type.
type Message struct {
	Event   string
	payload []byte
	decode  func([]byte, any) error
}

func NewMessage(event string, payload []byte, decode func([]byte, any) error) Message {
	return Message{Event: event, payload: payload, decode: decode}
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if m.decode == nil {
		return errors.New("message: no decoder")
	}
	if len(m.payload) == 0 {
		return errors.New("message: empty payload")
	}
	return m.decode(m.payload, v)
}

// A bidirectional event connection to the rebroadcast server.
type Conn interface {
	Send(event string, payload any) error
	// Receive blocks until the next frame or a read error. Close unblocks it.
	Receive() (Message, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
