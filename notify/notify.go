// Package notify delivers outbound notifications. Senders are registered per
// Kind once at startup; a Dispatcher routes each message to the sender for its
// kind.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSender is returned when no sender is registered for a kind.
var ErrNoSender = errors.New("no sender registered")

// Kind identifies a notification channel.
type Kind int

const (
	KindEmail Kind = iota + 1
)

func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "email"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sender delivers payloads of one Kind.
type Sender interface {
	Kind() Kind
	Send(ctx context.Context, payload any) error
}

// Dispatcher routes payloads to the Sender registered for their kind.
// It is immutable after construction and safe for concurrent use.
type Dispatcher struct {
	senders map[Kind]Sender
}

// NewDispatcher builds a Dispatcher. Registering two senders for the same
// kind is an error.
func NewDispatcher(senders ...Sender) (*Dispatcher, error) {
	d := &Dispatcher{senders: make(map[Kind]Sender, len(senders))}
	for _, s := range senders {
		if s == nil {
			return nil, errors.New("nil sender")
		}
		if _, dup := d.senders[s.Kind()]; dup {
			return nil, fmt.Errorf("duplicate sender for %s", s.Kind())
		}
		d.senders[s.Kind()] = s
	}
	return d, nil
}

// Dispatch hands payload to the sender registered for kind.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, payload any) error {
	s, ok := d.senders[kind]
	if !ok {
		return fmt.Errorf("%s: %w", kind, ErrNoSender)
	}
	if err := s.Send(ctx, payload); err != nil {
		return fmt.Errorf("sending %s: %w", kind, err)
	}
	return nil
}
