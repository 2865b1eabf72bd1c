// Package notify delivers operator reports. Sinks are opaque to the rest of
// the system: they get a subject, an HTML body and a small structured payload.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raoulx24/rec-pruner/internal/config"
)

type Kind string

const (
	KindWarning     Kind = "warned"
	KindCompletion  Kind = "completed"
	KindVolumeAlert Kind = "volume_error"
)

type Message struct {
	Kind    Kind
	Subject string
	HTML    string
	// Data is published as-is by sinks that carry structured payloads (MQTT).
	Data any
}

// Receipt identifies one delivered message.
type Receipt struct {
	Sink string
	ID   string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) ([]Receipt, error)
}

// NotifyError wraps a delivery failure of one sink.
type NotifyError struct {
	Sink string
	Err  error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify: %s: %v", e.Sink, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

type sink interface {
	name() string
	send(ctx context.Context, msg Message) (Receipt, error)
}

// Multi fans a message out to every sink. A failing sink does not stop the others.
type Multi struct {
	sinks []sink
}

func NewMulti(sinks ...sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Send(ctx context.Context, msg Message) ([]Receipt, error) {
	var (
		receipts []Receipt
		errs     []error
	)
	for _, s := range m.sinks {
		r, err := s.send(ctx, msg)
		if err != nil {
			errs = append(errs, &NotifyError{Sink: s.name(), Err: err})
			continue
		}
		receipts = append(receipts, r)
	}
	return receipts, errors.Join(errs...)
}

// Len reports how many sinks are configured.
func (m *Multi) Len() int { return len(m.sinks) }

// FromConfig builds a Multi from the enabled sinks. The returned close func
// disconnects long-lived clients.
func FromConfig(cfg config.NotifyConfig) (*Multi, func(), error) {
	var sinks []sink
	closeFn := func() {}

	if cfg.SMTP.Enabled {
		sinks = append(sinks, NewSMTP(cfg.SMTP))
	}
	if cfg.MQTT.Enabled {
		m, client, err := DialMQTT(cfg.MQTT)
		if err != nil {
			return nil, closeFn, err
		}
		sinks = append(sinks, m)
		closeFn = func() { client.Disconnect(250) }
	}
	return NewMulti(sinks...), closeFn, nil
}

// Switch forwards to a notifier that can be replaced on config reload.
type Switch struct {
	mu      sync.RWMutex
	current Notifier
	closeFn func()
}

func NewSwitch(n Notifier, closeFn func()) *Switch {
	return &Switch{current: n, closeFn: closeFn}
}

func (s *Switch) Send(ctx context.Context, msg Message) ([]Receipt, error) {
	s.mu.RLock()
	n := s.current
	s.mu.RUnlock()
	return n.Send(ctx, msg)
}

// Replace installs n and releases the previous notifier's resources.
func (s *Switch) Replace(n Notifier, closeFn func()) {
	s.mu.Lock()
	old := s.closeFn
	s.current = n
	s.closeFn = closeFn
	s.mu.Unlock()

	if old != nil {
		old()
	}
}

// Close releases the current notifier.
func (s *Switch) Close() {
	s.Replace(NewMulti(), nil)
}
