package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTransportClosed is returned by Send after Close has been called.
var ErrTransportClosed = errors.New("mail: transport closed")

// Verifier is implemented by mailers that can check connectivity without sending.
type Verifier interface {
	Verify(ctx context.Context) error
}

// MailerFactory builds the underlying mailer on first use.
type MailerFactory func() (Mailer, error)

// Transport owns a lazily constructed mailer. The first Send builds the mailer,
// verifies it when supported and caches it; failures are not cached so a later
// Send retries. Transport is safe for concurrent use.
type Transport struct {
	factory MailerFactory

	mu     sync.Mutex
	mailer Mailer
	closed bool
}

// NewTransport returns a Transport backed by the SMTP settings.
func NewTransport(cfg SMTPSettings) *Transport {
	return NewTransportWithFactory(func() (Mailer, error) {
		return NewSMTPMailer(cfg)
	})
}

// NewTransportWithFactory returns a Transport that builds its mailer through factory.
func NewTransportWithFactory(factory MailerFactory) *Transport {
	return &Transport{factory: factory}
}

// Send delivers msg through the cached mailer, initialising it when needed.
func (t *Transport) Send(ctx context.Context, msg Message) error {
	mailer, err := t.acquire(ctx)
	if err != nil {
		return err
	}
	return mailer.Send(ctx, msg)
}

func (t *Transport) acquire(ctx context.Context) (Mailer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.mailer != nil {
		return t.mailer, nil
	}
	if t.factory == nil {
		return nil, errors.New("mail: transport has no mailer factory")
	}

	mailer, err := t.factory()
	if err != nil {
		return nil, fmt.Errorf("mail: build mailer: %w", err)
	}
	if v, ok := mailer.(Verifier); ok {
		if err := v.Verify(ctx); err != nil {
			if errors.Is(err, ErrSMTPDisabled) {
				return nil, ErrSMTPDisabled
			}
			return nil, fmt.Errorf("mail: verify transport: %w", err)
		}
	}

	t.mailer = mailer
	return mailer, nil
}

// Close drops the cached mailer. Subsequent sends fail with ErrTransportClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.mailer = nil
	return nil
}
