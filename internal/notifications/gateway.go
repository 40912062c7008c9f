package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/vocabquiz/pkg/logger"
	"github.com/charlesng35/vocabquiz/pkg/mail"
	"github.com/charlesng35/vocabquiz/pkg/metrics"
)

// Email kinds used as metric labels.
const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)

// Sender is the mail transport used by the gateway.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithAppName sets the product name used in subjects and bodies.
func WithAppName(name string) Option {
	return func(g *Gateway) {
		if strings.TrimSpace(name) != "" {
			g.appName = strings.TrimSpace(name)
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// Gateway renders and delivers verification and password reset emails.
type Gateway struct {
	sender  Sender
	appName string
	log     *zap.Logger
}

// NewGateway builds a Gateway over sender.
func NewGateway(sender Sender, opts ...Option) (*Gateway, error) {
	if sender == nil {
		return nil, errors.New("notifications: sender is required")
	}

	g := &Gateway{
		sender:  sender,
		appName: "VocabQuiz",
		log:     logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SendVerificationEmail mails an email confirmation link.
func (g *Gateway) SendVerificationEmail(ctx context.Context, to, link, displayName string) error {
	msg := mail.Message{
		To:      []string{to},
		Subject: fmt.Sprintf("Confirm your %s account", g.appName),
		Body:    g.verificationBody(link, displayName),
	}
	return g.deliver(ctx, KindVerification, msg)
}

// SendPasswordResetEmail mails a password reset link.
func (g *Gateway) SendPasswordResetEmail(ctx context.Context, to, link, displayName string) error {
	msg := mail.Message{
		To:      []string{to},
		Subject: fmt.Sprintf("Reset your %s password", g.appName),
		Body:    g.resetBody(link, displayName),
	}
	return g.deliver(ctx, KindPasswordReset, msg)
}

// deliver sends msg. Disabled SMTP is not an error: the recipient is logged and
// the link is dropped.
func (g *Gateway) deliver(ctx context.Context, kind string, msg mail.Message) error {
	err := g.sender.Send(ctx, msg)
	switch {
	case err == nil:
		metrics.EmailsSent.WithLabelValues(kind, "sent").Inc()
		g.log.Info("email sent", zap.String("kind", kind), zap.Strings("to", msg.To))
		return nil
	case errors.Is(err, mail.ErrSMTPDisabled):
		metrics.EmailsSent.WithLabelValues(kind, "disabled").Inc()
		g.log.Info("smtp disabled; email not delivered", zap.String("kind", kind), zap.Strings("to", msg.To))
		return nil
	default:
		metrics.EmailsSent.WithLabelValues(kind, "failed").Inc()
		return fmt.Errorf("notifications: send %s email: %w", kind, err)
	}
}

func (g *Gateway) verificationBody(link, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", greeting(name))
	fmt.Fprintf(&b, "Thanks for signing up for %s. Confirm your email address by opening the link below:\n\n", g.appName)
	b.WriteString(link)
	b.WriteString("\n\nIf you did not create an account you can ignore this message.\n")
	return b.String()
}

func (g *Gateway) resetBody(link, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", greeting(name))
	fmt.Fprintf(&b, "A password reset was requested for your %s account. Choose a new password here:\n\n", g.appName)
	b.WriteString(link)
	b.WriteString("\n\nThe link can be used once. If you did not ask for a reset, no action is needed.\n")
	return b.String()
}

func greeting(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}
