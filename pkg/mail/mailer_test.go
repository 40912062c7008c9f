package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	from     string
	rcpts    []string
	data     bytes.Buffer
	quit     bool
	closed   bool
	mailErr  error
	quitErr  error
	authUsed smtp.Auth
}

func (c *fakeSMTPClient) Mail(from string) error {
	if c.mailErr != nil {
		return c.mailErr
	}
	c.from = from
	return nil
}

func (c *fakeSMTPClient) Rcpt(to string) error {
	c.rcpts = append(c.rcpts, to)
	return nil
}

func (c *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&c.data}, nil
}

func (c *fakeSMTPClient) Quit() error {
	c.quit = true
	return c.quitErr
}

func (c *fakeSMTPClient) Close() error {
	c.closed = true
	return nil
}

func (c *fakeSMTPClient) StartTLS(*tls.Config) error { return nil }

func (c *fakeSMTPClient) Auth(a smtp.Auth) error {
	c.authUsed = a
	return nil
}

func (c *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func enabledSettings() SMTPSettings {
	return SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	}
}

// newFakeMailer wires an smtpMailer to client through the dial and auth seams.
func newFakeMailer(t *testing.T, cfg SMTPSettings, client *fakeSMTPClient, dialErr, authErr error) *smtpMailer {
	t.Helper()

	mailer, err := NewSMTPMailer(cfg)
	require.NoError(t, err)

	sm, ok := mailer.(*smtpMailer)
	require.True(t, ok)

	sm.dialFn = func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
		if dialErr != nil {
			return nil, nil, dialErr
		}
		server, clientConn := net.Pipe()
		t.Cleanup(func() { _ = server.Close() })
		return clientConn, client, nil
	}
	sm.authFn = func(smtpClient, SMTPSettings) error { return authErr }
	return sm
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.ErrorContains(t, err, "port is required")

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, mailer)
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(enabledSettings())
	require.NoError(t, err)

	sm, ok := mailer.(*smtpMailer)
	require.True(t, ok)
	require.Equal(t, 10*time.Second, sm.cfg.Timeout)
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"test@example.com"}, Subject: "Test", Body: "Hello"})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSMTPMailerSendValidatesAddresses(t *testing.T) {
	client := &fakeSMTPClient{}
	sm := newFakeMailer(t, enabledSettings(), client, nil, nil)

	err := sm.Send(context.Background(), Message{To: []string{"   ", "\t"}})
	require.ErrorContains(t, err, "at least one recipient")

	err = sm.Send(context.Background(), Message{From: "invalid-from", To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "invalid from address")

	err = sm.Send(context.Background(), Message{To: []string{"user@example.com", "bad-address"}})
	require.ErrorContains(t, err, "invalid recipient address")

	cfg := enabledSettings()
	cfg.From = ""
	sm = newFakeMailer(t, cfg, client, nil, nil)
	err = sm.Send(context.Background(), Message{To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "sender address is required")

	require.Empty(t, client.rcpts, "validation failures must not reach the server")
}

func TestSMTPMailerVerify(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
		require.NoError(t, err)
		require.ErrorIs(t, mailer.(*smtpMailer).Verify(context.Background()), ErrSMTPDisabled)
	})

	t.Run("dial error", func(t *testing.T) {
		dialErr := errors.New("connection refused")
		sm := newFakeMailer(t, enabledSettings(), &fakeSMTPClient{}, dialErr, nil)
		require.ErrorIs(t, sm.Verify(context.Background()), dialErr)
	})

	t.Run("auth error", func(t *testing.T) {
		client := &fakeSMTPClient{}
		authErr := errors.New("535 authentication failed")
		sm := newFakeMailer(t, enabledSettings(), client, nil, authErr)

		require.ErrorIs(t, sm.Verify(context.Background()), authErr)
		require.False(t, client.quit)
		require.True(t, client.closed)
	})

	t.Run("success", func(t *testing.T) {
		client := &fakeSMTPClient{}
		sm := newFakeMailer(t, enabledSettings(), client, nil, nil)

		require.NoError(t, sm.Verify(context.Background()))
		require.True(t, client.quit)
		require.True(t, client.closed)
		require.Empty(t, client.from, "verify must not start a transaction")
	})

	t.Run("quit error", func(t *testing.T) {
		quitErr := errors.New("421 closing")
		sm := newFakeMailer(t, enabledSettings(), &fakeSMTPClient{quitErr: quitErr}, nil, nil)
		require.ErrorIs(t, sm.Verify(context.Background()), quitErr)
	})
}

func TestSMTPMailerSendVerificationEmail(t *testing.T) {
	client := &fakeSMTPClient{}
	sm := newFakeMailer(t, enabledSettings(), client, nil, nil)

	link := "http://quiz.test/verify-email?token=abc123"
	err := sm.Send(context.Background(), Message{
		To:      []string{"learner@example.com", "learner@example.com"},
		Subject: "Confirm your VocabQuiz account",
		Body:    "Hello learner,\n\nConfirm your email address by opening the link below:\n\n" + link + "\n",
	})
	require.NoError(t, err)

	require.Equal(t, "no-reply@example.com", client.from)
	require.Equal(t, []string{"learner@example.com"}, client.rcpts)
	require.True(t, client.quit)

	raw := client.data.String()
	headers, body, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found, "headers and body must be separated by a blank line")
	require.Contains(t, headers, "To: learner@example.com")
	require.Contains(t, headers, "Subject: Confirm your VocabQuiz account")
	require.Contains(t, body, link+"\r\n")
	require.NotContains(t, strings.ReplaceAll(body, "\r\n", ""), "\n", "bare LF must not reach the wire")
}

func TestSMTPMailerSendPasswordResetEmail(t *testing.T) {
	client := &fakeSMTPClient{}
	sm := newFakeMailer(t, enabledSettings(), client, nil, nil)

	link := "http://quiz.test/reset-password?token=r3set"
	err := sm.Send(context.Background(), Message{
		From:    "security@example.com",
		To:      []string{"learner@example.com"},
		Subject: "Reset your VocabQuiz password\r\nBcc: victim@example.com",
		Body:    "Hello there,\n\nChoose a new password here:\n\n" + link + "\n",
	})
	require.NoError(t, err)

	require.Equal(t, "security@example.com", client.from)
	raw := client.data.String()
	require.Contains(t, raw, "From: security@example.com\r\n")
	require.Contains(t, raw, "Subject: Reset your VocabQuiz password  Bcc: victim@example.com\r\n")
	require.NotContains(t, raw, "\r\nBcc:")
	require.Contains(t, raw, link)
}

func TestSMTPMailerSendStopsOnMailError(t *testing.T) {
	client := &fakeSMTPClient{mailErr: errors.New("550 rejected")}
	sm := newFakeMailer(t, enabledSettings(), client, nil, nil)

	err := sm.Send(context.Background(), Message{To: []string{"learner@example.com"}})
	require.ErrorContains(t, err, "mail from")
	require.Empty(t, client.rcpts)
	require.False(t, client.quit)
}

func TestUniqueAddresses(t *testing.T) {
	result := uniqueAddresses([]string{"alice@example.com", "bob@example.com", " alice@example.com ", "", "bob@example.com"})
	require.Equal(t, []string{"alice@example.com", "bob@example.com"}, result)
}
