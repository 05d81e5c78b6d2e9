package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Plain   string
}

// Sender delivers a message and reports whether delivery succeeded.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPSender builds a sender from mail settings.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Plain)
	m.AddAlternative("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. It is used
// when no SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email delivery disabled, message logged",
		zap.String("to", strings.Join(msg.To, ",")),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// NewSender picks the SMTP sender when a host is configured.
func NewSender(cfg config.SMTPConfig, logger *zap.Logger) Sender {
	if cfg.Host == "" {
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg)
}
