// Package email sends transactional mail through Postmark. A dev sender that
// only logs is provided for environments without Postmark credentials.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/mrz1836/postmark"
)

var (
	ErrInvalidConfig = errors.New("email: invalid config")
	ErrInvalidParams = errors.New("email: invalid send parameters")
	ErrSendFailed    = errors.New("email: failed to send")
)

type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"EMAIL_SENDER" envDefault:"billing@example.com"`
	SupportEmail         string `env:"EMAIL_SUPPORT" envDefault:"support@example.com"`
}

// Enabled reports whether Postmark credentials are configured.
func (c Config) Enabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}

// Sender delivers a single transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To       string
	Subject  string
	BodyHTML string
	Tag      string
}

func (m Message) validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient %q", ErrInvalidParams, m.To)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidParams)
	}
	if m.BodyHTML == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidParams)
	}
	return nil
}

type postmarkSender struct {
	client *postmark.Client
	cfg    Config
}

// NewPostmarkSender validates cfg and returns a Postmark-backed Sender.
func NewPostmarkSender(cfg Config) (Sender, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: postmark tokens are required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("%w: sender %q", ErrInvalidConfig, cfg.SenderEmail)
	}
	if _, err := mail.ParseAddress(cfg.SupportEmail); err != nil {
		return nil, fmt.Errorf("%w: support %q", ErrInvalidConfig, cfg.SupportEmail)
	}

	return &postmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		cfg:    cfg,
	}, nil
}

func (s *postmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.cfg.SenderEmail,
		ReplyTo:    s.cfg.SupportEmail,
		To:         msg.To,
		Subject:    msg.Subject,
		HTMLBody:   msg.BodyHTML,
		Tag:        msg.Tag,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%w: postmark %d %s", ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}

type devSender struct {
	log *slog.Logger
}

// NewDevSender returns a Sender that logs instead of delivering. Used when
// Postmark is not configured.
func NewDevSender(log *slog.Logger) Sender {
	if log == nil {
		log = slog.Default()
	}
	return &devSender{log: log}
}

func (s *devSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "dev email sender: message not delivered",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("tag", msg.Tag),
	)
	return nil
}
