package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auction-engine/internal/config"
	"auction-engine/pkg/logger"

	"github.com/wneessen/go-mail"
)

// SMTPDispatcher sends plain-text mail through a relay. The context bounds
// both the dial and the SMTP conversation.
type SMTPDispatcher struct {
	host string
	opts []mail.Option
	from string
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPDispatcher(cfg config.SMTPConfig) (*SMTPDispatcher, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	// fail fast on a bad host or port
	if _, err := mail.NewClient(cfg.Host, opts...); err != nil {
		return nil, fmt.Errorf("configure smtp client: %w", err)
	}

	d := &SMTPDispatcher{host: cfg.Host, opts: opts, from: cfg.From}
	d.send = d.dialAndSend
	return d, nil
}

func (d *SMTPDispatcher) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(subject, "\r\n") {
		return errors.New("invalid subject")
	}

	msg, err := d.buildMessage(to, subject, body)
	if err != nil {
		return err
	}
	if err := d.send(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (d *SMTPDispatcher) buildMessage(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(d.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", d.from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// dialAndSend uses a fresh client per message so concurrent workers never
// share a connection.
func (d *SMTPDispatcher) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(d.host, d.opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// LogDispatcher only logs outgoing mail. Used when SMTP is disabled.
type LogDispatcher struct {
	log logger.Logger
}

func NewLogDispatcher(log logger.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(_ context.Context, to, subject, body string) error {
	d.log.Info("Email", "to", to, "subject", subject, "body", body)
	return nil
}
