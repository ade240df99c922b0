package friendreq

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Notifier tells a user they have a new incoming request.
type Notifier interface {
	NotifyRequest(ctx context.Context, from, to User) error
}

// NopNotifier drops notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyRequest(context.Context, User, User) error { return nil }

// MailConfig holds SMTP settings for MailNotifier.
type MailConfig struct {
	Host     string
	Port     int // default 587
	Username string
	Password string
	From     string
	Timeout  time.Duration // default 10s
}

// MailNotifier emails the recipient over SMTP.
type MailNotifier struct {
	cfg MailConfig
}

// NewMailNotifier applies defaults to cfg.
func NewMailNotifier(cfg MailConfig) *MailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MailNotifier{cfg: cfg}
}

// Message builds the notification without sending it.
func (n *MailNotifier) Message(from, to User) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("mail: from address: %w", err)
	}
	if err := m.To(to.Email); err != nil {
		return nil, fmt.Errorf("mail: to address: %w", err)
	}
	sender := from.Name
	if sender == "" {
		sender = from.Email
	}
	m.Subject(sender + " wants to be your friend")
	m.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"%s (%s) sent you a friend request.\n\nSign in to accept or decline it.\n",
		sender, from.Email))
	return m, nil
}

func (n *MailNotifier) NotifyRequest(ctx context.Context, from, to User) error {
	m, err := n.Message(from, to)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(n.cfg.Timeout),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	c, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("mail: client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to.Email, err)
	}
	return nil
}
