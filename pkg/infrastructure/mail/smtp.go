package mail

import (
	"context"
	"time"

	"github.com/pkg/errors"
	gomail "github.com/wneessen/go-mail"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	// Opportunistic TLS keeps local relays without certificates usable.
	Opportunistic bool
}

// SMTPProvider is the relay used when the HTTP provider is down.
type SMTPProvider struct {
	config SMTPConfig
}

func NewSMTPProvider(config SMTPConfig) *SMTPProvider {
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &SMTPProvider{config: config}
}

func (p *SMTPProvider) Name() string {
	return "smtp"
}

func (p *SMTPProvider) Send(ctx context.Context, email model.Email) error {
	if p.config.Host == "" || p.config.From == "" {
		return model.ErrProviderNotConfigured
	}

	msg, err := p.message(email)
	if err != nil {
		return err
	}
	client, err := p.client()
	if err != nil {
		return err
	}
	return errors.Wrap(client.DialAndSendWithContext(ctx, msg), "send via smtp")
}

func (p *SMTPProvider) message(email model.Email) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(p.config.From); err != nil {
		return nil, errors.Wrap(err, "set sender")
	}
	if err := msg.To(email.To); err != nil {
		return nil, errors.Wrap(err, "set recipient")
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, email.HTML)
	return msg, nil
}

func (p *SMTPProvider) client() (*gomail.Client, error) {
	tlsPolicy := gomail.TLSMandatory
	if p.config.Opportunistic {
		tlsPolicy = gomail.TLSOpportunistic
	}
	options := []gomail.Option{
		gomail.WithPort(p.config.Port),
		gomail.WithTLSPolicy(tlsPolicy),
		gomail.WithTimeout(p.config.Timeout),
	}
	if p.config.Username != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(p.config.Username),
			gomail.WithPassword(p.config.Password),
		)
	}
	client, err := gomail.NewClient(p.config.Host, options...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return client, nil
}
