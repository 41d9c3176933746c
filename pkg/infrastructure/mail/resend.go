package mail

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

type ResendConfig struct {
	APIKey  string
	BaseURL string
	From    string
	Timeout time.Duration
}

// ResendProvider sends messages through the Resend API.
type ResendProvider struct {
	config ResendConfig
	client *resend.Client
}

func NewResendProvider(config ResendConfig) (*ResendProvider, error) {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	client := resend.NewCustomClient(&http.Client{Timeout: config.Timeout}, config.APIKey)
	if config.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(config.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.Wrapf(err, "parse resend base url %q", config.BaseURL)
		}
		client.BaseURL = base
	}
	return &ResendProvider{config: config, client: client}, nil
}

func (p *ResendProvider) Name() string {
	return "resend"
}

func (p *ResendProvider) Send(ctx context.Context, email model.Email) error {
	if p.config.APIKey == "" || p.config.From == "" {
		return model.ErrProviderNotConfigured
	}

	_, err := p.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    p.config.From,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
	})
	if err != nil {
		return errors.Wrapf(err, "send email to %s via resend", email.To)
	}
	return nil
}
