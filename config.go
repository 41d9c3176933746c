package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type config struct {
	ServeRESTAddress string `envconfig:"serve_rest_address" default:":8080"`
	LogLevel         string `envconfig:"log_level" default:"info"`
	LogFile          string `envconfig:"log_file"`

	DatabaseAddress         string        `envconfig:"database_address" default:"localhost:3306"`
	DatabaseUser            string        `envconfig:"database_user" required:"true"`
	DatabasePassword        string        `envconfig:"database_password"`
	DatabaseName            string        `envconfig:"database_name" default:"storefront"`
	DatabaseMaxConnections  int           `envconfig:"database_max_connections" default:"10"`
	DatabaseConnMaxLifetime time.Duration `envconfig:"database_conn_max_lifetime" default:"5m"`
	MigrateOnStart          bool          `envconfig:"migrate_on_start" default:"true"`

	// CredentialsKey is a hex-encoded 32-byte AES key for account passwords.
	CredentialsKey string `envconfig:"credentials_key" required:"true"`

	StripeSecretKey         string   `envconfig:"stripe_secret_key"`
	StripeWebhookSecret     string   `envconfig:"stripe_webhook_secret"`
	StripeSuccessURL        string   `envconfig:"stripe_success_url" default:"http://localhost:3000/checkout/success?order={ORDER_ID}"`
	StripeCancelURL         string   `envconfig:"stripe_cancel_url" default:"http://localhost:3000/checkout/cancel?order={ORDER_ID}"`
	StripeShippingCountries []string `envconfig:"stripe_shipping_countries" default:"US,CA"`

	ResendAPIKey  string `envconfig:"resend_api_key"`
	ResendBaseURL string `envconfig:"resend_base_url" default:"https://api.resend.com"`

	SMTPHost          string `envconfig:"smtp_host"`
	SMTPPort          int    `envconfig:"smtp_port" default:"587"`
	SMTPUser          string `envconfig:"smtp_user"`
	SMTPPassword      string `envconfig:"smtp_password"`
	SMTPOpportunistic bool   `envconfig:"smtp_opportunistic_tls"`

	MailFrom     string `envconfig:"mail_from"`
	OwnerEmail   string `envconfig:"owner_email"`
	SupportEmail string `envconfig:"support_email"`
	StoreName    string `envconfig:"store_name" default:"StreamStick Pro"`
	PortalURL    string `envconfig:"portal_url"`
	AdminURL     string `envconfig:"admin_url"`
	AdminToken   string `envconfig:"admin_token"`

	AMQPURL      string `envconfig:"amqp_url"`
	AMQPExchange string `envconfig:"amqp_exchange" default:"storefront.events"`

	EmailConcurrency int `envconfig:"email_concurrency" default:"4"`
}

func parseEnv() (*config, error) {
	c := new(config)
	if err := envconfig.Process("", c); err != nil {
		return nil, err
	}
	return c, nil
}
