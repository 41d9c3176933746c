package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/service"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/infrastructure/broker"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/infrastructure/crypto"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/infrastructure/mail"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/infrastructure/mysql"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/infrastructure/stripe"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/transport"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	app := &cli.App{
		Name:  "storefront",
		Usage: "streaming storefront order and payment backend",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrateDatabase,
			},
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("storefront stopped")
	}
}

func setupLogging(c *config) func() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.LogFile == "" {
		return func() {}
	}
	file, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.WithError(err).Warn("failed to open log file, logging to stderr")
		return func() {}
	}
	log.SetOutput(file)
	return func() { _ = file.Close() }
}

func databaseConfig(c *config) mysql.Config {
	return mysql.Config{
		Addr:            c.DatabaseAddress,
		User:            c.DatabaseUser,
		Password:        c.DatabasePassword,
		Database:        c.DatabaseName,
		MaxOpenConns:    c.DatabaseMaxConnections,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func migrateDatabase(_ *cli.Context) error {
	c, err := parseEnv()
	if err != nil {
		return err
	}
	defer setupLogging(c)()

	version, err := mysql.Migrate(databaseConfig(c))
	if err != nil {
		return err
	}
	log.WithField("version", version).Info("database schema is up to date")
	return nil
}

func serve(ctx *cli.Context) error {
	c, err := parseEnv()
	if err != nil {
		return err
	}
	defer setupLogging(c)()

	if c.MigrateOnStart {
		if _, err := mysql.Migrate(databaseConfig(c)); err != nil {
			return err
		}
	}
	db, err := mysql.Open(databaseConfig(c))
	if err != nil {
		return err
	}
	defer db.Close()

	secrets, err := crypto.NewSecretBox(c.CredentialsKey)
	if err != nil {
		return err
	}

	dispatcher, closeDispatcher, err := newDispatcher(c)
	if err != nil {
		return err
	}
	defer closeDispatcher()

	logger := log.StandardLogger()
	orders := mysql.NewOrderRepository(db, secrets)
	customers := mysql.NewCustomerRepository(db, secrets)
	products := mysql.NewProductRepository(db)
	emailLog := mysql.NewEmailLogRepository(db)

	if c.StripeWebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET is not set, payment webhooks will be acknowledged and ignored")
	}
	gateway := stripe.NewGateway(stripe.Config{
		SecretKey:         c.StripeSecretKey,
		WebhookSecret:     c.StripeWebhookSecret,
		SuccessURL:        c.StripeSuccessURL,
		CancelURL:         c.StripeCancelURL,
		ShippingCountries: c.StripeShippingCountries,
	}, logger)

	resendProvider, err := mail.NewResendProvider(mail.ResendConfig{APIKey: c.ResendAPIKey, BaseURL: c.ResendBaseURL, From: c.MailFrom})
	if err != nil {
		return err
	}
	if c.OwnerEmail == "" {
		log.Warn("OWNER_EMAIL is not set, owner order alerts will not be delivered")
	}
	mailer := service.NewMailer(
		resendProvider,
		mail.NewSMTPProvider(mail.SMTPConfig{
			Host:          c.SMTPHost,
			Port:          c.SMTPPort,
			Username:      c.SMTPUser,
			Password:      c.SMTPPassword,
			From:          c.MailFrom,
			Opportunistic: c.SMTPOpportunistic,
		}),
		logger,
	)
	notifications := service.NewNotificationService(mailer, emailLog, service.NotificationSettings{
		StoreName:    c.StoreName,
		SupportEmail: c.SupportEmail,
		PortalURL:    c.PortalURL,
		OwnerEmail:   c.OwnerEmail,
		AdminURL:     c.AdminURL,
	}, logger)

	payments := service.NewPaymentService(orders, customers, gateway, notifications, dispatcher, logger, nil)
	router := transport.Router(transport.Services{
		Checkout:    service.NewCheckoutService(orders, products, customers, gateway, dispatcher, logger),
		Payments:    payments,
		Admin:       service.NewAdminService(orders, emailLog, payments, notifications, c.EmailConcurrency, logger, nil),
		Fulfillment: service.NewFulfillmentService(orders, dispatcher, logger),
		Catalog:     service.NewCatalogService(products),
	}, c.AdminToken)
	if c.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is not set, admin endpoints are disabled")
	}

	return runServer(ctx.Context, c.ServeRESTAddress, router)
}

func newDispatcher(c *config) (service.EventDispatcher, func(), error) {
	if c.AMQPURL == "" {
		return broker.NewLogDispatcher(log.StandardLogger()), func() {}, nil
	}
	dispatcher, err := broker.Dial(c.AMQPURL, c.AMQPExchange, log.StandardLogger())
	if err != nil {
		return nil, nil, err
	}
	return dispatcher, func() {
		if err := dispatcher.Close(); err != nil {
			log.WithError(err).Warn("failed to close amqp connection")
		}
	}, nil
}

func runServer(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	killSignalChan := getKillSignalChan()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(log.Fields{"url": address}).Info("starting the server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen and serve")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case sig := <-killSignalChan:
			logKillSignal(sig)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func getKillSignalChan() chan os.Signal {
	osKillSignalChan := make(chan os.Signal, 1)
	signal.Notify(osKillSignalChan, os.Interrupt, syscall.SIGTERM)
	return osKillSignalChan
}

func logKillSignal(killSignal os.Signal) {
	switch killSignal {
	case os.Interrupt:
		log.Info("got SIGINT...")
	case syscall.SIGTERM:
		log.Info("got SIGTERM...")
	}
}
