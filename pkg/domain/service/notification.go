package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

var ErrOwnerEmailMissing = errors.New("owner email is not configured")

type SendResult struct {
	Success  bool
	Provider string
	Err      error
}

// Mailer sends one email through a primary provider and falls back to a
// second one. Callers never see provider specific errors.
type Mailer interface {
	SendEmail(ctx context.Context, email model.Email) SendResult
}

func NewMailer(primary, fallback model.EmailProvider, logger log.FieldLogger) Mailer {
	return &mailer{primary: primary, fallback: fallback, logger: logger}
}

type mailer struct {
	primary  model.EmailProvider
	fallback model.EmailProvider
	logger   log.FieldLogger
}

func (m *mailer) SendEmail(ctx context.Context, email model.Email) SendResult {
	var lastErr error
	for _, provider := range []model.EmailProvider{m.primary, m.fallback} {
		if provider == nil {
			continue
		}
		err := provider.Send(ctx, email)
		if err == nil {
			m.logger.WithFields(log.Fields{"provider": provider.Name(), "to": email.To, "subject": email.Subject}).Info("email sent")
			return SendResult{Success: true, Provider: provider.Name()}
		}
		m.logger.WithError(err).WithFields(log.Fields{"provider": provider.Name(), "to": email.To}).Warn("email provider failed")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = model.ErrProviderNotConfigured
	}
	m.logger.WithError(lastErr).WithField("to", email.To).Error("all email providers failed")
	return SendResult{Err: fmt.Errorf("%w: %v", model.ErrAllProvidersFailed, lastErr)}
}

type NotificationService interface {
	SendOrderConfirmation(ctx context.Context, order *model.Order) SendResult
	SendRenewalConfirmation(ctx context.Context, order *model.Order) SendResult
	SendCredentials(ctx context.Context, order *model.Order) SendResult
	SendOwnerAlert(ctx context.Context, order *model.Order, warning string) SendResult
}

func NewNotificationService(mailer Mailer, emailLog model.EmailLogRepository, settings NotificationSettings, logger log.FieldLogger) NotificationService {
	return &notificationService{mailer: mailer, emailLog: emailLog, settings: settings, logger: logger}
}

type notificationService struct {
	mailer   Mailer
	emailLog model.EmailLogRepository
	settings NotificationSettings
	logger   log.FieldLogger
}

func (s *notificationService) SendOrderConfirmation(ctx context.Context, order *model.Order) SendResult {
	return s.orchestrateSend(ctx, order, model.EmailOrderConfirmation, OrderConfirmationEmail(order, s.settings))
}

func (s *notificationService) SendRenewalConfirmation(ctx context.Context, order *model.Order) SendResult {
	return s.orchestrateSend(ctx, order, model.EmailRenewalConfirmation, RenewalConfirmationEmail(order, s.settings))
}

func (s *notificationService) SendCredentials(ctx context.Context, order *model.Order) SendResult {
	return s.orchestrateSend(ctx, order, model.EmailCredentials, CredentialsEmail(order, s.settings))
}

func (s *notificationService) SendOwnerAlert(ctx context.Context, order *model.Order, warning string) SendResult {
	if s.settings.OwnerEmail == "" {
		logger := s.logger.WithField("warning", warning)
		if order != nil {
			logger = logger.WithField("orderId", order.ID)
		}
		logger.Warn("owner email is not configured, order alert skipped")
		return SendResult{Err: ErrOwnerEmailMissing}
	}
	return s.orchestrateSend(ctx, order, model.EmailOwnerAlert, OwnerAlertEmail(order, warning, s.settings))
}

func (s *notificationService) orchestrateSend(ctx context.Context, order *model.Order, kind model.EmailKind, email model.Email) SendResult {
	result := s.mailer.SendEmail(ctx, email)

	entry := &model.EmailLogEntry{
		ID:        uuid.New(),
		Kind:      kind,
		Recipient: email.To,
		Provider:  result.Provider,
		Success:   result.Success,
		CreatedAt: time.Now().UTC(),
	}
	if order != nil {
		orderID := order.ID
		entry.OrderID = &orderID
	}
	if result.Err != nil {
		entry.Error = result.Err.Error()
	}
	if s.emailLog != nil {
		if err := s.emailLog.Append(ctx, entry); err != nil {
			s.logger.WithError(err).WithField("kind", kind).Warn("failed to record email log entry")
		}
	}
	return result
}
