package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
)

// AuditService writes lifecycle events to the log and the lifecycle counters.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	return &AuditService{dispatcher: dispatcher, logger: logger, metrics: metrics}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, t := range []events.EventType{
		events.EventAccountRegistered,
		events.EventEmailVerified,
		events.EventVerificationReissued,
		events.EventLoginSucceeded,
		events.EventLoginFailed,
		events.EventPasswordResetRequest,
		events.EventPasswordResetComplete,
		events.EventNotificationFailed,
		events.EventLoggedOut,
	} {
		a.dispatcher.Subscribe(t, a.handle)
	}
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	a.metrics.RecordLifecycleEvent(string(event.Type))

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event", string(event.Type)),
		zap.String("account_id", event.AccountID),
		zap.Time("at", event.Timestamp),
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}

	if event.Type == events.EventNotificationFailed || event.Type == events.EventLoginFailed {
		a.logger.Warn("audit", fields...)
		return nil
	}
	a.logger.Info("audit", fields...)
	return nil
}
