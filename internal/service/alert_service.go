package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/routing-engine/internal/events"
)

// AlertService is the notification boundary. High-urgency and dead-letter
// events are logged at warn level where an on-call webhook would hook in.
type AlertService struct {
	logger *zap.Logger
}

// NewAlertService creates the service.
func NewAlertService(logger *zap.Logger) *AlertService {
	return &AlertService{logger: logger}
}

// RegisterHandlers subscribes the alert sinks on the dispatcher.
func (s *AlertService) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventHighUrgencyAlert, s.onHighUrgency)
	dispatcher.Subscribe(events.EventTicketDeadLettered, s.onDeadLettered)
}

func (s *AlertService) onHighUrgency(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.HighUrgencyAlertPayload)
	if !ok {
		return nil
	}
	s.logger.Warn("high urgency ticket received",
		zap.String("ticket_id", event.TicketID),
		zap.Float64("urgency", payload.Urgency),
		zap.String("category", string(payload.Category)),
		zap.String("subject", payload.Subject),
	)
	return nil
}

func (s *AlertService) onDeadLettered(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketDeadLetteredPayload)
	if !ok {
		return nil
	}
	s.logger.Warn("ticket dead-lettered after retry budget exhausted",
		zap.String("ticket_id", event.TicketID),
		zap.Int("retry_count", payload.RetryCount),
		zap.String("reason", payload.Reason),
	)
	return nil
}
