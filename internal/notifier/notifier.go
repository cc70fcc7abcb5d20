package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/frahmantamala/payments-service/internal/core/events"
	"github.com/frahmantamala/payments-service/internal/ws"
)

// Broadcaster is the live fan-out surface, satisfied by *ws.Hub.
type Broadcaster interface {
	Publish(update ws.StatusUpdate)
}

// Notifier bridges the event bus to subscribers: websocket fan-out for
// connected clients, plus an optional NATS subject so other services can
// consume status changes without a websocket.
type Notifier struct {
	broadcaster Broadcaster
	nc          *nats.Conn
	subject     string
	logger      *slog.Logger
}

func New(broadcaster Broadcaster, nc *nats.Conn, subject string, logger *slog.Logger) *Notifier {
	return &Notifier{
		broadcaster: broadcaster,
		nc:          nc,
		subject:     subject,
		logger:      logger,
	}
}

func (n *Notifier) HandlePaymentStatusChanged(ctx context.Context, event events.Event) error {
	statusEvent, ok := event.(*events.PaymentStatusChangedEvent)
	if !ok {
		n.logger.Error("invalid event type for status change handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentStatusChangedEvent, got %T", event)
	}

	update := ws.StatusUpdate{
		Reference: statusEvent.Reference,
		Status:    statusEvent.Status,
		Timestamp: statusEvent.OccurredAt().UTC().Format(time.RFC3339),
	}

	n.broadcaster.Publish(update)

	if n.nc != nil {
		payload, err := json.Marshal(update)
		if err != nil {
			return fmt.Errorf("marshal status update: %w", err)
		}
		if err := n.nc.Publish(n.subject, payload); err != nil {
			// websocket delivery already happened; the bridge is best effort too
			n.logger.Error("failed to publish status update to nats",
				"error", err,
				"subject", n.subject,
				"reference", update.Reference)
			return err
		}
	}

	return nil
}

func (n *Notifier) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentStatusChanged, n.HandlePaymentStatusChanged)

	n.logger.Info("notifier event handlers registered",
		"handlers", []string{events.EventTypePaymentStatusChanged})
}
