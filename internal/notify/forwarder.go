// internal/notify/forwarder.go
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/utils/metrics"
)

const publishTimeout = 5 * time.Second

// Forward publishes every event on bus. A failed publish is logged and
// counted; it never fails the bus delivery.
func Forward(bus *events.Bus, pub Publisher, m *metrics.Collector, logger *zap.Logger) events.Subscription {
	logger = logger.Named("notify")
	return bus.SubscribeFunc(events.All, func(ctx context.Context, ev events.Event) error {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		err := pub.Publish(ctx, ev)
		m.RecordPublished(string(ev.Type()), err)
		if err != nil {
			logger.Warn("Failed to forward event",
				zap.String("type", string(ev.Type())),
				zap.Error(err))
		}
		return nil
	})
}
