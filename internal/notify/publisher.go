// internal/notify/publisher.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/events"
)

const (
	// StreamName is the JetStream stream holding program events.
	StreamName = "FOSSR"
	// SubjectPrefix is followed by the event type, e.g. fossr.buy.executed.
	SubjectPrefix   = "fossr."
	StreamSubjects  = SubjectPrefix + ">"
	StreamRetention = 7 * 24 * time.Hour
)

// Publisher sends committed events to subscribers outside the process.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
	Close() error
}

// Subject returns the subject an event is published on.
func Subject(t events.EventType) string {
	return SubjectPrefix + string(t)
}

// JetStreamPublisher publishes events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// NewPublisher connects to NATS and makes sure the stream exists.
func NewPublisher(natsURL string, logger *zap.Logger) (*JetStreamPublisher, error) {
	logger = logger.Named("notify")
	nc, err := nats.Connect(natsURL,
		nats.Name("fossr-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, logger: logger}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		zap.String("url", natsURL),
		zap.String("stream", StreamName))
	return p, nil
}

func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	p.logger.Info("Creating JetStream stream", zap.String("stream", StreamName))
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed FOSSR program events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, ev events.Event) error {
	subject := Subject(ev.Type())
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type(), err)
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	p.logger.Debug("Published event", zap.String("subject", subject))
	return nil
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
			return err
		}
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
