package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"go.uber.org/multierr"
)

// LogSink writes events to the structured log.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Send(ctx context.Context, event Event) error {
	if s == nil || s.logg == nil {
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":    event.ID.String(),
		"event":       event.Name,
		"profile_id":  event.ProfileID,
		"value":       event.Value.String(),
		"currency":    event.Currency,
		"quantity":    event.Quantity,
		"item_count":  len(event.Items),
		"tracking_id": event.TrackingID,
	})
	s.logg.Info(ctx, "analytics event")
	return nil
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubSink publishes events as JSON messages on a Pub/Sub topic.
type PubSubSink struct {
	publisher publisher
}

// NewPubSubSink wraps a topic publisher.
func NewPubSubSink(p *gcppubsub.Publisher) (*PubSubSink, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	return &PubSubSink{publisher: &gcpPublisher{Publisher: p}}, nil
}

func (s *PubSubSink) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal analytics event: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":   event.ID.String(),
			"event_name": event.Name.String(),
		},
	}
	result := s.publisher.Publish(ctx, msg)
	if result == nil {
		return errors.New("publish result is nil")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish analytics event %s: %w", event.Name, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

// MultiSink fans an event out to every sink and combines their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, event Event) error {
	var errs error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		errs = multierr.Append(errs, sink.Send(ctx, event))
	}
	return errs
}
