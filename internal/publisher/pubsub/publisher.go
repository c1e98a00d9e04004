// Package pubsub publishes run notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	publisher *pubsub.Publisher
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

func fullTopicName(projectID, topicID string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
}

// Open connects to projectID, checks that topic exists and returns a
// publisher for it together with a func that stops the publisher and closes
// the client.
func Open(ctx context.Context, projectID, topic string, logger *zap.Logger, opts ...option.ClientOption) (*Publisher, func(), error) {
	if projectID == "" || topic == "" {
		return nil, nil, fmt.Errorf("pubsub project and topic are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	name := fullTopicName(projectID, topic)
	if _, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name}); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("pubsub client close failed", zap.Error(closeErr))
		}
		return nil, nil, fmt.Errorf("pubsub topic %q in project %q: %w", topic, projectID, err)
	}
	pub := client.Publisher(name)
	closeFn := func() {
		pub.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	return New(pub), closeFn, nil
}

// Publish marshals the payload to JSON and publishes it with the trace
// context of ctx in the message attributes. The topic is fixed by the
// wrapped publisher; it is recorded as an attribute.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: attributes(ctx, topic)}
	result := p.publisher.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func attributes(ctx context.Context, topic string) map[string]string {
	attrs := make(map[string]string)
	if topic != "" {
		attrs["topic"] = topic
	}
	otel.GetTextMapPropagator().Inject(ctx, &carrier{attrs: attrs})
	return attrs
}

// carrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type carrier struct {
	attrs map[string]string
}

func (c *carrier) Get(key string) string {
	return c.attrs[key]
}

func (c *carrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *carrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
