// Package events carries dispatch outcomes and ERP sync triggers over Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/dispatch"
	"github.com/sirupsen/logrus"
)

const AttributeEventType = "event_type"

const EventDispatchOutcome = "boleto.dispatch"

// DispatchPublisher publishes one message per completed dispatch attempt.
type DispatchPublisher struct {
	topic  *pubsub.Topic
	logger *logrus.Logger
}

// NewDispatchPublisher binds topicName on client, creating the topic first
// when create is set.
func NewDispatchPublisher(ctx context.Context, client *pubsub.Client, topicName string, create bool) (*DispatchPublisher, error) {
	topicName = strings.TrimSpace(topicName)
	if client == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topicName == "" {
		return nil, errors.New("topic is required")
	}

	topic := client.Topic(topicName)
	if create {
		var err error
		topic, err = config.CreateTopicIfNotExists(ctx, client, topicName)
		if err != nil {
			return nil, err
		}
	}
	return &DispatchPublisher{topic: topic, logger: config.GetLogger()}, nil
}

func (p *DispatchPublisher) Publish(ctx context.Context, o dispatch.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttributeEventType: EventDispatchOutcome,
			"status":           string(o.Status),
		},
	})
	id, err := res.Get(ctx)
	if err != nil {
		return err
	}
	p.logger.WithFields(logrus.Fields{"message_id": id, "boleto_id": o.BoletoId}).Debug("dispatch outcome published")
	return nil
}

// Stop flushes pending messages.
func (p *DispatchPublisher) Stop() {
	p.topic.Stop()
}
