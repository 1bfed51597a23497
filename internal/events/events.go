package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/newsdesk/apiserver/internal/mq"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the broker channel events are published on.
const DefaultChannel = "newsdesk.events"

// TypeAttribute carries the event type alongside the payload so consumers
// can filter without decoding.
const TypeAttribute = "event_type"

// Type names a domain event.
type Type string

const (
	AccountRegistered      Type = "account.registered"
	AccountAdminCreated    Type = "account.admin_created"
	AccountLocked          Type = "account.locked"
	AccountDeactivated     Type = "account.deactivated"
	AccountActivated       Type = "account.activated"
	AccountRoleChanged     Type = "account.role_changed"
	AccountPasswordChanged Type = "account.password_changed"
	ArticleCreated         Type = "article.created"
	ArticleUpdated         Type = "article.updated"
	ArticleDeleted         Type = "article.deleted"
)

// Event is the envelope published for every domain change.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Subject    string            `json:"subject"`
	Actor      string            `json:"actor,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// Publisher sends events to the message broker. A nil *Publisher, or one
// built without a broker, drops events.
type Publisher struct {
	mq      *mq.MQ
	channel string
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewPublisher(m *mq.MQ, channel string, logger logrus.FieldLogger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		mq:      m,
		channel: channel,
		logger:  logger,
		now:     time.Now,
	}
}

// Publish emits an event. Delivery is best effort: failures are logged and
// never returned to the caller.
func (p *Publisher) Publish(ctx context.Context, typ Type, subject, actor string, data map[string]string) {
	if p == nil || p.mq == nil {
		return
	}

	event := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Subject:    subject,
		Actor:      actor,
		OccurredAt: p.now().UTC(),
		Data:       data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.warn(err, event)
		return
	}

	attrs := map[string]string{
		TypeAttribute:           string(typ),
		mq.ContentTypeAttribute: "application/json",
	}
	if subject != "" {
		// Events about the same account or article stay in order.
		attrs[mq.OrderingKeyAttribute] = subject
	}
	if _, err := p.mq.Publish(ctx, p.channel, payload, attrs); err != nil {
		p.warn(err, event)
	}
}

// Channel returns the channel events are published on.
func (p *Publisher) Channel() string {
	return p.channel
}

func (p *Publisher) warn(err error, event Event) {
	if p.logger == nil {
		return
	}
	p.logger.WithError(err).WithFields(logrus.Fields{
		"event_type": event.Type,
		"subject":    event.Subject,
	}).Warn("failed to publish event")
}

// Decode parses a message produced by Publish.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, err
	}
	if event.Type == "" {
		return Event{}, errors.New("event type is missing")
	}
	return event, nil
}
