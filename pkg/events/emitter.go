// Package events emits lifecycle events for notifications and chat messages
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Event types
const (
	EventNotificationCreated = "notification.created"
	EventChatMessageCreated  = "chat.message.created"
)

// Publisher is implemented by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// Event is the envelope written to the events topic
type Event struct {
	EventType     string    `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	OccurredAt    time.Time `json:"occurred_at"`
	Data          any       `json:"data"`
}

// Emitter turns domain changes into events. A nil publisher makes every emit a no-op.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitNotificationCreated emits a notification.created event keyed by the notification uuid
func (e *Emitter) EmitNotificationCreated(ctx context.Context, n *models.Notification) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitNotificationCreated")
	defer span.End()

	return e.emit(ctx, n.UUID, EventNotificationCreated, n)
}

// EmitChatMessageCreated emits a chat.message.created event keyed by the chat id
func (e *Emitter) EmitChatMessageCreated(ctx context.Context, subject models.ChatSubject, subjectUUID string, m *models.ChatMessage) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitChatMessageCreated")
	defer span.End()

	return e.emit(ctx, subjectUUID, EventChatMessageCreated, map[string]any{
		"chat_subject": subject,
		"subject_uuid": subjectUUID,
		"message":      m,
	})
}

func (e *Emitter) emit(ctx context.Context, key, eventType string, data any) error {
	if e == nil || e.publisher == nil {
		return nil
	}

	err := e.publisher.Publish(ctx, key, Event{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		Data:          data,
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", eventType).Error("Failed to emit event")
		return err
	}
	return nil
}
