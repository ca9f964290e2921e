package chat

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/metrics"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/query"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// Message sources recorded on metrics.
const (
	SourceREST   = "rest"
	SourceSocket = "socket"
)

// MessageStore persists chat messages. Implemented by repositories.MessageRepository.
type MessageStore interface {
	Append(ctx context.Context, m *models.ChatMessage) error
	List(ctx context.Context, chatID int64, req query.Request) (*query.Page[models.ChatMessage], error)
	Delete(ctx context.Context, ids []int64) (int64, error)
}

// ChatStore creates and removes chats. Implemented by repositories.ChatRepository.
type ChatStore interface {
	Create(ctx context.Context, chat *models.Chat) error
	DeleteBySubject(ctx context.Context, subject models.ChatSubject, subjectUUID string) error
}

// EventEmitter publishes chat events. Implemented by events.Emitter.
type EventEmitter interface {
	EmitChatMessageCreated(ctx context.Context, subject models.ChatSubject, subjectUUID string, m *models.ChatMessage) error
}

// Service is the single entry point for chat operations; REST handlers and sockets both go
// through it so every message passes the gate.
type Service struct {
	gate     *Gate
	messages MessageStore
	chats    ChatStore
	registry *Registry
	events   EventEmitter
	logger   ectologger.Logger
}

// NewService creates a new chat service
func NewService(gate *Gate, messages MessageStore, chats ChatStore, registry *Registry, events EventEmitter, logger ectologger.Logger) *Service {
	return &Service{
		gate:     gate,
		messages: messages,
		chats:    chats,
		registry: registry,
		events:   events,
		logger:   logger,
	}
}

// Registry returns the registry live sockets attach to
func (s *Service) Registry() *Registry {
	return s.registry
}

// Authorize resolves the chat id for key if caller may use it
func (s *Service) Authorize(ctx context.Context, key ChannelKey, caller models.Caller) (int64, error) {
	return s.gate.Authorize(ctx, key.Subject, key.SubjectUUID, caller)
}

// Send authorizes caller, persists the message and broadcasts it to the channel's live
// subscribers in persistence order.
func (s *Service) Send(ctx context.Context, caller models.Caller, key ChannelKey, body, source string) (*models.ChatMessage, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.Service.Send")
	defer span.End()

	chatID, err := s.Authorize(ctx, key, caller)
	if err != nil {
		return nil, err
	}
	if !models.ValidBody(body, models.MaxMessageBodyLength) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "message must be between 1 and %d characters", models.MaxMessageBodyLength)
	}

	m := &models.ChatMessage{
		UserID:        caller.ID,
		UserUUID:      caller.UUID,
		UserPrivilege: caller.Privilege,
		ChatID:        chatID,
		Data:          body,
	}

	delivered, err := s.registry.Publish(ctx, key, func(ctx context.Context) ([]byte, error) {
		if err := s.messages.Append(ctx, m); err != nil {
			return nil, err
		}
		return EncodeFrame(key, m)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	metrics.RecordChatMessage(source)
	if s.events != nil {
		_ = s.events.EmitChatMessageCreated(ctx, key.Subject, key.SubjectUUID, m)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"chat_id":    chatID,
		"message_id": m.ID,
		"delivered":  delivered,
		"source":     source,
	}).Debug("chat message published")
	return m, nil
}

// Messages lists one page of the chat's messages after the gate passes.
func (s *Service) Messages(ctx context.Context, caller models.Caller, key ChannelKey, req query.Request) (*query.Page[models.ChatMessage], error) {
	chatID, err := s.Authorize(ctx, key, caller)
	if err != nil {
		return nil, err
	}
	return s.messages.List(ctx, chatID, req)
}

// DeleteMessages removes messages by id. Admin only.
func (s *Service) DeleteMessages(ctx context.Context, caller models.Caller, ids []int64) (int64, error) {
	if !caller.IsAdmin() {
		return 0, httperror.NewHTTPError(http.StatusForbidden, "only administrators may delete messages")
	}
	return s.messages.Delete(ctx, ids)
}

// CreateChat creates the chat for key. Admin only, CONFLICT when it already exists.
func (s *Service) CreateChat(ctx context.Context, caller models.Caller, key ChannelKey) (*models.Chat, error) {
	if !caller.IsAdmin() {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only administrators may create chats")
	}

	chat := &models.Chat{Subject: key.Subject, SubjectUUID: key.SubjectUUID}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// DeleteChat removes the chat with its messages and disconnects its live subscribers.
func (s *Service) DeleteChat(ctx context.Context, caller models.Caller, key ChannelKey) error {
	if !caller.IsAdmin() {
		return httperror.NewHTTPError(http.StatusForbidden, "only administrators may delete chats")
	}
	if err := s.chats.DeleteBySubject(ctx, key.Subject, key.SubjectUUID); err != nil {
		return err
	}

	if closed := s.registry.CloseChannel(key); closed > 0 {
		s.logger.WithContext(ctx).Infof("Closed %d subscribers of deleted chat %s %s", closed, key.Subject, key.SubjectUUID)
	}
	return nil
}
