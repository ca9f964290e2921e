package repositories

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/bellflower/pkg/database"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/query"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

const messagesTable = "message"

// MessageSchema is the public field allow list for message queries
var MessageSchema = query.Schema{
	Fields: map[string]query.Field{
		"id":                {Column: "id", Type: query.Integer},
		"user_uuid":         {Column: "user_uuid", Type: query.Text},
		"user_privilege_id": {Column: "user_privilege_id", Type: query.Integer},
		"data":              {Column: "data", Type: query.Text},
		"created_at":        {Column: "created_at", Type: query.Timestamp},
	},
	DefaultOrder: []query.Order{
		{Field: "created_at", Direction: query.Desc},
		{Field: "id", Direction: query.Desc},
	},
	TieBreaker: "id",
}

// MessageRepository is the append-only chat message log
type MessageRepository struct {
	*Repository
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db database.DB, logger ectologger.Logger) *MessageRepository {
	return &MessageRepository{
		Repository: NewRepository(db, logger),
	}
}

// Append persists m and fills in its id and created_at.
func (r *MessageRepository) Append(ctx context.Context, m *models.ChatMessage) error {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.Append")
	defer span.End()

	if !models.ValidBody(m.Data, models.MaxMessageBodyLength) {
		return BadRequest("message must be between 1 and 1000 characters")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(messagesTable).
		Cols("user_id", "user_uuid", "user_privilege_id", "chat_id", "data", "created_at").
		Values(m.UserID, m.UserUUID, m.UserPrivilege, m.ChatID, m.Data, sqlbuilder.Raw("NOW()")).
		Returning("id", "created_at")

	query, args := ib.Build()
	var inserted struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := r.Q(ctx).GetContext(ctx, &inserted, query, args...); err != nil {
		tracing.RecordError(span, err)
		return r.internal(ctx, err, map[string]any{"chat_id": m.ChatID}, "failed to save message")
	}

	m.ID = inserted.ID
	m.CreatedAt = inserted.CreatedAt
	return nil
}

// List returns one page of a chat's messages, newest first unless req orders otherwise.
func (r *MessageRepository) List(ctx context.Context, chatID int64, req query.Request) (*query.Page[models.ChatMessage], error) {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.List")
	defer span.End()

	scope := func(sb *sqlbuilder.SelectBuilder) []string {
		return []string{sb.Equal("chat_id", chatID)}
	}

	page, err := query.Find[models.ChatMessage](ctx, r.Q(ctx), messagesTable, MessageSchema, scope, req)
	if err != nil {
		if isClientError(err) {
			return nil, err
		}
		tracing.RecordError(span, err)
		return nil, r.internal(ctx, err, map[string]any{"chat_id": chatID}, "failed to list messages")
	}
	return page, nil
}

// Delete removes messages by id. Missing ids are ignored.
func (r *MessageRepository) Delete(ctx context.Context, ids []int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.Delete")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom(messagesTable).Where(del.In("id", toAny(ids)...))

	query, args := del.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, r.internal(ctx, err, map[string]any{"count": len(ids)}, "failed to delete messages")
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
