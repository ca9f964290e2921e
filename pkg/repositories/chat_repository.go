package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/bellflower/pkg/database"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

const chatsTable = "chat"

var chatStruct = database.NewStruct(new(models.Chat))

// ChatRepository stores the one chat per business subject
type ChatRepository struct {
	*Repository
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db database.DB, logger ectologger.Logger) *ChatRepository {
	return &ChatRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts chat. A second chat for the same subject fails with 409.
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	ctx, span := tracing.StartSpan(ctx, "ChatRepository.Create")
	defer span.End()

	if !chat.Subject.IsValid() || chat.SubjectUUID == "" {
		return BadRequest("chat subject and subject_uuid are required")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(chatsTable).
		Cols("chat_subject_id", "subject_uuid", "created_at").
		Values(chat.Subject, chat.SubjectUUID, sqlbuilder.Raw("NOW()")).
		Returning("id", "created_at")

	query, args := ib.Build()
	var inserted struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := r.Q(ctx).GetContext(ctx, &inserted, query, args...)
	if database.IsUniqueViolation(err) {
		return Conflict("chat already exists for this subject")
	}
	if err != nil {
		tracing.RecordError(span, err)
		return r.internal(ctx, err, map[string]any{"subject_uuid": chat.SubjectUUID}, "failed to create chat")
	}

	chat.ID = inserted.ID
	chat.CreatedAt = inserted.CreatedAt
	return nil
}

// GetBySubject returns the chat attached to (subject, subjectUUID).
func (r *ChatRepository) GetBySubject(ctx context.Context, subject models.ChatSubject, subjectUUID string) (*models.Chat, error) {
	ctx, span := tracing.StartSpan(ctx, "ChatRepository.GetBySubject")
	defer span.End()

	sb := chatStruct.SelectFrom(chatsTable)
	sb.Where(sb.Equal("chat_subject_id", subject), sb.Equal("subject_uuid", subjectUUID))

	query, args := sb.Build()
	var chat models.Chat
	err := r.Q(ctx).GetContext(ctx, &chat, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("chat for %s %s does not exist", subject, subjectUUID)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, r.internal(ctx, err, map[string]any{"subject_uuid": subjectUUID}, "failed to get chat")
	}
	return &chat, nil
}

// DeleteBySubject removes the chat of a destroyed subject together with its messages.
func (r *ChatRepository) DeleteBySubject(ctx context.Context, subject models.ChatSubject, subjectUUID string) error {
	ctx, span := tracing.StartSpan(ctx, "ChatRepository.DeleteBySubject")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return r.internal(ctx, err, nil, "failed to delete chat")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	sb := database.NewSelectBuilder()
	sb.Select("id").From(chatsTable).
		Where(sb.Equal("chat_subject_id", subject), sb.Equal("subject_uuid", subjectUUID)).
		ForUpdate()

	query, args := sb.Build()
	var chatID int64
	err = tx.GetContext(ctx, &chatID, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return r.internal(ctx, err, map[string]any{"subject_uuid": subjectUUID}, "failed to delete chat")
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom(messagesTable).Where(del.Equal("chat_id", chatID))
	query, args = del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, map[string]any{"chat_id": chatID}, "failed to delete chat messages")
	}

	del = database.NewDeleteBuilder()
	del.DeleteFrom(chatsTable).Where(del.Equal("id", chatID))
	query, args = del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return r.internal(ctx, err, map[string]any{"chat_id": chatID}, "failed to delete chat")
	}

	if err := tx.Commit(ctx); err != nil {
		return r.internal(ctx, err, map[string]any{"chat_id": chatID}, "failed to delete chat")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"chat_id":      chatID,
		"subject_uuid": subjectUUID,
	}).Info("Deleted chat")
	return nil
}
