package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/bellflower/pkg/database"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// ChatOwnership is the chat id of a subject together with the subject's owner, if the subject row exists.
type ChatOwnership struct {
	ChatID      int64         `db:"chat_id"`
	OwnerUserID sql.NullInt64 `db:"owner_user_id"`
}

// OwnershipRepository answers who owns a business subject
type OwnershipRepository struct {
	*Repository
}

// NewOwnershipRepository creates a new ownership repository
func NewOwnershipRepository(db database.DB, logger ectologger.Logger) *OwnershipRepository {
	return &OwnershipRepository{
		Repository: NewRepository(db, logger),
	}
}

func notificationOwnerTable(subject models.NotificationSubject) string {
	switch subject {
	case models.NotificationSubjectApplication:
		return "application"
	case models.NotificationSubjectLegalEntity:
		return "legal_entity"
	default:
		return ""
	}
}

// SubjectOwner returns the user id owning the application or legal entity subjectUUID.
func (r *OwnershipRepository) SubjectOwner(ctx context.Context, subject models.NotificationSubject, subjectUUID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "OwnershipRepository.SubjectOwner")
	defer span.End()

	table := notificationOwnerTable(subject)
	if table == "" {
		return 0, BadRequest(fmt.Sprintf("subject %s has no owner", subject))
	}

	sb := database.NewSelectBuilder()
	sb.Select("user_id").From(table).Where(sb.Equal("uuid", subjectUUID))

	query, args := sb.Build()
	var ownerID int64
	err := r.Q(ctx).GetContext(ctx, &ownerID, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, NotFound("%s %s does not exist", subject, subjectUUID)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return 0, r.internal(ctx, err, map[string]any{"subject_uuid": subjectUUID}, "failed to resolve subject owner")
	}
	return ownerID, nil
}

// ChatOwner resolves the chat of (subject, subjectUUID) and the subject's owner in one joined lookup.
func (r *OwnershipRepository) ChatOwner(ctx context.Context, subject models.ChatSubject, subjectUUID string) (*ChatOwnership, error) {
	ctx, span := tracing.StartSpan(ctx, "OwnershipRepository.ChatOwner")
	defer span.End()

	table := subject.OwnerTable()
	if table == "" {
		return nil, BadRequest(fmt.Sprintf("unknown chat subject %d", subject))
	}

	sb := database.NewSelectBuilder()
	sb.Select("c.id AS chat_id", "o.user_id AS owner_user_id").
		From(sb.As(chatsTable, "c")).
		JoinWithOption(sqlbuilder.LeftJoin, sb.As(table, "o"), "o.uuid = c.subject_uuid").
		Where(sb.Equal("c.chat_subject_id", subject), sb.Equal("c.subject_uuid", subjectUUID))

	query, args := sb.Build()
	var ownership ChatOwnership
	err := r.Q(ctx).GetContext(ctx, &ownership, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("chat for %s %s does not exist", subject, subjectUUID)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, r.internal(ctx, err, map[string]any{"subject_uuid": subjectUUID}, "failed to resolve chat owner")
	}
	return &ownership, nil
}
