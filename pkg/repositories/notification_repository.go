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

const (
	notificationsTable = "notification"

	// RecipientField is the public filter name that lets admins read another recipient's rows.
	RecipientField = "recipient_user_uuid"
)

// NotificationSchema is the public field allow list for notification queries
var NotificationSchema = query.Schema{
	Fields: map[string]query.Field{
		"id":                     {Column: "id", Type: query.Integer},
		"uuid":                   {Column: "uuid", Type: query.Text},
		"for_admin":              {Column: "for_admin", Type: query.Boolean},
		"subject_id":             {Column: "subject_id", Type: query.Integer},
		"subject_uuid":           {Column: "subject_uuid", Type: query.Text},
		"initiator_user_uuid":    {Column: "initiator_user_uuid", Type: query.Text},
		RecipientField:           {Column: "recipient_user_uuid", Type: query.Text},
		"data":                   {Column: "data", Type: query.Text},
		"is_read":                {Column: "is_read", Type: query.Boolean},
		"read_at":                {Column: "read_at", Type: query.Timestamp},
		"is_important":           {Column: "is_important", Type: query.Boolean},
		"time_importance_change": {Column: "time_importance_change", Type: query.Timestamp},
		"created_at":             {Column: "created_at", Type: query.Timestamp},
	},
	TieBreaker: "id",
}

// condBuilder is implemented by the select, update and delete builders.
type condBuilder interface {
	Equal(field string, value any) string
	IsNull(field string) string
	Or(orExpr ...string) string
}

// NotificationAccess is the visibility rule applied ahead of every read or update.
type NotificationAccess struct {
	Caller models.Caller
	// ByRecipient is set when an admin pins the list to specific recipients.
	ByRecipient bool
}

// AccessFor derives the access rule for caller from a list request.
func AccessFor(caller models.Caller, req query.Request) NotificationAccess {
	return NotificationAccess{
		Caller:      caller,
		ByRecipient: caller.IsAdmin() && req.Targets(RecipientField),
	}
}

func (a NotificationAccess) conditions(b condBuilder) []string {
	if !a.Caller.IsAdmin() {
		return []string{
			b.Equal("for_admin", false),
			b.Or(b.Equal("recipient_user_uuid", a.Caller.UUID), b.IsNull("recipient_user_uuid")),
		}
	}
	if a.ByRecipient {
		return nil
	}
	return []string{b.Equal("for_admin", true)}
}

func (a NotificationAccess) scope() query.Scope {
	return func(sb *sqlbuilder.SelectBuilder) []string {
		return a.conditions(sb)
	}
}

// NotificationRepository stores notifications
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db database.DB, logger ectologger.Logger) *NotificationRepository {
	return &NotificationRepository{
		Repository: NewRepository(db, logger),
	}
}

// Insert persists n and fills in its id and server-assigned created_at.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.Insert")
	defer span.End()

	if !models.ValidBody(n.Data, models.MaxNotificationBodyLength) {
		return BadRequest("notification body must be between 1 and 512 characters")
	}
	if n.Subject == models.NotificationSubjectOther && n.SubjectUUID != nil {
		return BadRequest("subject_uuid must be empty for subject Other")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(notificationsTable).
		Cols("uuid", "for_admin", "subject_id", "subject_uuid", "initiator_user_id", "initiator_user_uuid",
			"recipient_user_id", "recipient_user_uuid", "data", "is_read", "is_important", "time_importance_change", "created_at").
		Values(n.UUID, n.ForAdmin, n.Subject, n.SubjectUUID, n.InitiatorUserID, n.InitiatorUserUUID,
			n.RecipientUserID, n.RecipientUserUUID, n.Data, false, n.IsImportant, n.TimeImportanceChange, sqlbuilder.Raw("NOW()")).
		Returning("id", "created_at")

	query, args := ib.Build()
	var inserted struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := r.Q(ctx).GetContext(ctx, &inserted, query, args...); err != nil {
		tracing.RecordError(span, err)
		return r.internal(ctx, err, map[string]any{"notification_uuid": n.UUID}, "failed to create notification")
	}

	n.ID = inserted.ID
	n.CreatedAt = inserted.CreatedAt
	n.IsRead = false
	n.ReadAt = nil

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"notification_uuid": n.UUID,
		"subject":           n.Subject.String(),
	}).Debugf("Created %s", notificationsTable)
	return nil
}

// List returns one page of notifications visible under access.
func (r *NotificationRepository) List(ctx context.Context, access NotificationAccess, req query.Request) (*query.Page[models.Notification], error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.List")
	defer span.End()

	page, err := query.Find[models.Notification](ctx, r.Q(ctx), notificationsTable, NotificationSchema, access.scope(), req)
	if err != nil {
		if isClientError(err) {
			return nil, err
		}
		tracing.RecordError(span, err)
		return nil, r.internal(ctx, err, nil, "failed to list notifications")
	}
	return page, nil
}

// Count returns how many notifications are visible under access, optionally only unread ones of one subject.
func (r *NotificationRepository) Count(ctx context.Context, access NotificationAccess, unreadOnly bool, subject *models.NotificationSubject) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.Count")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(notificationsTable)
	where := access.conditions(sb)
	if unreadOnly {
		where = append(where, sb.Equal("is_read", false))
	}
	if subject != nil {
		where = append(where, sb.Equal("subject_id", *subject))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}

	query, args := sb.Build()
	var count int
	if err := r.Q(ctx).GetContext(ctx, &count, query, args...); err != nil {
		tracing.RecordError(span, err)
		return 0, r.internal(ctx, err, nil, "failed to count notifications")
	}
	return count, nil
}

// MarkRead sets is_read and read_at=now on every given notification the caller can see,
// including rows that were already read.
func (r *NotificationRepository) MarkRead(ctx context.Context, access NotificationAccess, uuids []string, now time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.MarkRead")
	defer span.End()

	if len(uuids) == 0 {
		return 0, nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update(notificationsTable).
		Set(ub.Assign("is_read", true), ub.Assign("read_at", now))
	where := append([]string{ub.In("uuid", toAny(uuids)...)}, access.conditions(ub)...)
	ub.Where(where...)

	query, args := ub.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, r.internal(ctx, err, map[string]any{"count": len(uuids)}, "failed to mark notifications read")
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// Delete removes the given notifications. Missing ids are ignored.
func (r *NotificationRepository) Delete(ctx context.Context, uuids []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.Delete")
	defer span.End()

	if len(uuids) == 0 {
		return 0, nil
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom(notificationsTable).Where(del.In("uuid", toAny(uuids)...))

	query, args := del.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, r.internal(ctx, err, map[string]any{"count": len(uuids)}, "failed to delete notifications")
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// FlipExpiredImportance toggles is_important on every row whose flip time has passed and
// clears the flip time, in one statement.
func (r *NotificationRepository) FlipExpiredImportance(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.FlipExpiredImportance")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(notificationsTable).
		Set("is_important = NOT is_important", "time_importance_change = NULL").
		Where(ub.IsNotNull("time_importance_change"), ub.LessEqualThan("time_importance_change", now))

	query, args := ub.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, r.internal(ctx, err, nil, "failed to flip notification importance")
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func toAny[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
