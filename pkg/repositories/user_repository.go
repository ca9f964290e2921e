package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/database"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

const usersTable = "users"

var (
	userStruct     = database.NewStruct(new(models.User))
	contactsStruct = database.NewStruct(new(models.UserContacts))
)

// UserRepository reads identities and contact preferences from the users table
type UserRepository struct {
	*Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.DB, logger ectologger.Logger) *UserRepository {
	return &UserRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByUUID returns the user with the given uuid.
func (r *UserRepository) GetByUUID(ctx context.Context, userUUID string) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.GetByUUID")
	defer span.End()

	sb := userStruct.SelectFrom(usersTable)
	sb.Where(sb.Equal("uuid", userUUID))

	query, args := sb.Build()
	var user models.User
	err := r.Q(ctx).GetContext(ctx, &user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("user %s does not exist", userUUID)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, r.internal(ctx, err, map[string]any{"user_uuid": userUUID}, "failed to get user")
	}
	return &user, nil
}

// Contacts returns the delivery addresses and opt-ins of a user.
func (r *UserRepository) Contacts(ctx context.Context, userUUID string) (*models.UserContacts, error) {
	ctx, span := tracing.StartSpan(ctx, "UserRepository.Contacts")
	defer span.End()

	sb := contactsStruct.SelectFrom(usersTable)
	sb.Where(sb.Equal("uuid", userUUID))

	query, args := sb.Build()
	var contacts models.UserContacts
	err := r.Q(ctx).GetContext(ctx, &contacts, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("user %s does not exist", userUUID)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, r.internal(ctx, err, map[string]any{"user_uuid": userUUID}, "failed to get user contacts")
	}
	return &contacts, nil
}
