package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/database"
)

// NotFound returns a 404 HTTP error with a descriptive message
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Forbidden returns a 403 HTTP error
func Forbidden(message string) error {
	return httperror.NewHTTPError(http.StatusForbidden, message)
}

// BadRequest returns a 400 HTTP error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// Conflict returns a 409 HTTP error
func Conflict(message string) error {
	return httperror.NewHTTPError(http.StatusConflict, message)
}

// Repository holds the shared database handle and logger
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the database instance
func (r *Repository) DB() database.DB {
	return r.db
}

// Q returns the open transaction in ctx, or the pool.
func (r *Repository) Q(ctx context.Context) database.Querier {
	return database.Q(ctx, r.db)
}

func (r *Repository) internal(ctx context.Context, err error, fields map[string]any, message string) error {
	r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error(message)
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

func isClientError(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) < http.StatusInternalServerError
}
