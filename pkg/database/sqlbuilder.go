package database

import (
	"errors"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

func NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return sqlbuilder.PostgreSQL.NewInsertBuilder()
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// NewStruct returns a PostgreSQL-flavoured struct builder keyed on db tags.
func NewStruct(v any) *sqlbuilder.Struct {
	return sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
