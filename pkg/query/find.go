package query

import (
	"context"

	"github.com/huandu/go-sqlbuilder"
)

// Selecter is satisfied by sqlx.DB, sqlx.Tx and the database wrappers.
type Selecter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Scope returns fixed conditions placed ahead of the caller's filters.
type Scope func(sb *sqlbuilder.SelectBuilder) []string

// Statements holds the list and count queries built from one request.
type Statements struct {
	List      string
	ListArgs  []any
	Count     string
	CountArgs []any
}

// Build renders the list query and a count query that shares its WHERE clause without ORDER BY or LIMIT.
func Build(table string, columns []string, schema Schema, scope Scope, req Request) (*Statements, Request, error) {
	req = req.Normalize()

	where := func(sb *sqlbuilder.SelectBuilder) error {
		var conditions []string
		if scope != nil {
			conditions = append(conditions, scope(sb)...)
		}
		filters, err := schema.Conditions(sb, req.Filters)
		if err != nil {
			return err
		}
		conditions = append(conditions, filters...)
		if len(conditions) > 0 {
			sb.Where(conditions...)
		}
		return nil
	}

	countSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSB.Select("COUNT(*)").From(table)
	if err := where(countSB); err != nil {
		return nil, req, err
	}

	orderBy, err := schema.OrderBy(req.Order)
	if err != nil {
		return nil, req, err
	}

	if len(columns) == 0 {
		columns = []string{"*"}
	}
	listSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	listSB.Select(columns...).From(table)
	if err := where(listSB); err != nil {
		return nil, req, err
	}
	listSB.OrderBy(orderBy...)
	listSB.Limit(req.PageSize).Offset(req.offset())

	stmts := &Statements{}
	stmts.List, stmts.ListArgs = listSB.Build()
	stmts.Count, stmts.CountArgs = countSB.Build()
	return stmts, req, nil
}

// Find runs the count and list queries and assembles a page.
func Find[T any](ctx context.Context, q Selecter, table string, schema Schema, scope Scope, req Request) (*Page[T], error) {
	stmts, req, err := Build(table, nil, schema, scope, req)
	if err != nil {
		return nil, err
	}

	var total int
	if err := q.GetContext(ctx, &total, stmts.Count, stmts.CountArgs...); err != nil {
		return nil, err
	}

	items := []T{}
	if total > 0 {
		if err := q.SelectContext(ctx, &items, stmts.List, stmts.ListArgs...); err != nil {
			return nil, err
		}
	}

	return NewPage(items, total, req), nil
}
