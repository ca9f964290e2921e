// Package query implements the filter, order and pagination grammar shared by the list endpoints.
package query

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// Pagination defaults applied by Normalize
const (
	DefaultPage     = 1
	DefaultPageSize = 50
)

// Operator is a filter comparison
type Operator string

const (
	OperatorEq   Operator = "eq"
	OperatorNe   Operator = "ne"
	OperatorGt   Operator = "gt"
	OperatorLt   Operator = "lt"
	OperatorGe   Operator = "ge"
	OperatorLe   Operator = "le"
	OperatorLike Operator = "like"
	OperatorIn   Operator = "in"
)

func (o Operator) known() bool {
	switch o {
	case OperatorEq, OperatorNe, OperatorGt, OperatorLt, OperatorGe, OperatorLe, OperatorLike, OperatorIn:
		return true
	}
	return false
}

// Direction is a sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Filter narrows a list to rows whose field compares to Value
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Order sorts a list by one field
type Order struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Request is the body accepted by every list endpoint.
type Request struct {
	Filters  []Filter `json:"filters"`
	Order    []Order  `json:"order"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// Normalize applies the page defaults and lower-cases operators and directions.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	if r.PageSize < 1 {
		r.PageSize = DefaultPageSize
	}
	filters := make([]Filter, 0, len(r.Filters))
	for _, f := range r.Filters {
		f.Operator = Operator(strings.ToLower(strings.TrimSpace(string(f.Operator))))
		filters = append(filters, f)
	}
	r.Filters = filters
	return r
}

// Targets reports whether the request pins field to explicit values, through eq with a
// non-empty value or an in with at least one element. Other operators never count.
func (r Request) Targets(field string) bool {
	for _, f := range r.Filters {
		if f.Field != field {
			continue
		}
		switch Operator(strings.ToLower(strings.TrimSpace(string(f.Operator)))) {
		case OperatorEq:
			if value, err := coerce(Text, f.Value); err == nil && strings.TrimSpace(value.(string)) != "" {
				return true
			}
		case OperatorIn:
			if values, err := coerceList(Text, f.Value); err == nil && len(values) > 0 {
				return true
			}
		}
	}
	return false
}

func (r Request) offset() int {
	return (r.Page - 1) * r.PageSize
}

// Page is one page of results plus totals computed under the same filters.
type Page[T any] struct {
	Items        []T `json:"data"`
	Count        int `json:"count"`
	TotalRecords int `json:"total_records"`
	TotalPages   int `json:"total_pages"`
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
}

// NewPage wraps one page of items with totals for req
func NewPage[T any](items []T, total int, req Request) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:        items,
		Count:        len(items),
		TotalRecords: total,
		TotalPages:   TotalPages(total, req.PageSize),
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
}

// TotalPages is ceil(total / pageSize).
func TotalPages(total, pageSize int) int {
	if pageSize < 1 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func badInput(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, format, args...)
}
