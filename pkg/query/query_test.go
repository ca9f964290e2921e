package query

import (
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = Schema{
	Fields: map[string]Field{
		"id":         {Column: "id", Type: Integer},
		"data":       {Column: "data", Type: Text},
		"is_read":    {Column: "is_read", Type: Boolean},
		"created_at": {Column: "created_at", Type: Timestamp},
		"read_at":    {Column: "read_at", Type: Timestamp},
	},
	TieBreaker: "id",
}

func forAdmin(sb *sqlbuilder.SelectBuilder) []string {
	return []string{sb.Equal("for_admin", true)}
}

func TestNormalizeDefaults(t *testing.T) {
	req := Request{Page: 0, PageSize: -3}.Normalize()
	assert.Equal(t, DefaultPage, req.Page)
	assert.Equal(t, DefaultPageSize, req.PageSize)

	req = Request{Page: 3, PageSize: 10}.Normalize()
	assert.Equal(t, 3, req.Page)
	assert.Equal(t, 10, req.PageSize)
	assert.Equal(t, 20, req.offset())
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 3, TotalPages(125, 50))
	assert.Equal(t, 2, TotalPages(100, 50))
	assert.Equal(t, 1, TotalPages(1, 50))
	assert.Equal(t, 0, TotalPages(0, 50))
}

func TestBuildCountSharesFiltersWithoutOrderOrLimit(t *testing.T) {
	stmts, req, err := Build("notification", nil, testSchema, forAdmin, Request{
		Filters: []Filter{{Field: "data", Operator: "LIKE", Value: "Created"}},
		Order:   []Order{{Field: "created_at", Direction: Desc}},
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT COUNT(*) FROM notification WHERE for_admin = $1 AND LOWER(data) LIKE $2 ESCAPE '\'`, stmts.Count)
	assert.Equal(t, []any{true, "%created%"}, stmts.CountArgs)

	assert.Contains(t, stmts.List, `WHERE for_admin = $1 AND LOWER(data) LIKE $2 ESCAPE '\'`)
	assert.Contains(t, stmts.List, "ORDER BY created_at DESC NULLS LAST, id ASC NULLS LAST")
	assert.Contains(t, stmts.List, "LIMIT")
	assert.Equal(t, 50, req.PageSize)
}

func TestBuildDefaultOrderIsIDAscending(t *testing.T) {
	stmts, _, err := Build("message", nil, testSchema, nil, Request{})
	require.NoError(t, err)
	assert.Contains(t, stmts.List, "ORDER BY id ASC NULLS LAST")
	assert.NotContains(t, stmts.List, "WHERE")
	assert.Equal(t, "SELECT COUNT(*) FROM message", stmts.Count)
}

func TestBuildRejectsUnknownField(t *testing.T) {
	_, _, err := Build("notification", nil, testSchema, nil, Request{
		Filters: []Filter{{Field: "1=1; DROP TABLE notification", Operator: OperatorEq, Value: "x"}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	_, _, err = Build("notification", nil, testSchema, nil, Request{
		Order: []Order{{Field: "password", Direction: Asc}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestBuildSkipsUnknownOperator(t *testing.T) {
	stmts, _, err := Build("notification", nil, testSchema, nil, Request{
		Filters: []Filter{
			{Field: "data", Operator: "regex", Value: ".*"},
			{Field: "is_read", Operator: OperatorEq, Value: "false"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM notification WHERE is_read = $1", stmts.Count)
	assert.Equal(t, []any{false}, stmts.CountArgs)
}

func TestLikeRequiresTextField(t *testing.T) {
	_, _, err := Build("notification", nil, testSchema, nil, Request{
		Filters: []Filter{{Field: "id", Operator: OperatorLike, Value: "1"}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestInAcceptsCommaSeparatedAndLists(t *testing.T) {
	stmts, _, err := Build("message", nil, testSchema, nil, Request{
		Filters: []Filter{{Field: "id", Operator: OperatorIn, Value: " 1, 2 ,3,"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM message WHERE id IN ($1, $2, $3)", stmts.Count)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, stmts.CountArgs)

	stmts, _, err = Build("message", nil, testSchema, nil, Request{
		Filters: []Filter{{Field: "data", Operator: OperatorIn, Value: []any{" a ", "b"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, stmts.CountArgs)
}

func TestComparisonCoercesDeclaredType(t *testing.T) {
	stmts, _, err := Build("notification", nil, testSchema, nil, Request{
		Filters: []Filter{
			{Field: "created_at", Operator: OperatorGe, Value: "01.02.2025 00:00:00"},
			{Field: "id", Operator: OperatorLt, Value: float64(40)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM notification WHERE created_at >= $1 AND id < $2", stmts.Count)
	assert.Equal(t, []any{time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), int64(40)}, stmts.CountArgs)

	_, _, err = Build("notification", nil, testSchema, nil, Request{
		Filters: []Filter{{Field: "id", Operator: OperatorEq, Value: "seven"}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestLikeEscapesWildcards(t *testing.T) {
	stmts, _, err := Build("notification", nil, testSchema, nil, Request{
		Filters: []Filter{{Field: "data", Operator: OperatorLike, Value: `50%_off\now`}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{`%50\%\_off\\now%`}, stmts.CountArgs)
}

func TestTargets(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"eq", Filter{Field: "recipient_user_uuid", Operator: "EQ", Value: "u"}, true},
		{"eq empty", Filter{Field: "recipient_user_uuid", Operator: OperatorEq, Value: " "}, false},
		{"in", Filter{Field: "recipient_user_uuid", Operator: OperatorIn, Value: "u1, u2"}, true},
		{"in empty", Filter{Field: "recipient_user_uuid", Operator: OperatorIn, Value: " , "}, false},
		{"ne", Filter{Field: "recipient_user_uuid", Operator: OperatorNe, Value: "u"}, false},
		{"like", Filter{Field: "recipient_user_uuid", Operator: OperatorLike, Value: ""}, false},
		{"other field", Filter{Field: "data", Operator: OperatorEq, Value: "u"}, false},
		{"unknown operator", Filter{Field: "recipient_user_uuid", Operator: "unknown", Value: "u"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Filters: []Filter{tt.filter}}
			assert.Equal(t, tt.want, req.Targets("recipient_user_uuid"))
		})
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage[int](nil, 125, Request{Page: 3, PageSize: 50})
	assert.NotNil(t, page.Items)
	assert.Equal(t, 0, page.Count)
	assert.Equal(t, 125, page.TotalRecords)
	assert.Equal(t, 3, page.TotalPages)
}
