package query

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// FieldType is the declared type values are coerced to
type FieldType int

const (
	Text FieldType = iota
	Integer
	Boolean
	Timestamp
)

func (t FieldType) String() string {
	switch t {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Field maps a public field name onto a column with a declared type.
type Field struct {
	Column string
	Type   FieldType
}

// Schema is the allow-list of filterable and sortable fields for one entity.
type Schema struct {
	Fields map[string]Field
	// DefaultOrder is used when the request carries no order items.
	DefaultOrder []Order
	// TieBreaker is appended to every ordering so pages never overlap.
	TieBreaker string
}

func (s Schema) field(name string) (Field, error) {
	f, ok := s.Fields[name]
	if !ok {
		return Field{}, badInput("unknown field %q", name)
	}
	return f, nil
}

// Conditions renders filters as WHERE expressions bound to sb's arguments.
// Unknown operators are skipped. Unknown fields and uncoercible values fail.
func (s Schema) Conditions(sb *sqlbuilder.SelectBuilder, filters []Filter) ([]string, error) {
	conditions := make([]string, 0, len(filters))
	for _, filter := range filters {
		field, err := s.field(filter.Field)
		if err != nil {
			return nil, err
		}

		op := Operator(strings.ToLower(strings.TrimSpace(string(filter.Operator))))
		if !op.known() {
			continue
		}

		condition, err := s.condition(sb, filter.Field, field, op, filter.Value)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, condition)
	}
	return conditions, nil
}

// likeEscaper makes a like value match literally as a substring.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s Schema) condition(sb *sqlbuilder.SelectBuilder, name string, field Field, op Operator, raw any) (string, error) {
	switch op {
	case OperatorLike:
		if field.Type != Text {
			return "", badInput("operator like is not supported on %s field %q", field.Type, name)
		}
		value, err := coerce(Text, raw)
		if err != nil {
			return "", badInput("invalid value for %q: %v", name, err)
		}
		pattern := "%" + likeEscaper.Replace(strings.ToLower(value.(string))) + "%"
		return fmt.Sprintf("LOWER(%s) LIKE %s ESCAPE '\\'", field.Column, sb.Var(pattern)), nil
	case OperatorIn:
		values, err := coerceList(field.Type, raw)
		if err != nil {
			return "", badInput("invalid value for %q: %v", name, err)
		}
		if len(values) == 0 {
			return "1 = 0", nil
		}
		return sb.In(field.Column, values...), nil
	}

	value, err := coerce(field.Type, raw)
	if err != nil {
		return "", badInput("invalid value for %q: %v", name, err)
	}

	switch op {
	case OperatorEq:
		return sb.Equal(field.Column, value), nil
	case OperatorNe:
		return sb.NotEqual(field.Column, value), nil
	case OperatorGt:
		return sb.GreaterThan(field.Column, value), nil
	case OperatorLt:
		return sb.LessThan(field.Column, value), nil
	case OperatorGe:
		return sb.GreaterEqualThan(field.Column, value), nil
	default:
		return sb.LessEqualThan(field.Column, value), nil
	}
}

// OrderBy renders order items as ORDER BY terms, NULLS LAST in both directions.
func (s Schema) OrderBy(orders []Order) ([]string, error) {
	if len(orders) == 0 {
		orders = s.DefaultOrder
	}
	if len(orders) == 0 {
		orders = []Order{{Field: "id", Direction: Asc}}
	}

	terms := make([]string, 0, len(orders)+1)
	seen := map[string]bool{}
	for _, order := range orders {
		field, err := s.field(order.Field)
		if err != nil {
			return nil, err
		}

		direction := "ASC"
		switch Direction(strings.ToLower(strings.TrimSpace(string(order.Direction)))) {
		case Asc, "":
		case Desc:
			direction = "DESC"
		default:
			return nil, badInput("invalid order direction %q", order.Direction)
		}

		terms = append(terms, fmt.Sprintf("%s %s NULLS LAST", field.Column, direction))
		seen[field.Column] = true
	}

	if s.TieBreaker != "" && !seen[s.TieBreaker] {
		terms = append(terms, fmt.Sprintf("%s ASC NULLS LAST", s.TieBreaker))
	}
	return terms, nil
}
