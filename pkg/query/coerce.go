package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/bellflower/pkg/models"
)

func coerce(t FieldType, raw any) (any, error) {
	if raw == nil {
		return nil, fmt.Errorf("value is required")
	}

	switch t {
	case Text:
		switch v := raw.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int, int64, bool:
			return fmt.Sprint(v), nil
		}
	case Integer:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%v is not an integer", v)
			}
			return int64(v), nil
		case json.Number:
			return v.Int64()
		case string:
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
	case Boolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		}
	case Timestamp:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			return parseTime(v)
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", raw, t)
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if ts, err := models.ParseTimestamp(value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("%q is not a timestamp", value)
}

// coerceList accepts a comma-separated string or a list and coerces each trimmed element.
func coerceList(t FieldType, raw any) ([]any, error) {
	var items []any
	switch v := raw.(type) {
	case string:
		items = ectolinq.Map(strings.Split(v, ","), func(s string) any { return s })
	case []any:
		items = v
	case []string:
		items = ectolinq.Map(v, func(s string) any { return s })
	default:
		items = []any{raw}
	}

	items = ectolinq.Map(items, func(item any) any {
		if s, ok := item.(string); ok {
			return strings.TrimSpace(s)
		}
		return item
	})
	items = ectolinq.Filter(items, func(item any) bool {
		s, ok := item.(string)
		return !ok || s != ""
	})

	values := make([]any, 0, len(items))
	for _, item := range items {
		value, err := coerce(t, item)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}
