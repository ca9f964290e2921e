package models

import (
	"strings"
	"time"
)

// TimestampLayout is the dd.mm.YYYY HH:MM:SS form used for timestamps on the wire.
const TimestampLayout = "02.01.2006 15:04:05"

// ParseTimestamp parses a wire timestamp as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(value), time.UTC)
}

// FormatTimestamp renders t in UTC with a trailing zone marker.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout) + " UTC"
}
