package time_parser

import (
	"errors"
	"fmt"
	"time"
)

var ErrEmptyTimestamp = errors.New("timestamp is empty")

// isoLayouts are tried in order; layouts without a zone are read as UTC.
var isoLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts a cut-off given by a client into UTC time.
// Accepted values:
//   - ISO strings in one of isoLayouts
//   - Unix timestamps in seconds (< 1e12) or milliseconds as int, int64 or float64
//
// Unlike ingestion, a missing value is an error rather than "now".
func ParseTimestamp(timestamp any) (time.Time, error) {
	switch v := timestamp.(type) {
	case nil:
		return time.Time{}, ErrEmptyTimestamp

	case string:
		if v == "" {
			return time.Time{}, ErrEmptyTimestamp
		}

		for _, layout := range isoLayouts {
			if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
				return t.UTC(), nil
			}
		}

		return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", v)

	case float64:
		// JSON numbers are decoded as float64
		return fromUnix(int64(v)), nil

	case int64:
		return fromUnix(v), nil

	case int:
		return fromUnix(int64(v)), nil

	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", timestamp)
	}
}

func fromUnix(v int64) time.Time {
	// milliseconds once past ~2001-09-09 in seconds
	if v > 1e12 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}
