package codec

import (
	"fmt"
	"time"
)

// canonicalTimestampLayout is the normalized string form timestamps
// decode to when a column's mode requests text instead of time.Time.
const canonicalTimestampLayout = "2006-01-02 15:04:05.999999-07:00"

func decodeTimestamp(raw any, asString bool) (any, error) {
	t, err := coerceTime(raw)
	if err != nil {
		return nil, err
	}
	if asString {
		return t.UTC().Format(canonicalTimestampLayout), nil
	}
	return t, nil
}

func coerceTime(raw any) (time.Time, error) {
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return *t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("codec: parse timestamp text %q: %w", t, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("codec: cannot decode %T as timestamp", raw)
	}
}
