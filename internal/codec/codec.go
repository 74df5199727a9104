package codec

import (
	"encoding/json"
	"fmt"
)

// DisallowedColumnError is returned by EncodeAll when a bind parameter
// is tagged KindPGJSON. internal/session returns it before any engine
// call, and the root package's translateSessionErr turns it into
// duckpg.NewUnsupportedColumnError.
type DisallowedColumnError struct {
	Column string
}

func (e *DisallowedColumnError) Error() string {
	return fmt.Sprintf("column %q bound as PostgreSQL JSON/JSONB", e.Column)
}

// EncodeAll converts every bind parameter to its engine-native form.
// It returns a *DisallowedColumnError the moment it finds a
// KindPGJSON value, so the rejection happens at prepare time, before
// any engine call.
func EncodeAll(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, ok := a.(Value)
		if !ok {
			out[i] = a
			continue
		}
		if v.Kind == KindPGJSON {
			return nil, &DisallowedColumnError{Column: v.Column}
		}
		enc, err := Encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// Encode converts a single tagged Value into the form the DuckDB
// driver accepts as a bind parameter.
func Encode(v Value) (any, error) {
	switch v.Kind {
	case KindList, KindArray:
		return v.Elements, nil
	case KindStruct:
		return orderedStruct(v), nil
	case KindMap:
		if len(v.MapKeys) != len(v.MapValues) {
			return nil, fmt.Errorf("codec: map has %d keys but %d values", len(v.MapKeys), len(v.MapValues))
		}
		m := make(map[string]any, len(v.MapKeys))
		for i, k := range v.MapKeys {
			m[k] = v.MapValues[i]
		}
		return m, nil
	case KindTimestamp:
		if v.WithTZ {
			return v.Time.UTC(), nil
		}
		return v.Time, nil
	case KindBlob:
		return v.Bytes, nil
	case KindJSON:
		b, err := json.Marshal(v.JSON)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal json parameter: %w", err)
		}
		return string(b), nil
	case KindPGJSON:
		return nil, &DisallowedColumnError{Column: v.Column}
	default:
		return nil, fmt.Errorf("codec: unknown value kind %q", v.Kind)
	}
}

// orderedStruct materializes a STRUCT parameter as a map holding the
// fields named in FieldOrder (every field when FieldOrder is empty).
// The result is a plain Go map, so the declared field order is not
// carried into the bound value.
func orderedStruct(v Value) map[string]any {
	if len(v.FieldOrder) == 0 {
		return v.Fields
	}
	out := make(map[string]any, len(v.FieldOrder))
	for _, name := range v.FieldOrder {
		out[name] = v.Fields[name]
	}
	return out
}

// DecodeMode tells Decode what per-column shape a caller expects.
type DecodeMode struct {
	Kind Kind

	// TimestampAsString selects the canonical-string decode mode for
	// a timestamp column instead of a time.Time result.
	TimestampAsString bool
}

// Decode converts a single raw engine result column into the
// caller-visible shape described by mode. raw is whatever the
// database/sql scan produced for that column.
func Decode(raw any, mode DecodeMode) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch mode.Kind {
	case KindList, KindArray:
		switch t := raw.(type) {
		case []any:
			return t, nil
		case string:
			seq, ok := DecodeLegacyArrayText(t)
			if !ok {
				return nil, nil // invalid text yields an unset result; the codec does not fabricate values
			}
			return seq, nil
		default:
			return raw, nil
		}
	case KindStruct, KindMap:
		return raw, nil
	case KindTimestamp:
		return decodeTimestamp(raw, mode.TimestampAsString)
	case KindBlob:
		if b, ok := raw.([]byte); ok {
			return b, nil
		}
		return raw, nil
	case KindJSON:
		return decodeJSON(raw)
	default:
		return raw, nil
	}
}

func decodeJSON(raw any) (any, error) {
	var text string
	switch t := raw.(type) {
	case string:
		text = t
	case []byte:
		text = string(t)
	default:
		return raw, nil
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("codec: decode json column: %w", err)
	}
	return v, nil
}
