// Package codec converts between caller-visible values and DuckDB's
// native parameter/result representations: lists, fixed arrays,
// structs, maps, timestamps with precision/timezone, blobs and JSON,
// plus the per-connection prepared-statement cache that sits in front
// of the engine's compile step.
package codec

import "time"

// Kind tags a Value with the engine-native shape it should bind as.
// Untagged caller values (plain int/float/bool/string) skip Value
// entirely and are bound directly.
type Kind string

const (
	KindList      Kind = "list"
	KindArray     Kind = "array"
	KindStruct    Kind = "struct"
	KindMap       Kind = "map"
	KindTimestamp Kind = "timestamp"
	KindBlob      Kind = "blob"
	KindJSON      Kind = "json"

	// KindPGJSON tags a value the caller declared using PostgreSQL's
	// JSON/JSONB type, which this adapter refuses at prepare time; it
	// carries no engine-native form of its own.
	KindPGJSON Kind = "pg_json"
)

// Value is the tagged variant wrapper a caller (or a higher-level
// query builder) attaches to a bind parameter so the codec knows how
// to encode it, and attaches to a result column so the codec knows
// how to decode it. Only the fields relevant to Kind are read.
type Value struct {
	Kind Kind

	// List / Array: an ordered sequence, with ElementKind describing
	// each element if it too needs tagging (nested lists, lists of
	// structs). Array additionally carries Length for the fixed-size
	// form.
	Elements    []any
	ElementKind Kind
	Length      int

	// Struct: a keyed record. FieldOrder preserves declaration order
	// since DuckDB's STRUCT type is itself ordered.
	Fields     map[string]any
	FieldOrder []string

	// Map: a string-keyed mapping, bound as DuckDB's native MAP type
	// (internally list-of-keys + list-of-values; the Go driver
	// exposes it as a single keyed mapping on both sides).
	MapKeys   []string
	MapValues []any

	// Timestamp: WithTZ selects timestamptz semantics; Precision is
	// the number of fractional-second digits (0 means second
	// precision), matching DuckDB's TIMESTAMP/TIMESTAMPTZ variants.
	// DecodeAsString records a preference for the "canonical string"
	// decode mode; Decode does not read it (the per-column choice is
	// DecodeMode.TimestampAsString).
	Time           time.Time
	WithTZ         bool
	Precision      int
	DecodeAsString bool

	// Blob: a raw byte buffer, bound/decoded as DuckDB's BLOB type.
	Bytes []byte

	// JSON: an arbitrary structured value bound/decoded through
	// DuckDB's native JSON logical type.
	JSON any

	// Column names the source column, used only for diagnostics on
	// KindPGJSON rejection.
	Column string
}

// List tags an ordered sequence as a DuckDB LIST parameter.
func List(elements []any) Value { return Value{Kind: KindList, Elements: elements} }

// Array tags an ordered sequence with a fixed length. Encode binds it
// exactly like List (the element slice as-is); length is recorded on
// the Value but not checked against the elements or applied to the
// bound parameter.
func Array(elements []any, length int) Value {
	return Value{Kind: KindArray, Elements: elements, Length: length}
}

// Struct tags a keyed record as a DuckDB STRUCT parameter.
func Struct(order []string, fields map[string]any) Value {
	return Value{Kind: KindStruct, FieldOrder: order, Fields: fields}
}

// Map tags a string-keyed mapping as a DuckDB MAP parameter.
func Map(keys []string, values []any) Value {
	return Value{Kind: KindMap, MapKeys: keys, MapValues: values}
}

// Timestamp tags a point in time. Encode honors withTZ (the time is
// converted to UTC); precision is recorded on the Value but Encode
// does not truncate or round the time to it.
func Timestamp(t time.Time, withTZ bool, precision int) Value {
	return Value{Kind: KindTimestamp, Time: t, WithTZ: withTZ, Precision: precision}
}

// Blob tags a byte buffer as a DuckDB BLOB parameter.
func Blob(b []byte) Value { return Value{Kind: KindBlob, Bytes: b} }

// JSON tags an arbitrary value to bind/decode through DuckDB's native
// JSON logical type.
func JSON(v any) Value { return Value{Kind: KindJSON, JSON: v} }

// PGJSON tags a value the caller declared with PostgreSQL's JSON or
// JSONB type. It is never a valid bind parameter; Prepare rejects it.
func PGJSON(column string) Value { return Value{Kind: KindPGJSON, Column: column} }
