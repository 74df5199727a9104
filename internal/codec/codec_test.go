package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAll_RejectsPGJSON(t *testing.T) {
	_, err := EncodeAll([]any{1, PGJSON("profile")})
	require.Error(t, err)
	var de *DisallowedColumnError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "profile", de.Column)
}

func TestEncodeAll_PassesThroughPlainValues(t *testing.T) {
	out, err := EncodeAll([]any{1, "a", true, nil})
	require.NoError(t, err)
	assert.Equal(t, []any{1, "a", true, nil}, out)
}

func TestEncode_List(t *testing.T) {
	out, err := Encode(List([]any{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, out)
}

func TestEncode_StructKeepsDeclaredFieldValues(t *testing.T) {
	v := Struct([]string{"b", "a"}, map[string]any{"a": 1, "b": 2})
	out, err := Encode(v)
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, 2, m["b"])
	assert.Equal(t, 1, m["a"])
}

func TestEncode_MapMismatchedLengthsErrors(t *testing.T) {
	_, err := Encode(Map([]string{"a", "b"}, []any{1}))
	require.Error(t, err)
}

func TestEncode_TimestampHonorsTZFlag(t *testing.T) {
	loc := time.FixedZone("x", 3600)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	out, err := Encode(Timestamp(ts, true, 6))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, out.(time.Time).Location())
}

func TestEncode_JSONMarshals(t *testing.T) {
	out, err := Encode(JSON(map[string]any{"a": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, out.(string))
}

func TestDecode_JSONColumn(t *testing.T) {
	v, err := Decode(`{"a":1}`, DecodeMode{Kind: KindJSON})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)
}

func TestDecode_ListFromLegacyBraceText(t *testing.T) {
	v, err := Decode("{1,2,3}", DecodeMode{Kind: KindList})
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2", "3"}, v)
}

func TestDecode_ListFromInvalidTextYieldsNil(t *testing.T) {
	v, err := Decode("not-an-array", DecodeMode{Kind: KindList})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDecode_TimestampAsCanonicalString(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	v, err := Decode(ts, DecodeMode{Kind: KindTimestamp, TimestampAsString: true})
	require.NoError(t, err)
	assert.IsType(t, "", v)
}

func TestDecode_NilRawReturnsNil(t *testing.T) {
	v, err := Decode(nil, DecodeMode{Kind: KindBlob})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFingerprint_DistinguishesKindsAndTypes(t *testing.T) {
	f1 := Fingerprint([]any{1, "a"})
	f2 := Fingerprint([]any{List([]any{1}), "a"})
	assert.NotEqual(t, f1, f2)
}
