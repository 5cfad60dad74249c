package mongo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/shcorya/distributed-workers/internal/domain"
)

func TestPayloadConversion(t *testing.T) {
	cases := map[string]string{
		"object": `{"x":1,"name":"job","tags":["a","b"],"nested":{"ok":true}}`,
		"array":  `[1,2,3]`,
		"string": `"hello"`,
		"number": `42`,
		"float":  `1.5`,
		"bool":   `false`,
		"null":   `null`,
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			native, raw, err := encodePayload(json.RawMessage(in))
			require.NoError(t, err)
			assert.Nil(t, raw, "expected a native value")

			out, err := decodePayload(native, raw)
			require.NoError(t, err)
			assert.JSONEq(t, in, string(out))
		})
	}
}

// Payloads without a faithful BSON form are kept byte for byte.
func TestPayloadConversion_KeepsRawBytes(t *testing.T) {
	cases := map[string]string{
		"uint64 beyond int64": `{"n":12345678901234567890}`,
		"exponent overflow":   `{"n":1e400}`,
		"invalid utf-8":       "{\"s\":\"\xff\"}",
		"nul in key":          `{"a\u0000b":1}`,
		"extended json":       `{"$numberLong":"5"}`,
		"exponent form":       `{"n":1E5}`,
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			native, raw, err := encodePayload(json.RawMessage(in))
			require.NoError(t, err)
			assert.Equal(t, in, string(raw))
			assert.True(t, native.IsZero())

			out, err := decodePayload(native, raw)
			require.NoError(t, err)
			assert.Equal(t, in, string(out))
		})
	}
}

func TestEncodePayload_StoresNativeDocument(t *testing.T) {
	v, raw, err := encodePayload(json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	require.Nil(t, raw)

	assert.Equal(t, bson.TypeEmbeddedDocument, v.Type)
	x, err := v.Document().LookupErr("x")
	require.NoError(t, err)
	assert.Equal(t, int32(1), x.Int32())
}

func TestEncodePayload_RejectsInvalidJSON(t *testing.T) {
	_, _, err := encodePayload(json.RawMessage(`{"x":`))
	assert.ErrorIs(t, err, domain.ErrPayloadRejected)
}

func TestResultModelRoundTrip(t *testing.T) {
	completed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &domain.JobResult{
		ID:          7,
		Outcome:     "bb4d5c5ab1b84b5b5c5bd8ec4c6bd8a1",
		Payload:     json.RawMessage(`{"x":1}`),
		CompletedAt: completed,
	}

	m, err := toResultModel(in)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.ID)

	raw, err := bson.Marshal(m)
	require.NoError(t, err)
	var decoded resultModel
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	out, err := fromResultModel(&decoded)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Outcome, out.Outcome)
	assert.JSONEq(t, `{"x":1}`, string(out.Payload))
	assert.True(t, completed.Equal(out.CompletedAt))
}

func TestResultModelRoundTrip_RawPayload(t *testing.T) {
	in := &domain.JobResult{
		ID:          8,
		Outcome:     "x",
		Payload:     json.RawMessage(`{"n":12345678901234567890}`),
		CompletedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	m, err := toResultModel(in)
	require.NoError(t, err)

	raw, err := bson.Marshal(m)
	require.NoError(t, err)
	doc := bson.Raw(raw)
	_, err = doc.LookupErr("payload")
	assert.Error(t, err, "native payload field must be omitted")

	var decoded resultModel
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	out, err := fromResultModel(&decoded)
	require.NoError(t, err)
	assert.Equal(t, string(in.Payload), string(out.Payload))
}
