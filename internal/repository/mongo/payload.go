package mongo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/shcorya/distributed-workers/internal/domain"
)

// Payloads are arbitrary JSON values, while Extended JSON only accepts a
// document at the top level, so the value travels wrapped in {"v": ...}.
type wrappedValue struct {
	V bson.RawValue `bson:"v"`
}

type wrappedJSON struct {
	V json.RawMessage `json:"v"`
}

// encodePayload picks the stored form of a payload. It returns a native BSON
// value, so stored results stay queryable, when that value reads back as the
// same JSON. Otherwise it returns the payload bytes unchanged: numbers
// outside the BSON ranges, invalid UTF-8, NUL in keys and Extended JSON
// keywords such as {"$numberLong":"5"} all take that path.
func encodePayload(payload json.RawMessage) (bson.RawValue, []byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return bson.RawValue{}, nil, fmt.Errorf("encode payload: %w: invalid JSON", domain.ErrPayloadRejected)
	}

	v, err := payloadToBSON(payload)
	if err != nil {
		return bson.RawValue{}, append([]byte(nil), payload...), nil
	}
	back, err := payloadToJSON(v)
	if err != nil || !sameJSON(payload, back) {
		return bson.RawValue{}, append([]byte(nil), payload...), nil
	}
	return v, nil, nil
}

// decodePayload is the inverse of encodePayload.
func decodePayload(native bson.RawValue, raw []byte) (json.RawMessage, error) {
	if raw != nil {
		return json.RawMessage(raw), nil
	}
	if native.Type == 0 {
		return json.RawMessage("null"), nil
	}
	return payloadToJSON(native)
}

// payloadToBSON converts a JSON payload into a BSON value via relaxed
// Extended JSON.
func payloadToBSON(payload json.RawMessage) (bson.RawValue, error) {
	doc := make([]byte, 0, len(payload)+6)
	doc = append(doc, `{"v":`...)
	doc = append(doc, payload...)
	doc = append(doc, '}')

	var w wrappedValue
	if err := bson.UnmarshalExtJSON(doc, false, &w); err != nil {
		return bson.RawValue{}, fmt.Errorf("convert payload to bson: %w", err)
	}
	return w.V, nil
}

// payloadToJSON converts a stored BSON value back into relaxed JSON.
func payloadToJSON(v bson.RawValue) (json.RawMessage, error) {
	doc, err := bson.MarshalExtJSON(wrappedValue{V: v}, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert payload to json: %w", err)
	}
	var w wrappedJSON
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, fmt.Errorf("convert payload to json: %w", err)
	}
	return w.V, nil
}

// sameJSON reports whether a and b hold the same JSON value. Numbers are
// compared by their literal text, so a value that lost precision differs.
func sameJSON(a, b []byte) bool {
	if !utf8.Valid(a) || !utf8.Valid(b) {
		return false
	}
	va, err := decodeNumbers(a)
	if err != nil {
		return false
	}
	vb, err := decodeNumbers(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

func decodeNumbers(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
