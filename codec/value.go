// Package codec implements the wire encoding used to move structured data
// through Redis streams and hashes, which only carry strings.
//
// Canonical encoding (per design note in the specification this module
// implements) is plain JSON: every non-scalar field value is JSON-encoded
// before being written, and JSON-decoded by the reader. The permissive,
// multi-strategy string-to-dict parser this package also exposes is kept
// only as a compatibility shim at legacy ingress boundaries - data produced
// by Python's str(dict) repr, which is not valid JSON (single-quoted
// strings, bare None/True/False) - and should not be reached for anything
// this module itself writes.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a tagged variant carrying any JSON-representable value through a
// statically typed pipeline: a string, number, bool, null, list, or nested
// dict. Stringify and ParseDict work in terms of Value; task details and
// handler results themselves are plain map[string]interface{} values that
// are wrapped with NewValue at the encoding boundary.
type Value struct {
	raw interface{}
}

// NewValue wraps an already-decoded Go value (string, float64, bool, nil,
// []interface{}, map[string]interface{}) as a Value.
func NewValue(v interface{}) Value { return Value{raw: v} }

// Interface returns the underlying decoded value.
func (v Value) Interface() interface{} { return v.raw }

// IsNull reports whether the value is JSON null / an unset Value.
func (v Value) IsNull() bool { return v.raw == nil }

// String returns the value formatted as a string. For a Value that is
// itself a string this is the string verbatim; for anything else it is
// fmt.Sprintf("%v", ...), matching how scalar task details are flattened
// onto the wire.
func (v Value) String() string {
	if s, ok := v.raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v.raw)
}

// Field looks up a key in a Value holding a dict, returning (zero, false)
// if the value is not a dict or the key is absent.
func (v Value) Field(key string) (Value, bool) {
	m, ok := v.raw.(map[string]interface{})
	if !ok {
		return Value{}, false
	}
	f, ok := m[key]
	if !ok {
		return Value{}, false
	}
	return Value{raw: f}, true
}

// MarshalJSON makes Value a transparent json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

// UnmarshalJSON makes Value a transparent json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &v.raw)
}

// IsScalar reports whether v is a string, number, bool, or null - the set of
// types that are carried on the wire as a literal rather than a
// JSON-stringified blob. Dispatch uses this to decide whether a task detail
// needs encoding before being placed into stream fields.
func (v Value) IsScalar() bool {
	switch v.raw.(type) {
	case nil, string, bool, float64, int, int64:
		return true
	default:
		return false
	}
}

// Stringify renders v as it would appear on the wire: scalars pass through
// String(), everything else (lists, dicts) is JSON-encoded.
func Stringify(v Value) (string, error) {
	if v.IsScalar() {
		return v.String(), nil
	}
	data, err := json.Marshal(v.raw)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseDict decodes s into a dict Value using, in order: strict JSON,
// then a permissive Python-literal-style parser accepting single-quoted
// strings and bare None/True/False, then the same permissive parser after
// normalizing escaped single quotes. Returns an error only if all three
// strategies fail. This is the Go analogue of the reference implementation's
// robust_string_to_dict and exists purely for ingress compatibility - new
// code in this module should write and read JSON directly instead of relying
// on it.
func ParseDict(s string) (Value, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return Value{raw: v}, nil
	}

	if v, err := parsePythonLiteral(s); err == nil {
		return Value{raw: v}, nil
	}

	cleaned := strings.ReplaceAll(s, `\'`, `'`)
	if v, err := parsePythonLiteral(cleaned); err == nil {
		return Value{raw: v}, nil
	}

	return Value{}, fmt.Errorf("codec: could not parse %q as a dict via any strategy", truncate(s, 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
