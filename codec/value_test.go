package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDict_StrictJSON(t *testing.T) {
	v, err := ParseDict(`{"result": "HI", "count": 2}`)
	require.NoError(t, err)
	f, ok := v.Field("result")
	require.True(t, ok)
	assert.Equal(t, "HI", f.String())
}

func TestParseDict_PythonLiteral(t *testing.T) {
	v, err := ParseDict(`{'result': 'HI', 'count': 2, 'active': True, 'missing': None}`)
	require.NoError(t, err)

	f, ok := v.Field("result")
	require.True(t, ok)
	assert.Equal(t, "HI", f.String())

	active, ok := v.Field("active")
	require.True(t, ok)
	assert.Equal(t, true, active.Interface())

	missing, ok := v.Field("missing")
	require.True(t, ok)
	assert.True(t, missing.IsNull())
}

func TestParseDict_EscapedSingleQuoteFallback(t *testing.T) {
	v, err := ParseDict(`{\'result\': \'HI\'}`)
	require.NoError(t, err)
	f, ok := v.Field("result")
	require.True(t, ok)
	assert.Equal(t, "HI", f.String())
}

func TestParseDict_AllStrategiesFail(t *testing.T) {
	_, err := ParseDict(`not a dict at all {{{`)
	assert.Error(t, err)
}

// roundtrip verifies ParseDict(Stringify(x)) == x for every scalar and
// container shape the wire contract needs to carry.
func TestRoundTrip_StringifyThenParse(t *testing.T) {
	original := map[string]interface{}{
		"s":     "hello",
		"i":     float64(7),
		"f":     3.5,
		"b":     true,
		"n":     nil,
		"list":  []interface{}{"a", float64(1), false},
		"child": map[string]interface{}{"nested": "value"},
	}

	data, err := Stringify(NewValue(original))
	require.NoError(t, err)

	parsed, err := ParseDict(data)
	require.NoError(t, err)

	assert.Equal(t, original, parsed.Interface())
}
