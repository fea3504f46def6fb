package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool", IRBool(true), "true"},
		{"plain int", 7, "7"},
		{"plain bool", false, "false"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"ints", Ints([]int{3, 1, 2}), "[3,1,2]"},
		{"nested", IRObject{"b": IRArray{IRInt(1)}, "a": IRObject{"z": IRBool(false)}}, `{"a":{"z":false},"b":[1]}`},
		{"any map", map[string]any{"y": "q", "x": []any{1, true}}, `{"x":[1,true],"y":"q"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalRejectsFloatAndNull(t *testing.T) {
	for _, v := range []any{nil, 1.5, float32(2), map[string]any{"a": 0.1}, []any{nil}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%v", v)
	}
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no html escaping", "<a>&", `"<a>&"`},
		{"quote and backslash", `q"\`, `"q\"\\"`},
		{"newline and tab", "a\nb\tc", `"a\nb\tc"`},
		{"control char", "\x01", `"\u0001"`},
		{"line separator literal", "\u2028", "\"\u2028\""},
		{"nfc", "e\u0301", "\"\u00e9\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D..., which sort before U+FF5E in
	// UTF-16 but after it in UTF-8.
	obj := IRObject{"～": IRInt(1), "\U0001F600": IRInt(2), "a": IRInt(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "～"}, obj.SortedKeys())
}
