package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Scalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", "", `""`},
		{"int", Int(42), "42"},
		{"negative int", -100, "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool", true, "true"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array", Array{Int(1), Int(2), Int(3)}, "[1,2,3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshal_SortedKeys(t *testing.T) {
	got, err := Marshal(Object{
		"zebra": Int(1),
		"alpha": Object{"b": Int(1), "a": Int(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"zebra":1}`, string(got))
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before
	// U+E000 in UTF-16 but after it in UTF-8.
	got, err := Marshal(Object{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(got))
}

func TestMarshal_NoHTMLEscape(t *testing.T) {
	got, err := Marshal("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(got))
}

func TestMarshal_LineSeparatorsLiteral(t *testing.T) {
	got, err := Marshal("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))

	got, err = Marshal(`\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got), "escaped backslash stays escaped")
}

func TestMarshal_NFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := Marshal(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestCanonicalize(t *testing.T) {
	got, err := Canonicalize([]byte(`{ "b" : [1, 2], "a": {"y": true, "x": "s"} }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"x":"s","y":true},"b":[1,2]}`, string(got))
}

func TestCanonicalize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"float", `{"a":1.5}`},
		{"exponent", `{"a":1e3}`},
		{"null", `{"a":null}`},
		{"trailing", `{} {}`},
		{"overflow", `{"a":9223372036854775808}`},
		{"malformed", `{"a":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestMarshalStruct_FollowsTags(t *testing.T) {
	type rec struct {
		Zed   int64  `json:"zed"`
		Alpha string `json:"alpha,omitempty"`
	}
	got, err := MarshalStruct(rec{Zed: 3})
	require.NoError(t, err)
	assert.Equal(t, `{"zed":3}`, string(got))
}

func TestInstanceHandle(t *testing.T) {
	h := InstanceHandle("BaseCommitment", 0, "alice")
	assert.Len(t, h, 32)
	assert.Equal(t, h, InstanceHandle("BaseCommitment", 0, "alice"))
	assert.NotEqual(t, h, InstanceHandle("BaseCommitment", 1, "alice"))
	assert.NotEqual(t, h, InstanceHandle("BaseCommitment", 0, "bob"))
	assert.NotEqual(t, h, InstanceHandle("AlarmCommitment", 0, "alice"))
}

func TestHashDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainInstance, data), hashWithDomain(DomainHistory, data))

	d1, err := HistoryDigest([]map[string]any{{"seq": 1}})
	require.NoError(t, err)
	d2, err := HistoryDigest([]map[string]any{{"seq": 1}})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}
