// Package textx contains tests for the text utilities.
package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestSanitizePayload(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"clean passthrough", "123 Main St", "123 Main St"},
		{"empty", "", ""},
		{"whitespace only kept verbatim", "   ", "   "},
		{"newline only is blank", "\n\t ", "\n\t "},
		{"single newline", "123 Main St\nApt 4", "123 Main St Apt 4"},
		{"crlf", "Test\r\nValue", "Test Value"},
		{"tabs", "value\twith\ttabs", "value with tabs"},
		{"newline run collapses once", "line1\n\n\nline2", "line1 line2"},
		{"mixed control run", "a\r\n\n\tb", "a b"},
		{"space before newline", "a \n b", "a b"},
		{"double space collapses", "a  b", "a b"},
		{"single space untouched", "a b", "a b"},
		{"form feed untouched", "a\fb", "a\fb"},
		{"nul untouched", "a\x00b", "a\x00b"},
		{"leading newline", "\nhello", " hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SanitizePayload(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, SanitizePayload(got), "must be idempotent")
		})
	}
}

func TestSanitizeBatch_OrderAndCardinality(t *testing.T) {
	t.Parallel()
	in := []*string{strptr("a\nb"), strptr("clean"), strptr("c\td")}
	out := SanitizeBatch(in)
	require.Len(t, out, len(in))
	assert.Equal(t, "a b", *out[0])
	assert.Equal(t, "clean", *out[1])
	assert.Equal(t, "c d", *out[2])
}

func TestSanitizeBatch_NilItemStaysNil(t *testing.T) {
	t.Parallel()
	out := SanitizeBatch([]*string{nil, strptr("x\ny"), nil})
	require.Len(t, out, 3)
	assert.Nil(t, out[0])
	assert.Equal(t, "x y", *out[1])
	assert.Nil(t, out[2])
}

func TestSanitizeBatch_Empty(t *testing.T) {
	t.Parallel()
	out := SanitizeBatch(nil)
	require.NotNil(t, out)
	assert.Len(t, out, 0)

	out = SanitizeBatch([]*string{})
	assert.Len(t, out, 0)
}

func TestSanitizeBatch_DoesNotMutateInput(t *testing.T) {
	t.Parallel()
	orig := "keep\nme"
	in := []*string{&orig}
	_ = SanitizeBatch(in)
	assert.Equal(t, "keep\nme", orig)
}
