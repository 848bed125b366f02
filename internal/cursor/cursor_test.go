package cursor

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_Roundtrip(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		orderKey string
		offset   int
	}{
		{name: "first row", typeName: "AuthorPostsConnection", offset: 0},
		{name: "ordered", typeName: "AuthorPostsConnection", orderKey: "reverse:id", offset: 9},
		{name: "root list", typeName: "Post", orderKey: "title", offset: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeCursor(tt.typeName, tt.orderKey, tt.offset)
			require.NotEmpty(t, encoded)

			gotType, gotKey, gotOffset, err := DecodeCursor(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.typeName, gotType)
			assert.Equal(t, tt.orderKey, gotKey)
			assert.Equal(t, tt.offset, gotOffset)
		})
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "not base64", raw: "!!!", want: "invalid cursor"},
		{name: "not json", raw: base64.StdEncoding.EncodeToString([]byte("nope")), want: "invalid cursor format"},
		{name: "wrong version", raw: base64.StdEncoding.EncodeToString([]byte(`{"v":2,"t":"Post","o":1}`)), want: "unsupported version"},
		{name: "missing type", raw: base64.StdEncoding.EncodeToString([]byte(`{"v":1,"o":1}`)), want: "missing type"},
		{name: "negative offset", raw: base64.StdEncoding.EncodeToString([]byte(`{"v":1,"t":"Post","o":-1}`)), want: "negative offset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := DecodeCursor(tt.raw)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestAfter(t *testing.T) {
	raw := EncodeCursor("Post", "id", 4)

	offset, err := After(raw, "Post", "id")
	require.NoError(t, err)
	assert.Equal(t, 5, offset)

	_, err = After(raw, "Tag", "id")
	assert.ErrorContains(t, err, "cursor type mismatch")

	_, err = After(raw, "Post", "title")
	assert.ErrorContains(t, err, "cursor order mismatch")
}
