package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    NodeAddress
		wantErr error
	}{
		{"onion", "abcdefghijklmnop.onion:9999", NodeAddress{"abcdefghijklmnop.onion", 9999}, nil},
		{"localhost", "localhost:2002", NodeAddress{"localhost", 2002}, nil},
		{"empty", "", NodeAddress{}, ErrEmptyAddress},
		{"no port", "localhost", NodeAddress{}, ErrInvalidAddress},
		{"port zero", "localhost:0", NodeAddress{}, ErrInvalidPort},
		{"port too large", "localhost:65536", NodeAddress{}, ErrInvalidPort},
		{"port not a number", "localhost:abc", NodeAddress{}, ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNodeAddress(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNodeAddress_Equality(t *testing.T) {
	a := NewNodeAddress("aaa.onion", 9999)
	b := NewNodeAddress("aaa.onion", 9999)
	c := NewNodeAddress("aaa.onion", 9998)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	m := map[NodeAddress]int{a: 1}
	assert.Equal(t, 1, m[b])
	_, ok := m[c]
	assert.False(t, ok)
}

func TestNodeAddress_Helpers(t *testing.T) {
	onion := NewNodeAddress("aaa.onion", 9999)
	local := NewNodeAddress(LocalhostHost, 2002)

	assert.True(t, onion.IsOnion())
	assert.False(t, local.IsOnion())
	assert.Equal(t, "aaa.onion:9999", onion.String())
	assert.Equal(t, "<none>", NodeAddress{}.String())
	assert.True(t, NodeAddress{}.IsZero())

	long := NewNodeAddress("abcdefghijklmnopqrstuvwxyz234567abcdefghijklmnopqrstuvwx.onion", 9999)
	assert.Equal(t, "abcdefghij....onion:9999", long.ShortString())
}
