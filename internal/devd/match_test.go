package devd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"umass*", "umass0", true},
		{"umass*", "umass12", true},
		{"umass*", "disk0", false},
		{"*", "", true},
		{"*", "anything", true},
		{"*", "a", true},
		{"", "", true},
		{"", "da0", false},
		{"da0", "da0", true},
		{"da0", "da1", false},
		{"da0", "da", false},
		{"da", "da0", false},
		{"*0", "da0", true},
		{"*0", "da1", false},
		{"da*", "da", true},
		{"DEVFS", "DEVFS", true},
		{"DEVFS", "devfs", false},
	}

	for _, tc := range tests {
		t.Run(tc.pattern+"/"+tc.value, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(tc.pattern, tc.value))
		})
	}
}

func TestMatch_NoBacktracking(t *testing.T) {
	// The wildcard gives way at the first byte equal to the one after it, so
	// the literal tail cannot line up with the rest of the value.
	assert.False(t, Match("*ab", "aab"))
	assert.False(t, Match("d*0", "d00"))
}
