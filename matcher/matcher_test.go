package matcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAny tests the universal matcher.
func TestAny(t *testing.T) {
	assert.True(t, Any[int]().Matches(0))
	assert.True(t, Any[string]().Matches("anything"))
}

// TestOnly tests exact matching.
func TestOnly(t *testing.T) {
	m := Only("a")
	assert.True(t, m.Matches("a"))
	assert.False(t, m.Matches("b"))
}

// TestCombinators tests Not, And and Or composition.
func TestCombinators(t *testing.T) {
	hasPrefix := Func(func(s string) bool { return strings.HasPrefix(s, "Get") })
	short := Func(func(s string) bool { return len(s) < 8 })

	assert.True(t, And(hasPrefix, short).Matches("GetId"))
	assert.False(t, And(hasPrefix, short).Matches("GetEverything"))
	assert.True(t, Or(hasPrefix, short).Matches("Put"))
	assert.False(t, Or(hasPrefix, short).Matches("PutEverything"))
	assert.True(t, Not(hasPrefix).Matches("Put"))
	assert.False(t, Not(hasPrefix).Matches("GetId"))
}
