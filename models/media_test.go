// ABOUTME: Tests for the media key derivation and post id ordering
// ABOUTME: The key must be stable across runs; ordering is numeric via length-then-lex

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaKey_StableAndDistinct(t *testing.T) {
	key1 := MediaKey("123", "https://cdn.example/a.jpg")
	key2 := MediaKey("123", "https://cdn.example/a.jpg")
	key3 := MediaKey("123", "https://cdn.example/b.jpg")
	key4 := MediaKey("124", "https://cdn.example/a.jpg")

	assert.Equal(t, key1, key2)
	assert.NotEqual(t, key1, key3)
	assert.NotEqual(t, key1, key4)
	assert.Len(t, key1, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", key1)
}

func TestMediaKey_SeparatorPreventsCollisions(t *testing.T) {
	// "1" + "2x" must not collide with "12" + "x".
	assert.NotEqual(t, MediaKey("1", "2x"), MediaKey("12", "x"))
}

func TestCompareIDs_NumericOrdering(t *testing.T) {
	assert.Negative(t, CompareIDs("99", "100"), "shorter id is numerically smaller")
	assert.Positive(t, CompareIDs("100", "99"))
	assert.Negative(t, CompareIDs("100", "101"))
	assert.Zero(t, CompareIDs("100", "100"))
	assert.Positive(t, CompareIDs("1880000000000000000", "99"))
}
