package uniuri

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	s := New()
	assert.Len(t, s, StdLen)

	for _, c := range s {
		assert.Contains(t, string(StdChars), string(c))
	}
}

func TestNewLen(t *testing.T) {
	for _, length := range []int{0, 1, 8, 64} {
		assert.Len(t, NewLen(length), length)
	}
}

func TestNewLenChars(t *testing.T) {
	chars := []byte("ab")

	s := NewLenChars(100, chars)
	assert.Len(t, s, 100)
	assert.Equal(t, 100, strings.Count(s, "a")+strings.Count(s, "b"))
}

func TestNewIsRandom(t *testing.T) {
	assert.NotEqual(t, New(), New())
}
