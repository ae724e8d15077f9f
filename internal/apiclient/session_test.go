package apiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSessionChanged(t *testing.T) {
	s := NewSession()
	ch := s.Changed()
	assert.False(t, isClosed(ch))

	s.SetToken("a")
	assert.True(t, isClosed(ch))
	assert.Equal(t, "a", s.Token())

	ch = s.Changed()
	s.SetToken("a")
	assert.False(t, isClosed(ch), "same token is not a change")

	s.Clear()
	assert.True(t, isClosed(ch))
	assert.Empty(t, s.Token())
}

func TestSessionGeneration(t *testing.T) {
	s := NewSession()
	_, g0 := s.snapshot()

	s.SetToken("a")
	tok, g1 := s.snapshot()
	assert.Equal(t, "a", tok)
	assert.Greater(t, g1, g0)

	s.SetToken("a")
	_, same := s.snapshot()
	assert.Equal(t, g1, same)

	ch := s.Changed()
	s.expire()
	tok, g2 := s.snapshot()
	assert.Empty(t, tok)
	assert.Greater(t, g2, g1)
	assert.True(t, isClosed(ch))

	// A failed refresh with no token still moves the generation.
	ch = s.Changed()
	s.expire()
	_, g3 := s.snapshot()
	assert.Greater(t, g3, g2)
	assert.False(t, isClosed(ch))
}
