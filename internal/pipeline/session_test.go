package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_StartsEmpty(t *testing.T) {
	s := NewSession()
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestSession_SetOverwrites(t *testing.T) {
	s := NewSession()
	s.set(GeneratedImage{Path: "a.jpg", Prompt: "first"})
	s.set(GeneratedImage{Path: "a.jpg", Prompt: "second"})

	current, ok := s.Current()
	assert.True(t, ok)
	assert.Equal(t, "second", current.Prompt)
}
