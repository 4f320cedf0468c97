package pipeline

import (
	"sync"
	"time"
)

// GeneratedImage describes the most recently generated image.
type GeneratedImage struct {
	Path        string
	Prompt      string
	GeneratedAt time.Time
}

// Session holds the single "last generated image" slot. It starts empty, is overwritten
// by every generation, and is only reset by creating a new Session.
type Session struct {
	mu      sync.RWMutex
	current *GeneratedImage
}

// NewSession creates a session with no image.
func NewSession() *Session {
	return &Session{}
}

// Current returns the last generated image, or false if none has been generated yet.
func (s *Session) Current() (GeneratedImage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return GeneratedImage{}, false
	}
	return *s.current, true
}

func (s *Session) set(img GeneratedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &img
}
