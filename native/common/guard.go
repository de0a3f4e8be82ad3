package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects a module interaction while its pause switch is set.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switches is a concurrency-safe PauseView backed by a flag set.
type Switches struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewSwitches constructs an all-clear switch set.
func NewSwitches() *Switches {
	return &Switches{paused: make(map[string]bool)}
}

// SetPaused flips one module's pause switch.
func (s *Switches) SetPaused(module string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[module] = paused
}

// IsPaused implements PauseView.
func (s *Switches) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}
