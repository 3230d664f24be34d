// Package session holds the dashboard's process-wide mutable state: the
// active symbol and the paused flag. It is owned by the reconciliation loop
// and passed by reference to renderers and the control channel.
package session

import (
	"strings"
	"sync"

	"github.com/newthinker/tradewatch/internal/core"
)

// Session is safe for concurrent use
type Session struct {
	mu      sync.RWMutex
	active  string
	paused  bool
	changes int

	selections chan string
}

// New creates an empty session
func New() *Session {
	return &Session{selections: make(chan string, 1)}
}

// ActiveSymbol returns the symbol driving chart, trade filter and signal
func (s *Session) ActiveSymbol() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// EnsureActive sets symbol as active only when none is active yet and
// reports whether it did.
func (s *Session) EnsureActive(symbol string) bool {
	if symbol == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return false
	}
	s.active = symbol
	s.changes++
	return true
}

// Select makes symbol active and enqueues an immediate extra cycle. A
// selection that is still pending is replaced by the newer one.
func (s *Session) Select(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return core.ErrInvalidSymbol
	}

	s.mu.Lock()
	if s.active != symbol {
		s.active = symbol
		s.changes++
	}
	s.mu.Unlock()

	for {
		select {
		case s.selections <- symbol:
			return nil
		default:
		}
		select {
		case <-s.selections:
		default:
		}
	}
}

// Selections delivers one notification per user selection, coalesced
func (s *Session) Selections() <-chan string {
	return s.selections
}

// Paused reports the last state confirmed by the backend
func (s *Session) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetPaused adopts a backend-confirmed state. Only the control channel
// calls this.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// SymbolChanges counts how many times the active symbol changed
func (s *Session) SymbolChanges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes
}
