// Package permission persists the user's speech-capture grant.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbright/hark/internal/session"
)

type record struct {
	State     session.AuthState `json:"state"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store is a file-backed session.Authorizer. A missing file means the user
// has not been asked yet.
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Status returns the persisted state, or prompt when nothing usable is stored.
func (s *Store) Status(context.Context) session.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return session.AuthPrompt
	}
	return state
}

// Request records consent given through the CLI and returns the new state.
func (s *Store) Request(ctx context.Context) (session.AuthState, error) {
	if err := ctx.Err(); err != nil {
		return session.AuthPrompt, err
	}
	if err := s.Set(session.AuthGranted); err != nil {
		return session.AuthPrompt, err
	}
	return session.AuthGranted, nil
}

// Set persists an explicit decision. Setting prompt forgets the decision.
func (s *Store) Set(state session.AuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case session.AuthPrompt:
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reset permission: %w", err)
		}
		return nil
	case session.AuthGranted, session.AuthDenied:
	default:
		return fmt.Errorf("unknown permission state %q", state)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create permission dir: %w", err)
	}
	data, err := json.Marshal(record{State: state, UpdatedAt: s.now().UTC()})
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write permission: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write permission: %w", err)
	}
	return nil
}

func (s *Store) load() (session.AuthState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return session.AuthPrompt, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return session.AuthPrompt, fmt.Errorf("decode permission: %w", err)
	}
	switch rec.State {
	case session.AuthGranted, session.AuthDenied:
		return rec.State, nil
	default:
		return session.AuthPrompt, fmt.Errorf("unknown permission state %q", rec.State)
	}
}
