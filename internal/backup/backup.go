// Package backup persists session snapshots so a game can be resumed after a
// crash or loaded later for analysis.
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/hotelling/internal/game"
	"github.com/lox/hotelling/internal/identity"
	"github.com/lox/hotelling/internal/turn"
)

// ErrNoSnapshot is returned by Load when nothing was saved yet.
var ErrNoSnapshot = errors.New("backup: no snapshot")

// Snapshot is everything needed to resume a session.
type Snapshot struct {
	SessionID     string            `json:"session_id"`
	SavedAt       time.Time         `json:"saved_at"`
	Params        game.Params       `json:"params"`
	Identity      identity.Snapshot `json:"identity"`
	Initialized   []bool            `json:"initialized"`
	Ready         bool              `json:"ready"`
	Phase         turn.Phase        `json:"phase"`
	StopRequested bool              `json:"stop_requested"`
	Current       game.Turn         `json:"current_state"`
	History       []game.Turn       `json:"history"`
}

// Turn is the turn number the snapshot was taken at.
func (s *Snapshot) Turn() int { return len(s.History) }

// Validate checks the snapshot is internally consistent.
func (s *Snapshot) Validate() error {
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if len(s.Identity.Roles) != s.Params.Agents() {
		return fmt.Errorf("%d roles for %d agents", len(s.Identity.Roles), s.Params.Agents())
	}
	if len(s.Initialized) != s.Params.Agents() {
		return fmt.Errorf("%d init flags for %d agents", len(s.Initialized), s.Params.Agents())
	}
	return nil
}

// Store saves and loads snapshots.
type Store interface {
	// Save durably records snap. It returns once the write is on disk.
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns the most recent snapshot, or ErrNoSnapshot.
	Load(ctx context.Context) (*Snapshot, error)
	Close() error
}

// Discard is a Store that keeps nothing, for games run without a save file.
type Discard struct{}

func (Discard) Save(context.Context, *Snapshot) error { return nil }

func (Discard) Load(context.Context) (*Snapshot, error) { return nil, ErrNoSnapshot }

func (Discard) Close() error { return nil }
