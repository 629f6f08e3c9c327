// Package session persists game sessions and compacts their history into
// story memories.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

// ErrNotFound is returned when a session id has no saved state.
var ErrNotFound = errors.New("session not found")

// Store abstracts session persistence (SQLite, Redis).
// Save is an upsert keyed by session id.
type Store interface {
	Save(ctx context.Context, st *game.State) error
	Load(ctx context.Context, id string) (*game.State, error)
	// List returns summaries ordered by UpdatedAt, newest first.
	List(ctx context.Context) ([]SessionInfo, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// SessionInfo is a lightweight summary of a saved session (for listing).
type SessionInfo struct {
	ID          string
	PersonaName string
	UserName    string
	Affection   int
	Messages    int
	Ended       bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func infoFor(st *game.State) SessionInfo {
	info := SessionInfo{
		ID:        st.SessionID,
		UserName:  st.UserName,
		Affection: st.Affection,
		Messages:  len(st.History),
		Ended:     st.Ended(),
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
	if st.Persona != nil {
		info.PersonaName = st.Persona.Name
	}
	return info
}
