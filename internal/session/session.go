// Package session tracks per-caller workspace state. A session is keyed by an
// opaque token supplied by the caller; its only payload is the draft workspace
// the caller is working in. Stores are pluggable: Redis for multi-process
// deployments, memory for single-process and tests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/draftline/draftline/internal/engine/workspace"
)

// ErrSessionNotFound is returned when no state exists for a session token
var ErrSessionNotFound = errors.New("session not found")

// DefaultTTL is the sliding expiration applied to session state
const DefaultTTL = 8 * time.Hour

// State is the persisted per-session payload
type State struct {
	// WorkspaceID is the active draft workspace; 0 means live-only
	WorkspaceID int64 `json:"workspaceId"`

	// UpdatedAt is the last touch time, epoch seconds
	UpdatedAt int64 `json:"updatedAt"`
}

// Store persists session state under a token
type Store interface {
	Get(ctx context.Context, token string) (*State, error)
	Set(ctx context.Context, token string, state *State, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

// Manager implements workspace selection on top of a Store. It satisfies the
// engine's workspace context interface.
type Manager struct {
	store Store
	ttl   time.Duration

	// defaultWorkspace is the workspace SwitchToOptimal activates
	defaultWorkspace int64

	now func() time.Time
}

var _ workspace.Context = (*Manager)(nil)

// NewManager creates a session manager. defaultWorkspace is the workspace id
// activated by SwitchToOptimal; 0 disables draft staging by default.
func NewManager(store Store, defaultWorkspace int64) *Manager {
	return &Manager{
		store:            store,
		ttl:              DefaultTTL,
		defaultWorkspace: defaultWorkspace,
		now:              time.Now,
	}
}

// ActiveWorkspace returns the workspace active for the session. An unknown or
// expired session reports live-only rather than failing, so a stale token
// degrades instead of breaking reads.
func (m *Manager) ActiveWorkspace(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	state, err := m.store.Get(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return state.WorkspaceID, nil
}

// SwitchToOptimal activates the configured default workspace for the session
// and returns its id
func (m *Manager) SwitchToOptimal(ctx context.Context, token string) (int64, error) {
	if token == "" || m.defaultWorkspace == 0 {
		return 0, nil
	}
	if err := m.SetActiveWorkspace(ctx, token, m.defaultWorkspace); err != nil {
		return 0, err
	}
	return m.defaultWorkspace, nil
}

// SetActiveWorkspace pins a session to a specific workspace. Workspace 0
// clears the session back to live-only.
func (m *Manager) SetActiveWorkspace(ctx context.Context, token string, workspaceID int64) error {
	if workspaceID == 0 {
		err := m.store.Delete(ctx, token)
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	state := &State{WorkspaceID: workspaceID, UpdatedAt: m.now().Unix()}
	return m.store.Set(ctx, token, state, m.ttl)
}
