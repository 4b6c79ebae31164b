package workspace

import "context"

// Context reports which draft workspace is active for a caller session.
// 0 means no draft workspace: reads and writes target live rows directly.
type Context interface {
	// ActiveWorkspace returns the workspace id currently active for the session
	ActiveWorkspace(ctx context.Context, session string) (int64, error)

	// SwitchToOptimal activates the session's preferred workspace and
	// returns its id
	SwitchToOptimal(ctx context.Context, session string) (int64, error)
}

// liveOnly is a Context with no draft workspace support
type liveOnly struct{}

// LiveOnly returns a Context that always reports no active workspace, for
// deployments without draft staging.
func LiveOnly() Context { return liveOnly{} }

func (liveOnly) ActiveWorkspace(context.Context, string) (int64, error) { return 0, nil }
func (liveOnly) SwitchToOptimal(context.Context, string) (int64, error) { return 0, nil }
