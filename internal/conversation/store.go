package conversation

import "context"

// Store holds open conversations keyed by actor id. Interface-driven so the
// machine stays testable and the lifecycle (insert on start, remove on
// terminal) is explicit rather than buried in a process-global map.
type Store interface {
	Get(ctx context.Context, actorID int64) (*State, error)
	// Replace installs the state, discarding any prior one for the same
	// actor. Last-writer-wins on re-entry is the single place the
	// silent-discard decision lives; revisit here if it ever becomes a
	// confirm-first flow.
	Replace(ctx context.Context, state *State) error
	Remove(ctx context.Context, actorID int64) error
	Count(ctx context.Context) (int, error)
}
