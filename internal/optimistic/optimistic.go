// Package optimistic implements the snapshot, speculative apply, then commit or
// restore sequence used by stores that update local state before the server
// has confirmed a change.
package optimistic

import "context"

// Update describes one speculative change to a store slice.
type Update[S any] struct {
	// Snapshot captures the part of the state Apply is about to touch.
	Snapshot func() S
	// Apply performs the speculative mutation.
	Apply func()
	// Restore puts the captured snapshot back.
	Restore func(S)
	// Keep reports whether a failed remote call still confirms the change,
	// e.g. a duplicate-like rejection. Nil means every failure restores.
	Keep func(error) bool
}

// Run snapshots, applies, then calls remote. The snapshot is restored when
// remote fails (unless Keep accepts the error) or panics. The remote error is
// returned unchanged so callers can classify it.
func (u Update[S]) Run(ctx context.Context, remote func(context.Context) error) error {
	saved := u.Snapshot()
	u.Apply()

	defer func() {
		if p := recover(); p != nil {
			u.Restore(saved)
			panic(p)
		}
	}()

	if err := remote(ctx); err != nil {
		if u.Keep != nil && u.Keep(err) {
			return err
		}
		u.Restore(saved)
		return err
	}
	return nil
}
