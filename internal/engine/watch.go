package engine

import (
	"context"
	"sync"

	"worktally/internal/cache"
	"worktally/internal/store"
)

// ProjectUpdate is delivered to subscribers on every reconciled change.
// Totals are recomputed from the snapshot's task list so the view never
// trusts persisted totals it did not derive.
type ProjectUpdate struct {
	Snapshot store.Snapshot
	Totals   Totals
}

// Watch is the handle for an active project subscription. Cancel is
// idempotent and safe to call after the subscription already ended.
type Watch struct {
	once sync.Once
	sub  *store.Subscription
}

func (w *Watch) Cancel() {
	w.once.Do(func() {
		if w.sub != nil {
			w.sub.Cancel()
		}
	})
}

// SubscribeToProject delivers a ProjectUpdate for the current state and
// then for every subsequent committed change. Duplicate or stale pushes
// are absorbed by the reconciled cache and never reach onUpdate.
func (e Engine) SubscribeToProject(ctx context.Context, projectID string, onUpdate func(ProjectUpdate)) (*Watch, error) {
	c := cache.New()
	var mu sync.Mutex
	deliver := func(snap store.Snapshot) {
		// serialized so onUpdate observes versions in increasing order
		mu.Lock()
		defer mu.Unlock()
		if !c.Apply(snap) {
			return
		}
		onUpdate(ProjectUpdate{Snapshot: snap, Totals: Aggregate(snap.Project.Tasks)})
	}

	// register before the initial read so no commit falls in the gap;
	// the cache drops whichever of the two arrives stale
	sub := e.Store.Subscribe(projectID, deliver)
	snap, err := e.Store.Get(ctx, projectID)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	deliver(snap)
	return &Watch{sub: sub}, nil
}
