package store

import (
	"context"
	"errors"

	"worktally/internal/domain"
	"worktally/internal/events"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrProjectExists   = errors.New("project already exists")
	ErrVersionConflict = errors.New("document version conflict")
	ErrUnavailable     = errors.New("store unavailable")
)

// Snapshot is a full, self-contained copy of a project document at a
// committed version.
type Snapshot struct {
	Version int64          `json:"version"`
	Project domain.Project `json:"project"`
}

// OnSnapshot receives a snapshot for every committed change to a
// subscribed project. Delivery order is not guaranteed to match commit
// order; consumers reconcile by version.
type OnSnapshot func(Snapshot)

// Store is a versioned, per-document project store. Update is guarded by
// the caller's last observed version: a stale version yields
// ErrVersionConflict and the document is left untouched.
type Store interface {
	Get(ctx context.Context, projectID string) (Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	Create(ctx context.Context, p domain.Project, evts ...events.Event) (Snapshot, error)
	Update(ctx context.Context, p domain.Project, expectedVersion int64, evts ...events.Event) (Snapshot, error)
	Delete(ctx context.Context, projectID string, evts ...events.Event) error
	Subscribe(projectID string, fn OnSnapshot) *Subscription
}

// SubscribeAll subscribes fn to every project in the store.
const SubscribeAll = "*"
