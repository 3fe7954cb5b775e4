package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"worktally/internal/domain"
	"worktally/internal/events"
)

// SQLite stores each project as a single versioned JSON document. Every
// committed change bumps the version by one and fans the new snapshot out
// to subscribers of that project.
type SQLite struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time

	mu     sync.Mutex
	nextID int64
	subs   map[int64]*subscriber
}

type subscriber struct {
	projectID string
	fn        OnSnapshot
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{
		DB:   db,
		Now:  time.Now,
		subs: make(map[int64]*subscriber),
	}
}

func (s *SQLite) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQLite) Get(ctx context.Context, projectID string) (Snapshot, error) {
	return scanSnapshot(s.DB.QueryRowContext(ctx,
		`SELECT version, doc_json FROM documents WHERE project_id=?`, projectID))
}

func (s *SQLite) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT version, doc_json FROM documents ORDER BY created_at DESC, project_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var res []Snapshot
	for rows.Next() {
		var snap Snapshot
		var doc string
		if err := rows.Scan(&snap.Version, &doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(doc), &snap.Project); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		res = append(res, snap)
	}
	return res, rows.Err()
}

func (s *SQLite) Create(ctx context.Context, p domain.Project, evts ...events.Event) (Snapshot, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode document: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents(project_id,version,doc_json,created_at,updated_at) VALUES (?,1,?,?,?)`,
		p.ID, string(doc), now, now); err != nil {
		// the open tx holds the pool's only connection; query it, not the pool
		var exists int
		if scanErr := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE project_id=?`, p.ID).Scan(&exists); scanErr == nil {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrProjectExists, p.ID)
		}
		return Snapshot{}, err
	}
	for _, evt := range evts {
		if err := s.Events.Append(ctx, tx, p.ID, evt); err != nil {
			return Snapshot{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	snap := Snapshot{Version: 1, Project: p}
	s.notify(snap)
	return snap, nil
}

// Update replaces the document only if expectedVersion is still current.
// On success the committed version is expectedVersion+1.
func (s *SQLite) Update(ctx context.Context, p domain.Project, expectedVersion int64, evts ...events.Event) (Snapshot, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode document: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `UPDATE documents SET version=version+1, doc_json=?, updated_at=? WHERE project_id=? AND version=?`,
		string(doc), now, p.ID, expectedVersion)
	if err != nil {
		return Snapshot{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Snapshot{}, err
	}
	if affected == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE project_id=?`, p.ID).Scan(&current)
		if err == sql.ErrNoRows {
			return Snapshot{}, ErrNotFound
		}
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("%w: expected %d, have %d", ErrVersionConflict, expectedVersion, current)
	}
	for _, evt := range evts {
		if err := s.Events.Append(ctx, tx, p.ID, evt); err != nil {
			return Snapshot{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	snap := Snapshot{Version: expectedVersion + 1, Project: p}
	s.notify(snap)
	return snap, nil
}

func (s *SQLite) Delete(ctx context.Context, projectID string, evts ...events.Event) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE project_id=?`, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, evt := range evts {
		if err := s.Events.Append(ctx, tx, projectID, evt); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Subscribe registers fn for snapshots of projectID (or SubscribeAll).
// The handle's Cancel is idempotent.
func (s *SQLite) Subscribe(projectID string, fn OnSnapshot) *Subscription {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = &subscriber{projectID: projectID, fn: fn}
	s.mu.Unlock()

	sub := &Subscription{}
	sub.cancel = func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return sub
}

// notify delivers the snapshot to matching subscribers off the caller's
// goroutine. The document re-decodes per delivery so no subscriber can
// mutate another's copy.
func (s *SQLite) notify(snap Snapshot) {
	s.mu.Lock()
	var targets []OnSnapshot
	for _, sub := range s.subs {
		if sub.projectID == SubscribeAll || sub.projectID == snap.Project.ID {
			targets = append(targets, sub.fn)
		}
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}
	doc, err := json.Marshal(snap.Project)
	if err != nil {
		return
	}
	go func() {
		for _, fn := range targets {
			copySnap := Snapshot{Version: snap.Version}
			if err := json.Unmarshal(doc, &copySnap.Project); err != nil {
				continue
			}
			fn(copySnap)
		}
	}()
}

func scanSnapshot(row *sql.Row) (Snapshot, error) {
	var snap Snapshot
	var doc string
	err := row.Scan(&snap.Version, &doc)
	if err == sql.ErrNoRows {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(doc), &snap.Project); err != nil {
		return snap, fmt.Errorf("decode document: %w", err)
	}
	return snap, nil
}
