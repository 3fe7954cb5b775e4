package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"worktally/internal/config"
	"worktally/internal/domain"
	"worktally/internal/events"
	"worktally/internal/store"
)

// ErrConcurrentUpdateConflict is returned when a guarded write kept losing
// to concurrent writers for the configured number of attempts.
var ErrConcurrentUpdateConflict = errors.New("concurrent update conflict: retries exhausted")

type Engine struct {
	Store  store.Store
	DB     *sql.DB
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		Store:  store.NewSQLite(db),
		DB:     db,
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) maxAttempts() int {
	if e.Config != nil && e.Config.Engine.MaxUpdateAttempts > 0 {
		return e.Config.Engine.MaxUpdateAttempts
	}
	return 5
}

func (e Engine) completionOptions() CompletionOptions {
	opts := CompletionOptions{OnMissingMember: config.MissingMemberReject}
	if e.Config != nil {
		if e.Config.Attribution.OnMissingMember != "" {
			opts.OnMissingMember = e.Config.Attribution.OnMissingMember
		}
		opts.EnforcePrerequisites = e.Config.Tasks.EnforcePrerequisites
	}
	return opts
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID      string
	Name    string
	Members []domain.Member
	Tasks   []TaskDraft
	ActorID string
}

// TaskDraft describes a task to create. AssignedMembers are member emails
// resolved against the project's member set.
type TaskDraft struct {
	ID                string
	Name              string
	Description       string
	StartDate         string
	EndDate           string
	AssignedMembers   []string
	PrerequisiteTasks []string
}

// CreateProject creates a project with an optional initial task set.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (store.Snapshot, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return store.Snapshot{}, domain.ErrNameRequired
	}
	if opts.ActorID == "" {
		return store.Snapshot{}, errors.New("actor is required")
	}
	if err := domain.ValidateMembers(opts.Members); err != nil {
		return store.Snapshot{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now()
	p := domain.Project{
		ID:               id,
		Name:             opts.Name,
		CreatedBy:        opts.ActorID,
		Members:          opts.Members,
		TotalHoursWorked: decimal.Zero,
		TotalCost:        decimal.Zero,
		CreatedAt:        now.UTC().Format(time.RFC3339),
	}
	evts := []events.Event{{
		Type:       "project.created",
		EntityKind: "project",
		EntityID:   id,
		ActorID:    opts.ActorID,
		Payload:    events.Payload{"name": opts.Name, "members": len(opts.Members)},
	}}
	for _, draft := range opts.Tasks {
		t, err := e.buildTask(p, draft)
		if err != nil {
			return store.Snapshot{}, err
		}
		p.Tasks = append(p.Tasks, t)
		evts = append(evts, events.Event{
			Type:       "task.created",
			EntityKind: "task",
			EntityID:   t.ID,
			ActorID:    opts.ActorID,
			Payload:    events.Payload{"name": t.Name},
		})
	}
	return e.Store.Create(ctx, p, evts...)
}

// CreateTask appends a task to the project under optimistic-concurrency
// control: the draft is rebuilt against a fresh snapshot on every conflict.
func (e Engine) CreateTask(ctx context.Context, projectID string, draft TaskDraft, actorID string) (domain.Task, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return domain.Task{}, domain.ErrNameRequired
	}
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Task{}, err
		}
		snap, err := e.Store.Get(ctx, projectID)
		if err != nil {
			return domain.Task{}, err
		}
		if snap.Project.Completed {
			return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrProjectCompleted, projectID)
		}
		t, err := e.buildTask(snap.Project, draft)
		if err != nil {
			return domain.Task{}, err
		}
		p := snap.Project
		p.Tasks = append(domain.CloneTasks(p.Tasks), t)
		_, err = e.Store.Update(ctx, p, snap.Version, events.Event{
			Type:       "task.created",
			EntityKind: "task",
			EntityID:   t.ID,
			ActorID:    actorID,
			Payload:    events.Payload{"name": t.Name},
		})
		if errors.Is(err, store.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return domain.Task{}, err
		}
		return t, nil
	}
	return domain.Task{}, fmt.Errorf("%w: %v", ErrConcurrentUpdateConflict, lastErr)
}

// CompleteTask applies a task-completion intent. The guarded write carries
// the mutated task list, the recomputed totals, and (when the set
// completes) the project completion flag in a single document update, so a
// crash can never separate the flag from its totals.
func (e Engine) CompleteTask(ctx context.Context, projectID, taskID string, hours decimal.Decimal, actorID string) (store.Snapshot, domain.Task, error) {
	opts := e.completionOptions()
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return store.Snapshot{}, domain.Task{}, err
		}
		snap, err := e.Store.Get(ctx, projectID)
		if err != nil {
			return store.Snapshot{}, domain.Task{}, err
		}
		now := e.now()
		newTasks, applied, anomaly, err := ApplyCompletion(snap.Project.Tasks, CompletionInput{
			TaskID: taskID,
			Hours:  hours,
			Actor:  actorID,
			Now:    now,
		}, opts)
		if err != nil {
			// validation errors are terminal, never retried
			return store.Snapshot{}, domain.Task{}, err
		}

		totals := Aggregate(newTasks)
		p := snap.Project
		p.Tasks = newTasks
		p.TotalHoursWorked = totals.HoursWorked
		p.TotalCost = totals.Cost

		evts := []events.Event{{
			Type:       "task.completed",
			EntityKind: "task",
			EntityID:   taskID,
			ActorID:    actorID,
			Payload: events.Payload{
				"hours_worked": hours.String(),
				"rate":         applied.Attribution.HourlyRate.String(),
			},
		}}
		if anomaly {
			evts = append(evts, events.Event{
				Type:       "task.attribution.missing",
				EntityKind: "task",
				EntityID:   taskID,
				ActorID:    actorID,
				Payload:    events.Payload{"actor": actorID},
			})
		}
		if !p.Completed && CheckCompletion(newTasks).ShouldComplete {
			ts := now.UTC().Format(time.RFC3339)
			p.Completed = true
			p.CompletionTimestamp = &ts
			evts = append(evts, events.Event{
				Type:       "project.completed",
				EntityKind: "project",
				EntityID:   projectID,
				ActorID:    actorID,
				Payload: events.Payload{
					"total_hours_worked": totals.HoursWorked.String(),
					"total_cost":         totals.Cost.String(),
				},
			})
		}

		committed, err := e.Store.Update(ctx, p, snap.Version, evts...)
		if errors.Is(err, store.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return store.Snapshot{}, domain.Task{}, err
		}
		return committed, applied, nil
	}
	return store.Snapshot{}, domain.Task{}, fmt.Errorf("%w: %v", ErrConcurrentUpdateConflict, lastErr)
}

// DeleteProject removes a project outright. Administrative: no cascade
// logic runs and completion state is ignored.
func (e Engine) DeleteProject(ctx context.Context, projectID, actorID string) error {
	return e.Store.Delete(ctx, projectID, events.Event{
		Type:       "project.deleted",
		EntityKind: "project",
		EntityID:   projectID,
		ActorID:    actorID,
	})
}

func (e Engine) GetProject(ctx context.Context, projectID string) (store.Snapshot, error) {
	return e.Store.Get(ctx, projectID)
}

func (e Engine) ListProjects(ctx context.Context) ([]store.Snapshot, error) {
	return e.Store.List(ctx)
}

func (e Engine) buildTask(p domain.Project, draft TaskDraft) (domain.Task, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return domain.Task{}, domain.ErrNameRequired
	}
	id := draft.ID
	if id == "" {
		id = NewTaskID(e.now())
	}
	if _, dup := p.TaskIndex(id); dup {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrDuplicateTaskID, id)
	}
	var assigned []domain.Member
	for _, email := range draft.AssignedMembers {
		m, ok := p.Member(email)
		if !ok {
			return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrMemberNotInProject, email)
		}
		assigned = append(assigned, m)
	}
	for _, dep := range draft.PrerequisiteTasks {
		if _, ok := p.TaskIndex(dep); !ok {
			return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrPrerequisiteNotFound, dep)
		}
	}
	return domain.Task{
		ID:                id,
		Name:              draft.Name,
		Description:       draft.Description,
		StartDate:         draft.StartDate,
		EndDate:           draft.EndDate,
		AssignedMembers:   assigned,
		PrerequisiteTasks: draft.PrerequisiteTasks,
		HoursWorked:       decimal.Zero,
	}, nil
}

// NewTaskID mints a task id unique within any realistic project.
func NewTaskID(now time.Time) string {
	rand := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("task-%d-%s", now.UnixMilli(), rand)
}
