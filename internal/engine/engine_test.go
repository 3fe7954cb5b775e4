package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"worktally/internal/config"
	"worktally/internal/domain"
	"worktally/internal/engine"
	"worktally/internal/events"
	"worktally/internal/migrate"
	"worktally/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := store.OpenDB(store.DBConfig{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func newProject(t *testing.T, env testEnv) store.Snapshot {
	t.Helper()
	snap, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Name: "Launch",
		Members: []domain.Member{
			{Email: "alice@example.com", HourlyRate: dec("10")},
			{Email: "bob@example.com", HourlyRate: dec("20")},
		},
		Tasks: []engine.TaskDraft{
			{ID: "task-a", Name: "design", AssignedMembers: []string{"alice@example.com"}},
			{ID: "task-b", Name: "build", AssignedMembers: []string{"bob@example.com"}},
		},
		ActorID: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return snap
}

func TestCompleteTaskRecomputesTotals(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newProject(t, env)
	if p.Version != 1 {
		t.Fatalf("fresh project version = %d, want 1", p.Version)
	}

	snap, applied, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("5"), "alice@example.com")
	if err != nil {
		t.Fatalf("complete task-a: %v", err)
	}
	if !applied.Completed || applied.Attribution == nil || applied.Attribution.HourlyRate.Cmp(dec("10")) != 0 {
		t.Fatalf("wrong applied task: %+v", applied)
	}
	if snap.Project.TotalHoursWorked.Cmp(dec("5")) != 0 || snap.Project.TotalCost.Cmp(dec("50")) != 0 {
		t.Fatalf("totals after first completion: hours=%s cost=%s", snap.Project.TotalHoursWorked, snap.Project.TotalCost)
	}
	if snap.Project.Completed {
		t.Fatalf("project completed with an open task")
	}

	snap, _, err = env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-b", dec("3"), "bob@example.com")
	if err != nil {
		t.Fatalf("complete task-b: %v", err)
	}
	if snap.Project.TotalHoursWorked.Cmp(dec("8")) != 0 || snap.Project.TotalCost.Cmp(dec("110")) != 0 {
		t.Fatalf("final totals: hours=%s cost=%s", snap.Project.TotalHoursWorked, snap.Project.TotalCost)
	}
	// the last completion carries the cascade in the same committed snapshot
	if !snap.Project.Completed || snap.Project.CompletionTimestamp == nil {
		t.Fatalf("project should be completed with timestamp: %+v", snap.Project)
	}
	if snap.Version != 3 {
		t.Fatalf("version = %d, want 3", snap.Version)
	}

	stored, err := env.Engine.GetProject(env.Ctx, p.Project.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Project.Completed || stored.Project.TotalCost.Cmp(dec("110")) != 0 {
		t.Fatalf("persisted state disagrees: %+v", stored.Project)
	}
}

func TestCompleteTaskAlreadyCompleted(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newProject(t, env)
	if _, _, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("5"), "alice@example.com"); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	_, _, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("2"), "alice@example.com")
	if !errors.Is(err, domain.ErrTaskAlreadyCompleted) {
		t.Fatalf("expected ErrTaskAlreadyCompleted, got %v", err)
	}
	// totals unchanged by the rejected retry
	snap, _ := env.Engine.GetProject(env.Ctx, p.Project.ID)
	if snap.Project.TotalHoursWorked.Cmp(dec("5")) != 0 {
		t.Fatalf("totals changed by rejected completion: %s", snap.Project.TotalHoursWorked)
	}
}

func TestCompleteTaskValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newProject(t, env)

	_, _, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("-1"), "alice@example.com")
	if !errors.Is(err, domain.ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours, got %v", err)
	}
	_, _, err = env.Engine.CompleteTask(env.Ctx, p.Project.ID, "ghost", dec("1"), "alice@example.com")
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	_, _, err = env.Engine.CompleteTask(env.Ctx, "no-such-project", "task-a", dec("1"), "alice@example.com")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
	_, _, err = env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("1"), "carol@example.com")
	if !errors.Is(err, domain.ErrMissingRateAttribution) {
		t.Fatalf("expected ErrMissingRateAttribution, got %v", err)
	}
}

func TestCompleteTaskZeroRatePolicyEmitsAnomaly(t *testing.T) {
	cfg := config.Default()
	cfg.Attribution.OnMissingMember = config.MissingMemberZero
	env := newTestEnv(t, cfg)
	p := newProject(t, env)

	snap, applied, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("4"), "carol@example.com")
	if err != nil {
		t.Fatalf("complete under zero policy: %v", err)
	}
	if applied.Attribution == nil || !applied.Attribution.HourlyRate.IsZero() {
		t.Fatalf("expected zero-rate attribution: %+v", applied.Attribution)
	}
	if snap.Project.TotalHoursWorked.Cmp(dec("4")) != 0 || !snap.Project.TotalCost.IsZero() {
		t.Fatalf("totals under zero policy: hours=%s cost=%s", snap.Project.TotalHoursWorked, snap.Project.TotalCost)
	}

	records, err := events.Latest(env.Ctx, env.Engine.DB, 10, p.Project.ID, "task.attribution.missing")
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(records) != 1 || records[0].EntityID != "task-a" {
		t.Fatalf("expected one anomaly event for task-a, got %+v", records)
	}
}

func TestConcurrentCompletionsBothLand(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newProject(t, env)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, errs[0] = env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("5"), "alice@example.com")
	}()
	go func() {
		defer wg.Done()
		_, _, errs[1] = env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-b", dec("3"), "bob@example.com")
	}()
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("completion %d failed: %v", i, err)
		}
	}

	snap, err := env.Engine.GetProject(env.Ctx, p.Project.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Project.TotalHoursWorked.Cmp(dec("8")) != 0 || snap.Project.TotalCost.Cmp(dec("110")) != 0 {
		t.Fatalf("lost update: hours=%s cost=%s", snap.Project.TotalHoursWorked, snap.Project.TotalCost)
	}
	if !snap.Project.Completed || snap.Version != 3 {
		t.Fatalf("expected completed project at version 3, got completed=%v v%d", snap.Project.Completed, snap.Version)
	}
}

func TestCreateTaskOnCompletedProject(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newProject(t, env)
	if _, _, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("1"), "alice@example.com"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-b", dec("1"), "bob@example.com"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CreateTask(env.Ctx, p.Project.ID, engine.TaskDraft{Name: "late"}, "alice@example.com")
	if !errors.Is(err, domain.ErrProjectCompleted) {
		t.Fatalf("expected ErrProjectCompleted, got %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newProject(t, env)

	_, err := env.Engine.CreateTask(env.Ctx, p.Project.ID, engine.TaskDraft{ID: "task-a", Name: "dup"}, "alice@example.com")
	if !errors.Is(err, domain.ErrDuplicateTaskID) {
		t.Fatalf("expected ErrDuplicateTaskID, got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, p.Project.ID, engine.TaskDraft{Name: "x", AssignedMembers: []string{"ghost@example.com"}}, "alice@example.com")
	if !errors.Is(err, domain.ErrMemberNotInProject) {
		t.Fatalf("expected ErrMemberNotInProject, got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, p.Project.ID, engine.TaskDraft{Name: "x", PrerequisiteTasks: []string{"ghost"}}, "alice@example.com")
	if !errors.Is(err, domain.ErrPrerequisiteNotFound) {
		t.Fatalf("expected ErrPrerequisiteNotFound, got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, p.Project.ID, engine.TaskDraft{}, "alice@example.com")
	if !errors.Is(err, domain.ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}

	task, err := env.Engine.CreateTask(env.Ctx, p.Project.ID, engine.TaskDraft{Name: "generated id"}, "alice@example.com")
	if err != nil {
		t.Fatalf("create with generated id: %v", err)
	}
	if !strings.HasPrefix(task.ID, "task-") {
		t.Fatalf("generated id %q lacks task- prefix", task.ID)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ActorID: "a"})
	if !errors.Is(err, domain.ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Name:    "dup members",
		ActorID: "a",
		Members: []domain.Member{
			{Email: "alice@example.com", HourlyRate: dec("1")},
			{Email: "alice@example.com", HourlyRate: dec("2")},
		},
	})
	if !errors.Is(err, domain.ErrDuplicateMember) {
		t.Fatalf("expected ErrDuplicateMember, got %v", err)
	}
}

func TestDeleteProject(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newProject(t, env)
	if err := env.Engine.DeleteProject(env.Ctx, p.Project.ID, "alice@example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, p.Project.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	records, err := events.Latest(env.Ctx, env.Engine.DB, 10, p.Project.ID, "project.deleted")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one project.deleted event, got %v %v", records, err)
	}
}

func TestCompletionEventsWritten(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newProject(t, env)
	if _, _, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-a", dec("5"), "alice@example.com"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, p.Project.ID, "task-b", dec("3"), "bob@example.com"); err != nil {
		t.Fatal(err)
	}
	completed, err := events.Latest(env.Ctx, env.Engine.DB, 10, p.Project.ID, "task.completed")
	if err != nil || len(completed) != 2 {
		t.Fatalf("expected two task.completed events, got %v %v", completed, err)
	}
	cascade, err := events.Latest(env.Ctx, env.Engine.DB, 10, p.Project.ID, "project.completed")
	if err != nil || len(cascade) != 1 {
		t.Fatalf("expected one project.completed event, got %v %v", cascade, err)
	}
}
