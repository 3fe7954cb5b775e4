package engine_test

import (
	"testing"

	"worktally/internal/domain"
	"worktally/internal/engine"
)

func TestAggregate(t *testing.T) {
	attr := func(rate string) *domain.Attribution {
		return &domain.Attribution{MemberEmail: "m@example.com", HourlyRate: dec(rate)}
	}
	tasks := []domain.Task{
		{ID: "a", Completed: true, HoursWorked: dec("5"), Attribution: attr("10")},
		{ID: "b", Completed: true, HoursWorked: dec("3"), Attribution: attr("20")},
		{ID: "c", Completed: false, HoursWorked: dec("99"), Attribution: attr("99")},
	}
	got := engine.Aggregate(tasks)
	if got.HoursWorked.Cmp(dec("8")) != 0 {
		t.Fatalf("hours = %s, want 8", got.HoursWorked)
	}
	if got.Cost.Cmp(dec("110")) != 0 {
		t.Fatalf("cost = %s, want 110", got.Cost)
	}
}

func TestAggregateFractional(t *testing.T) {
	tasks := []domain.Task{
		{ID: "a", Completed: true, HoursWorked: dec("0.1"),
			Attribution: &domain.Attribution{MemberEmail: "m", HourlyRate: dec("0.3")}},
	}
	// exact decimal arithmetic, no float drift
	if got := engine.Aggregate(tasks); got.Cost.Cmp(dec("0.03")) != 0 {
		t.Fatalf("cost = %s, want 0.03", got.Cost)
	}
}

func TestAggregateNoAttribution(t *testing.T) {
	tasks := []domain.Task{
		{ID: "a", Completed: true, HoursWorked: dec("4")},
	}
	got := engine.Aggregate(tasks)
	if got.HoursWorked.Cmp(dec("4")) != 0 || !got.Cost.IsZero() {
		t.Fatalf("completed task without attribution should add hours only: %+v", got)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := engine.Aggregate(nil)
	if !got.HoursWorked.IsZero() || !got.Cost.IsZero() {
		t.Fatalf("empty list should aggregate to zero: %+v", got)
	}
}

func TestCheckCompletion(t *testing.T) {
	if engine.CheckCompletion(nil).ShouldComplete {
		t.Fatalf("empty task list must never complete a project")
	}
	tasks := []domain.Task{{ID: "a", Completed: true}, {ID: "b"}}
	if engine.CheckCompletion(tasks).ShouldComplete {
		t.Fatalf("incomplete task should block completion")
	}
	tasks[1].Completed = true
	if !engine.CheckCompletion(tasks).ShouldComplete {
		t.Fatalf("all tasks complete should complete the project")
	}
}
