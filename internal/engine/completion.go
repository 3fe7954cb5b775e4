package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"worktally/internal/config"
	"worktally/internal/domain"
)

// CompletionInput is a single task-completion intent.
type CompletionInput struct {
	TaskID string
	Hours  decimal.Decimal
	Actor  string
	Now    time.Time
}

// CompletionOptions carry the policy knobs the processor honors.
type CompletionOptions struct {
	// OnMissingMember is config.MissingMemberReject or
	// config.MissingMemberZero.
	OnMissingMember string
	// EnforcePrerequisites blocks completion while prerequisites are
	// incomplete.
	EnforcePrerequisites bool
}

// ApplyCompletion validates the intent against the task list and returns a
// new list with the target task completed. The input list is never
// mutated. The anomaly result is true when the completion was applied at
// rate zero because the actor is not an assigned member; the caller must
// report it, never swallow it.
func ApplyCompletion(tasks []domain.Task, in CompletionInput, opts CompletionOptions) (out []domain.Task, applied domain.Task, anomaly bool, err error) {
	if err := domain.ValidateHours(in.Hours); err != nil {
		return nil, domain.Task{}, false, err
	}
	idx := -1
	for i, t := range tasks {
		if t.ID == in.TaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.Task{}, false, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, in.TaskID)
	}
	t := tasks[idx]
	if t.Completed {
		return nil, domain.Task{}, false, fmt.Errorf("%w: %s", domain.ErrTaskAlreadyCompleted, in.TaskID)
	}
	if opts.EnforcePrerequisites {
		if err := ensurePrerequisitesDone(tasks, t); err != nil {
			return nil, domain.Task{}, false, err
		}
	}
	rate, assigned := t.AssignedRate(in.Actor)
	if !assigned {
		if opts.OnMissingMember != config.MissingMemberZero {
			return nil, domain.Task{}, false, fmt.Errorf("%w: %s on task %s", domain.ErrMissingRateAttribution, in.Actor, in.TaskID)
		}
		rate = decimal.Zero
		anomaly = true
	}

	ts := in.Now.UTC().Format(time.RFC3339)
	t.Completed = true
	t.CompletionTimestamp = &ts
	t.HoursWorked = in.Hours
	t.Attribution = &domain.Attribution{MemberEmail: in.Actor, HourlyRate: rate}

	out = domain.CloneTasks(tasks)
	out[idx] = t
	return out, t, anomaly, nil
}

func ensurePrerequisitesDone(tasks []domain.Task, t domain.Task) error {
	byID := make(map[string]domain.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	for _, id := range t.PrerequisiteTasks {
		dep, ok := byID[id]
		// an unknown prerequisite id blocks completion rather than
		// silently passing
		if !ok || !dep.Completed {
			return fmt.Errorf("%w: %s", domain.ErrPrerequisiteIncomplete, id)
		}
	}
	return nil
}
