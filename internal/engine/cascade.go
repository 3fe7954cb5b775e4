package engine

import "worktally/internal/domain"

// CompletionDecision says whether a task-set transition should also
// complete the parent project.
type CompletionDecision struct {
	ShouldComplete bool
}

// CheckCompletion returns ShouldComplete when the task list is non-empty
// and every task is completed. An empty task list never completes a
// project.
func CheckCompletion(tasks []domain.Task) CompletionDecision {
	if len(tasks) == 0 {
		return CompletionDecision{}
	}
	for _, t := range tasks {
		if !t.Completed {
			return CompletionDecision{}
		}
	}
	return CompletionDecision{ShouldComplete: true}
}
