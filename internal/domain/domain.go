package domain

import (
	"github.com/shopspring/decimal"
)

// Member is a project participant with an individual hourly rate.
type Member struct {
	Email      string          `json:"email"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

// Attribution records who performed a task's work and at what rate.
// It is written exactly once, when the task is completed, and is the
// only input to cost aggregation afterwards.
type Attribution struct {
	MemberEmail string          `json:"member_email"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
}

type Task struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	StartDate           string          `json:"start_date,omitempty"`
	EndDate             string          `json:"end_date,omitempty"`
	AssignedMembers     []Member        `json:"assigned_members,omitempty"`
	PrerequisiteTasks   []string        `json:"prerequisite_tasks,omitempty"`
	Completed           bool            `json:"completed"`
	CompletionTimestamp *string         `json:"completion_timestamp,omitempty" format:"date-time"`
	HoursWorked         decimal.Decimal `json:"hours_worked"`
	Attribution         *Attribution    `json:"attribution,omitempty"`
}

// AssignedRate resolves the hourly rate for a member assigned to this task.
func (t Task) AssignedRate(email string) (decimal.Decimal, bool) {
	for _, m := range t.AssignedMembers {
		if m.Email == email {
			return m.HourlyRate, true
		}
	}
	return decimal.Zero, false
}

type Project struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	CreatedBy           string          `json:"created_by"`
	Members             []Member        `json:"members,omitempty"`
	Tasks               []Task          `json:"tasks,omitempty"`
	Completed           bool            `json:"completed"`
	CompletionTimestamp *string         `json:"completion_timestamp,omitempty" format:"date-time"`
	TotalHoursWorked    decimal.Decimal `json:"total_hours_worked"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	CreatedAt           string          `json:"created_at" format:"date-time"`
}

// Member returns the project member with the given email.
func (p Project) Member(email string) (Member, bool) {
	for _, m := range p.Members {
		if m.Email == email {
			return m, true
		}
	}
	return Member{}, false
}

// TaskIndex returns the position of the task with the given id.
func (p Project) TaskIndex(id string) (int, bool) {
	for i, t := range p.Tasks {
		if t.ID == id {
			return i, true
		}
	}
	return 0, false
}

// CloneTasks returns a per-element copy of the task list so a caller can
// replace entries without aliasing the original slice.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}
