package domain

import "errors"

var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrTaskAlreadyCompleted   = errors.New("task already completed")
	ErrInvalidHours           = errors.New("hours worked must be a finite number >= 0")
	ErrMissingRateAttribution = errors.New("actor is not an assigned member of the task")
	ErrPrerequisiteIncomplete = errors.New("prerequisite task not completed")
	ErrProjectCompleted       = errors.New("project already completed")
	ErrDuplicateMember        = errors.New("member email already present in project")
	ErrDuplicateTaskID        = errors.New("task id already present in project")
	ErrNameRequired           = errors.New("name is required")
	ErrMemberNotInProject     = errors.New("assigned member is not a project member")
	ErrPrerequisiteNotFound   = errors.New("prerequisite task not found")
)
