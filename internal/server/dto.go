package server

import (
	"worktally/internal/domain"
	"worktally/internal/engine"
	"worktally/internal/store"
)

// Request payloads. Money and hours travel as decimal strings so values
// like "12.50" reach the engine exactly as sent.

type MemberRequest struct {
	Email      string `json:"email"`
	HourlyRate string `json:"hourly_rate" example:"25.00"`
}

type TaskDraftRequest struct {
	ID                *string  `json:"id,omitempty"`
	Name              string   `json:"name"`
	Description       *string  `json:"description,omitempty"`
	StartDate         *string  `json:"start_date,omitempty"`
	EndDate           *string  `json:"end_date,omitempty"`
	AssignedMembers   []string `json:"assigned_members,omitempty"`
	PrerequisiteTasks []string `json:"prerequisite_tasks,omitempty"`
}

type CreateProjectRequest struct {
	Name    string             `json:"name"`
	Members []MemberRequest    `json:"members,omitempty"`
	Tasks   []TaskDraftRequest `json:"tasks,omitempty"`
}

type CompleteTaskRequest struct {
	HoursWorked string `json:"hours_worked" example:"3.5"`
}

// Response payloads

type MemberResponse struct {
	Email      string `json:"email"`
	HourlyRate string `json:"hourly_rate"`
}

type AttributionResponse struct {
	MemberEmail string `json:"member_email"`
	HourlyRate  string `json:"hourly_rate"`
}

type TaskResponse struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Description         string               `json:"description,omitempty"`
	StartDate           string               `json:"start_date,omitempty"`
	EndDate             string               `json:"end_date,omitempty"`
	AssignedMembers     []MemberResponse     `json:"assigned_members,omitempty"`
	PrerequisiteTasks   []string             `json:"prerequisite_tasks,omitempty"`
	Completed           bool                 `json:"completed"`
	CompletionTimestamp *string              `json:"completion_timestamp,omitempty" format:"date-time"`
	HoursWorked         string               `json:"hours_worked"`
	Attribution         *AttributionResponse `json:"attribution,omitempty"`
}

type ProjectResponse struct {
	ID                  string           `json:"id"`
	Version             int64            `json:"version"`
	Name                string           `json:"name"`
	CreatedBy           string           `json:"created_by"`
	Members             []MemberResponse `json:"members,omitempty"`
	Tasks               []TaskResponse   `json:"tasks,omitempty"`
	Completed           bool             `json:"completed"`
	CompletionTimestamp *string          `json:"completion_timestamp,omitempty" format:"date-time"`
	TotalHoursWorked    string           `json:"total_hours_worked"`
	TotalCost           string           `json:"total_cost"`
	CreatedAt           string           `json:"created_at" format:"date-time"`
}

func memberResponse(m domain.Member) MemberResponse {
	return MemberResponse{Email: m.Email, HourlyRate: m.HourlyRate.String()}
}

func mapMembers(in []domain.Member) []MemberResponse {
	if len(in) == 0 {
		return nil
	}
	out := make([]MemberResponse, len(in))
	for i, m := range in {
		out[i] = memberResponse(m)
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	res := TaskResponse{
		ID:                  t.ID,
		Name:                t.Name,
		Description:         t.Description,
		StartDate:           t.StartDate,
		EndDate:             t.EndDate,
		AssignedMembers:     mapMembers(t.AssignedMembers),
		PrerequisiteTasks:   t.PrerequisiteTasks,
		Completed:           t.Completed,
		CompletionTimestamp: t.CompletionTimestamp,
		HoursWorked:         t.HoursWorked.String(),
	}
	if t.Attribution != nil {
		res.Attribution = &AttributionResponse{
			MemberEmail: t.Attribution.MemberEmail,
			HourlyRate:  t.Attribution.HourlyRate.String(),
		}
	}
	return res
}

func projectResponse(snap store.Snapshot) ProjectResponse {
	p := snap.Project
	res := ProjectResponse{
		ID:                  p.ID,
		Version:             snap.Version,
		Name:                p.Name,
		CreatedBy:           p.CreatedBy,
		Members:             mapMembers(p.Members),
		Completed:           p.Completed,
		CompletionTimestamp: p.CompletionTimestamp,
		TotalHoursWorked:    p.TotalHoursWorked.String(),
		TotalCost:           p.TotalCost.String(),
		CreatedAt:           p.CreatedAt,
	}
	for _, t := range p.Tasks {
		res.Tasks = append(res.Tasks, taskResponse(t))
	}
	return res
}

func taskDraft(req TaskDraftRequest) engine.TaskDraft {
	d := engine.TaskDraft{
		Name:              req.Name,
		AssignedMembers:   req.AssignedMembers,
		PrerequisiteTasks: req.PrerequisiteTasks,
	}
	if req.ID != nil {
		d.ID = *req.ID
	}
	if req.Description != nil {
		d.Description = *req.Description
	}
	if req.StartDate != nil {
		d.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		d.EndDate = *req.EndDate
	}
	return d
}
