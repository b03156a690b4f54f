package dto

import "time"

// EvaluateRequest is the payload for submitting code for evaluation.
type EvaluateRequest struct {
	OwnerID        string `json:"ownerId" validate:"required,max=128"`
	Title          string `json:"title" validate:"required,max=255"`
	Description    string `json:"description" validate:"required,max=10000"`
	Language       string `json:"language" validate:"required,oneof=javascript typescript python java cpp go"`
	Code           string `json:"code" validate:"required,max=100000"`
	ExpectedOutput string `json:"expectedOutput" validate:"max=10000"`
}

// EvaluateResponse identifies the created task.
type EvaluateResponse struct {
	TaskID string `json:"taskId"`
}

// PublicFeedbackView is the always-visible part of an evaluation.
type PublicFeedbackView struct {
	Score     int      `json:"score"`
	Strengths []string `json:"strengths"`
	Summary   string   `json:"summary"`
}

// PremiumFeedbackView is the paid part of an evaluation.
type PremiumFeedbackView struct {
	Analysis       string   `json:"analysis"`
	Defects        []string `json:"defects"`
	RefactoredCode string   `json:"refactoredCode"`
}

// DisclosedView is a task as seen by a particular caller. Premium is nil, and
// therefore absent from the JSON, unless the caller may read it.
type DisclosedView struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Language       string               `json:"language"`
	Code           string               `json:"code,omitempty"`
	ExpectedOutput string               `json:"expectedOutput,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	Public         PublicFeedbackView   `json:"publicFeedback"`
	Unlocked       bool                 `json:"unlocked"`
	Premium        *PremiumFeedbackView `json:"premiumFeedback,omitempty"`
}

// PaginationMeta describes pagination state for list endpoints.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// TaskListResponse wraps a page of disclosed tasks.
type TaskListResponse struct {
	Items      []DisclosedView `json:"items"`
	Pagination PaginationMeta  `json:"pagination"`
}

// TaskSummaryResponse aggregates an owner's reports.
type TaskSummaryResponse struct {
	Total        int64   `json:"total"`
	Unlocked     int64   `json:"unlocked"`
	AverageScore float64 `json:"averageScore"`
}
