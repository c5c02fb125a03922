package server

import (
	"missionctl/internal/domain"
)

// Request payloads

type CreateMissionRequest struct {
	ID               *string        `json:"id,omitempty"`
	Title            string         `json:"title"`
	Description      *string        `json:"description,omitempty"`
	Type             string         `json:"type,omitempty" enum:"document_retrieval,form_filling,data_extraction,verification,custom"`
	Priority         string         `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	EstimatedSeconds *int64         `json:"estimated_duration_seconds,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
}

type UpdateMissionRequest struct {
	Title            *string        `json:"title,omitempty"`
	Description      *string        `json:"description,omitempty"`
	Priority         *string        `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	EstimatedSeconds *int64         `json:"estimated_duration_seconds,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
}

type FailMissionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CreateStepRequest struct {
	ParentID    *string `json:"parent_id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Order       int     `json:"order,omitempty"`
}

type UpdateStepRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
}

type SetStepStatusRequest struct {
	Status string `json:"status" enum:"pending,in_progress,completed,failed,skipped"`
}

type CreateDocumentRequest struct {
	Name     string         `json:"name"`
	FileType string         `json:"file_type,omitempty" enum:"pdf,docx,xlsx,csv,txt,image,other"`
	FileSize int64          `json:"file_size,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response payloads

type MissionListItem struct {
	domain.Mission
	DocumentCount int `json:"document_count"`
	ActivityCount int `json:"activity_count"`
}

type paginatedMissions struct {
	Items      []MissionListItem `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type stepTree struct {
	PlanSteps []domain.PlanStepNode `json:"plan_steps"`
}

type paginatedActivities struct {
	Items      []domain.Activity `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type documentList struct {
	Documents []domain.Document `json:"documents"`
}
