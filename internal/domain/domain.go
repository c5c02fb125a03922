package domain

type UserProfile struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	TotalMissions     int    `json:"total_missions"`
	CompletedMissions int    `json:"completed_missions"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

type Mission struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Type             string         `json:"type" enum:"document_retrieval,form_filling,data_extraction,verification,custom"`
	Status           string         `json:"status" enum:"pending,initializing,running,paused,completed,failed,cancelled"`
	Progress         int            `json:"progress"`
	Priority         string         `json:"priority" enum:"low,medium,high,urgent"`
	EstimatedSeconds *int64         `json:"estimated_duration_seconds,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	StartedAt        *string        `json:"started_at,omitempty" format:"date-time"`
	CompletedAt      *string        `json:"completed_at,omitempty" format:"date-time"`
	UpdatedAt        string         `json:"updated_at" format:"date-time"`
}

// Terminal reports whether no further lifecycle transition is allowed.
func (m Mission) Terminal() bool {
	switch m.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

type PlanStep struct {
	ID          string  `json:"id"`
	MissionID   string  `json:"mission_id"`
	ParentID    *string `json:"parent_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"pending,in_progress,completed,failed,skipped"`
	Order       int     `json:"order"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	StartedAt   *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

// PlanStepNode is one node of the nested tree view: a step with its
// substeps ordered by order then id.
type PlanStepNode struct {
	PlanStep
	Substeps []PlanStepNode `json:"substeps"`
}

type Activity struct {
	ID        int64          `json:"id"`
	MissionID string         `json:"mission_id"`
	Type      string         `json:"type" enum:"info,success,warning,error,milestone,action"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp" format:"date-time"`
}

type Document struct {
	ID         string         `json:"id"`
	MissionID  string         `json:"mission_id"`
	Name       string         `json:"name"`
	FileType   string         `json:"file_type" enum:"pdf,docx,xlsx,csv,txt,image,other"`
	FileSize   int64          `json:"file_size"`
	Status     string         `json:"status" enum:"pending,processing,ready,verified,failed"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IsVerified bool           `json:"is_verified"`
	VerifiedBy *string        `json:"verified_by,omitempty"`
	VerifiedAt *string        `json:"verified_at,omitempty" format:"date-time"`
	UploadedAt string         `json:"uploaded_at" format:"date-time"`
	UpdatedAt  string         `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// MissionDetail composes the mission aggregate for the detail view.
type MissionDetail struct {
	Mission
	PlanSteps        []PlanStepNode `json:"plan_steps"`
	RecentActivities []Activity     `json:"recent_activities"`
	Documents        []Document     `json:"documents"`
}

// ValidMissionType reports whether t is a known mission type.
func ValidMissionType(t string) bool {
	switch t {
	case "document_retrieval", "form_filling", "data_extraction", "verification", "custom":
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case "low", "medium", "high", "urgent":
		return true
	}
	return false
}

// ValidStepStatus reports whether s is a known plan step status.
func ValidStepStatus(s string) bool {
	switch s {
	case "pending", "in_progress", "completed", "failed", "skipped":
		return true
	}
	return false
}

// ValidActivityType reports whether t is a known activity type.
func ValidActivityType(t string) bool {
	switch t {
	case "info", "success", "warning", "error", "milestone", "action":
		return true
	}
	return false
}

// ValidFileType reports whether t is a known document file type.
func ValidFileType(t string) bool {
	switch t {
	case "pdf", "docx", "xlsx", "csv", "txt", "image", "other":
		return true
	}
	return false
}
