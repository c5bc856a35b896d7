package dto

type AlertCreateRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Priority    string  `json:"priority" validate:"required"`
	SiteID      *string `json:"site_id"`
	PatientID   *string `json:"patient_id"`
	AlertType   string  `json:"alert_type" validate:"required"`
}

type CommentCreateRequest struct {
	EntityType  string `json:"entity_type" validate:"required"`
	EntityID    string `json:"entity_id" validate:"required"`
	CommentText string `json:"comment_text" validate:"required"`
}

type TagCreateRequest struct {
	EntityType string `json:"entity_type" validate:"required"`
	EntityID   string `json:"entity_id" validate:"required"`
	TagName    string `json:"tag_name" validate:"required"`
}

type AIQueryRequest struct {
	Query string `json:"query" validate:"required"`
}

type AIReportRequest struct {
	ReportType string         `json:"report_type" validate:"required"`
	SiteID     *string        `json:"site_id"`
	Context    map[string]any `json:"context"`
}
