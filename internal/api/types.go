package api

import "github.com/satriahrh/interview-coach/domain/entities"

// InterviewContextRequest replaces the interview context
type InterviewContextRequest struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
	ReportID       string `json:"report_id"`
}

// InterviewResponse is the controller state returned by every interview route
type InterviewResponse struct {
	entities.Snapshot
	Ready    bool   `json:"ready"`
	ReportID string `json:"report_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
