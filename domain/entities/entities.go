package entities

import (
	"encoding/json"
	"errors"
	"strings"
)

// DefaultReportID is sent when the interview has no report identifier
const DefaultReportID = "unknown"

// DefaultJobDescription is used in the system instruction when no job is known
const DefaultJobDescription = "general position"

// Interview holds the candidate context the conversation is built from
type Interview struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
	ReportID       string `json:"report_id"`
}

// Ready reports whether enough context exists to warm up a session
func (i Interview) Ready() bool {
	return strings.TrimSpace(i.ResumeText) != "" && strings.TrimSpace(i.JobDescription) != ""
}

// ReportKey returns the identifier used when submitting the recording
func (i Interview) ReportKey() string {
	if strings.TrimSpace(i.ReportID) == "" {
		return DefaultReportID
	}
	return i.ReportID
}

// Validate checks the interview payload accepted from clients
func (i Interview) Validate() error {
	if len(i.ResumeText) > maxContextLength || len(i.JobDescription) > maxContextLength {
		return ErrContextTooLarge
	}
	return nil
}

const maxContextLength = 64 * 1024

// Recording is a finalized combined-audio capture
type Recording struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Size returns the recording length in bytes
func (r Recording) Size() int {
	return len(r.Data)
}

// Report is the evaluation produced by the report pipeline
type Report struct {
	Evaluations json.RawMessage `json:"evaluations"`
}

var (
	ErrTokenMissing      = errors.New("token not found in API response")
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceNotFound    = errors.New("microphone not found")
	ErrControllerClosed  = errors.New("voice controller is closed")
	ErrAlreadyActive     = errors.New("voice conversation already active")
	ErrContextTooLarge   = errors.New("interview context too large")
	ErrSessionNotStarted = errors.New("live session not started")
)

// MediaErrorMessage turns a media acquisition failure into a user-facing message
func MediaErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Please allow microphone permission and try again."
	case errors.Is(err, ErrDeviceNotFound):
		return "No microphone was found. Please connect a microphone and try again."
	default:
		return "Could not start the voice interview. Please try again."
	}
}
