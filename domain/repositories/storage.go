package repositories

import (
	"context"

	"github.com/satriahrh/interview-coach/domain/entities"
)

// CredentialSource issues short-lived tokens for the live endpoint
type CredentialSource interface {
	FetchToken(ctx context.Context) (string, error)
}

// ReportSubmitter hands a finished recording to the evaluation pipeline
type ReportSubmitter interface {
	SubmitReport(ctx context.Context, reportID string, recording entities.Recording) (*entities.Report, error)
}
