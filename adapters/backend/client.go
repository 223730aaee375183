package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain/entities"
	"github.com/satriahrh/interview-coach/domain/repositories"
)

const (
	defaultBaseURL       = "http://localhost:8000"
	defaultTokenTimeout  = 15 * time.Second
	defaultReportTimeout = 5 * time.Minute

	tokenPath  = "/get-ephemeral-token/"
	reportPath = "/generate-behavioral-report/"
)

// Config holds configuration for the interview backend client
// Optional fields with defaults:
// - BaseURL: the backend API root (default: "http://localhost:8000")
// - TokenTimeout: request timeout for token fetches (default: 15s)
// - ReportTimeout: request timeout for report uploads (default: 5m)
type Config struct {
	BaseURL       string
	TokenTimeout  time.Duration
	ReportTimeout time.Duration
}

// Validate checks the backend configuration
func (c Config) Validate() error {
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("backend base URL must be http or https, got %q", c.BaseURL)
	}
	if c.TokenTimeout < 0 || c.ReportTimeout < 0 {
		return fmt.Errorf("backend timeouts must not be negative")
	}
	return nil
}

// Client talks to the interview backend for credentials and reports
type Client struct {
	baseURL      string
	tokenClient  *http.Client
	reportClient *http.Client
	logger       *zap.Logger
}

var (
	_ repositories.CredentialSource = (*Client)(nil)
	_ repositories.ReportSubmitter  = (*Client)(nil)
)

type tokenResponse struct {
	Token string `json:"token"`
}

type reportResponse struct {
	Evaluations json.RawMessage `json:"evaluations"`
}

// NewClient creates a backend client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default backend base URL", zap.String("baseURL", baseURL))
	}

	tokenTimeout := config.TokenTimeout
	if tokenTimeout == 0 {
		tokenTimeout = defaultTokenTimeout
	}
	reportTimeout := config.ReportTimeout
	if reportTimeout == 0 {
		reportTimeout = defaultReportTimeout
	}

	return &Client{
		baseURL:      baseURL,
		tokenClient:  &http.Client{Timeout: tokenTimeout},
		reportClient: &http.Client{Timeout: reportTimeout},
		logger:       logger,
	}, nil
}

// FetchToken retrieves an ephemeral token for the live endpoint
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.tokenClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.Token == "" {
		return "", entities.ErrTokenMissing
	}

	c.logger.Debug("Fetched ephemeral token")
	return payload.Token, nil
}

// SubmitReport uploads the recording as multipart form data
func (c *Client) SubmitReport(ctx context.Context, reportID string, recording entities.Recording) (*entities.Report, error) {
	if reportID == "" {
		reportID = entities.DefaultReportID
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("audio", recording.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio form part: %w", err)
	}
	if _, err := part.Write(recording.Data); err != nil {
		return nil, fmt.Errorf("failed to write audio form part: %w", err)
	}
	if err := form.WriteField("report_id", reportID); err != nil {
		return nil, fmt.Errorf("failed to write report_id field: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+reportPath, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create report request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	c.logger.Info("Submitting interview recording",
		zap.String("reportID", reportID),
		zap.Int("bytes", recording.Size()))

	resp, err := c.reportClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("report endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(errorBody)))
	}

	var payload reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode report response: %w", err)
	}
	return &entities.Report{Evaluations: payload.Evaluations}, nil
}
