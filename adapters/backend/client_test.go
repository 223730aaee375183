package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/interview-coach/domain/entities"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL + "/"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestFetchToken(t *testing.T) {
	var hits int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Method != http.MethodGet || r.URL.Path != tokenPath {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"ephemeral-123"}`))
	})

	token, err := client.FetchToken(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token != "ephemeral-123" {
		t.Errorf("Expected ephemeral-123, got %s", token)
	}
	if hits != 1 {
		t.Errorf("Expected 1 request, got %d", hits)
	}
}

func TestFetchTokenMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"other":"value"}`))
	})

	_, err := client.FetchToken(context.Background())
	if !errors.Is(err, entities.ErrTokenMissing) {
		t.Errorf("Expected ErrTokenMissing, got %v", err)
	}
}

func TestFetchTokenHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})

	if _, err := client.FetchToken(context.Background()); err == nil {
		t.Error("Expected error for non-200 response")
	}
}

func TestSubmitReport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != reportPath {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}
		if got := r.FormValue("report_id"); got != "report-7" {
			t.Errorf("Expected report_id report-7, got %s", got)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("Missing audio part: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "interview_recording.flac" {
			t.Errorf("Unexpected filename %s", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fLaC-data" {
			t.Errorf("Unexpected audio payload %q", data)
		}
		w.Write([]byte(`{"evaluations":[{"question":"intro","score":4}]}`))
	})

	report, err := client.SubmitReport(context.Background(), "report-7", entities.Recording{
		Data:     []byte("fLaC-data"),
		MIMEType: "audio/flac",
		Filename: "interview_recording.flac",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(report.Evaluations) != `[{"question":"intro","score":4}]` {
		t.Errorf("Unexpected evaluations %s", report.Evaluations)
	}
}

func TestSubmitReportDefaultsID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		if got := r.FormValue("report_id"); got != entities.DefaultReportID {
			t.Errorf("Expected default report id, got %s", got)
		}
		w.Write([]byte(`{"evaluations":null}`))
	})

	if _, err := client.SubmitReport(context.Background(), "", entities.Recording{Filename: "a.flac"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestSubmitReportServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "evaluation failed", http.StatusInternalServerError)
	})

	if _, err := client.SubmitReport(context.Background(), "r", entities.Recording{Filename: "a.flac"}); err == nil {
		t.Error("Expected error for 500 response")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{BaseURL: "ftp://example"}).Validate(); err == nil {
		t.Error("Expected error for non-http base URL")
	}
	if err := (Config{}).Validate(); err != nil {
		t.Errorf("Expected empty config to be valid, got %v", err)
	}
}
