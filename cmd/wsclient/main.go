package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/internal/auth"
)

type statusMessage struct {
	Type              string          `json:"type"`
	VoiceStatus       string          `json:"voice_status"`
	ConnectionState   string          `json:"connection_state"`
	InterviewComplete bool            `json:"interview_complete"`
	Report            json.RawMessage `json:"report"`
	Error             string          `json:"error"`
	ErrorCode         string          `json:"error_code"`
	Message           string          `json:"message"`
}

func main() {
	var (
		host       string
		resumeFile string
		job        string
		reportID   string
		secret     string
	)
	flag.StringVar(&host, "host", "localhost:8080", "Interview coach address")
	flag.StringVar(&resumeFile, "resume", "", "Resume text file to upload before starting")
	flag.StringVar(&job, "job", "", "Job description")
	flag.StringVar(&reportID, "report-id", "", "Report identifier")
	flag.StringVar(&secret, "secret", os.Getenv("INTERVIEW_HTTP_AUTH_SECRET"), "Shared secret used to mint a bearer token")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	header := http.Header{}
	if secret != "" {
		issuer, err := auth.NewIssuer(secret, time.Hour)
		if err != nil {
			logger.Fatal("Failed to create token issuer", zap.Error(err))
		}
		token, err := issuer.Issue("wsclient")
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		header.Set("Authorization", "Bearer "+token)
	}

	// Step 1: upload the interview context
	if resumeFile != "" {
		resume, err := os.ReadFile(resumeFile)
		if err != nil {
			logger.Fatal("Failed to read resume", zap.Error(err))
		}
		if err := putContext(host, header, string(resume), job, reportID); err != nil {
			logger.Fatal("Failed to upload interview context", zap.Error(err))
		}
		logger.Info("Interview context uploaded")
	}

	// Step 2: connect to the status feed
	wsURL := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), header)
	if err != nil {
		if resp != nil {
			logger.Fatal("WebSocket connection failed", zap.Int("status", resp.StatusCode), zap.Error(err))
		}
		logger.Fatal("WebSocket connection failed", zap.Error(err))
	}
	defer conn.Close()
	logger.Info("Connected", zap.String("url", wsURL.String()))

	// Step 3: start the conversation
	if err := conn.WriteJSON(map[string]any{"type": "start"}); err != nil {
		logger.Fatal("Failed to send start", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Stopping conversation")
		conn.WriteJSON(map[string]any{"type": "stop"})
	}()

	// Step 4: follow status until the report arrives
	started := false
	for {
		var msg statusMessage
		if err := conn.ReadJSON(&msg); err != nil {
			logger.Fatal("Connection closed", zap.Error(err))
		}

		switch msg.Type {
		case "error":
			logger.Error("Server error", zap.String("code", msg.ErrorCode), zap.String("message", msg.Message))
			if !started {
				os.Exit(1)
			}
		case "status":
			logger.Info("Status",
				zap.String("voice", msg.VoiceStatus),
				zap.String("connection", msg.ConnectionState),
				zap.Bool("complete", msg.InterviewComplete))
			if msg.VoiceStatus == "listening" || msg.VoiceStatus == "speaking" {
				started = true
			}
			if msg.Error != "" {
				logger.Error("Conversation error", zap.String("error", msg.Error))
			}
			if started && msg.VoiceStatus == "idle" && msg.Report != nil {
				fmt.Println(string(msg.Report))
				return
			}
		}
	}
}

func putContext(host string, header http.Header, resume, job, reportID string) error {
	body, err := json.Marshal(map[string]string{
		"resume_text":     resume,
		"job_description": job,
		"report_id":       reportID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, "http://"+host+"/api/v1/interview/context", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = header.Clone()
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("context upload failed with status %d", resp.StatusCode)
	}
	return nil
}
