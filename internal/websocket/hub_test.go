package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/interview-coach/domain/entities"
)

type fakeController struct {
	events chan entities.StatusEvent

	mu       sync.Mutex
	starts   int
	stops    []bool
	startErr error
}

func newFakeController() *fakeController {
	return &fakeController{events: make(chan entities.StatusEvent, 8)}
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeController) Stop(skipReport bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, skipReport)
}

func (f *fakeController) Snapshot() entities.Snapshot {
	return entities.Snapshot{VoiceStatus: entities.VoiceStatusIdle, ConnectionState: entities.ConnectionClosed}
}

func (f *fakeController) Subscribe() (<-chan entities.StatusEvent, func()) {
	return f.events, func() {}
}

func (f *fakeController) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeController) stopCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.stops...)
}

func setupTestHub(t *testing.T, controller Controller) (*Hub, *websocket.Conn) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hub := NewHub(controller, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, logger)
	})
	srv := httptest.NewServer(e)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
	})
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestHub_InitialStatus(t *testing.T) {
	hub, conn := setupTestHub(t, newFakeController())

	msg := readMessage(t, conn)
	if msg["type"] != "status" || msg["voice_status"] != "idle" || msg["connection_state"] != "closed" {
		t.Errorf("Unexpected initial message: %v", msg)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.ClientCount())
	}
}

func TestHub_BroadcastsStatusEvents(t *testing.T) {
	controller := newFakeController()
	_, conn := setupTestHub(t, controller)
	readMessage(t, conn)

	controller.events <- entities.NewStatusEvent(entities.Snapshot{
		VoiceStatus:     entities.VoiceStatusListening,
		ConnectionState: entities.ConnectionOpen,
		SessionID:       "session-1",
	})

	msg := readMessage(t, conn)
	if msg["voice_status"] != "listening" || msg["session_id"] != "session-1" {
		t.Errorf("Unexpected status message: %v", msg)
	}
}

func TestHub_Commands(t *testing.T) {
	controller := newFakeController()
	_, conn := setupTestHub(t, controller)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("Failed to send start: %v", err)
	}
	waitFor(t, "start", func() bool { return controller.startCount() == 1 })

	if err := conn.WriteJSON(map[string]any{"type": "stop", "skip_report": true}); err != nil {
		t.Fatalf("Failed to send stop: %v", err)
	}
	waitFor(t, "stop", func() bool { return len(controller.stopCalls()) == 1 })
	if !controller.stopCalls()[0] {
		t.Error("Expected skip_report to be forwarded")
	}

	if err := conn.WriteJSON(map[string]any{"type": "ping", "data": "hello"}); err != nil {
		t.Fatalf("Failed to send ping: %v", err)
	}
	msg := readMessage(t, conn)
	if msg["type"] != "pong" || msg["data"] != "hello" {
		t.Errorf("Expected pong, got %v", msg)
	}
}

func TestHub_StartErrors(t *testing.T) {
	controller := newFakeController()
	controller.startErr = entities.ErrAlreadyActive
	_, conn := setupTestHub(t, controller)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("Failed to send start: %v", err)
	}
	msg := readMessage(t, conn)
	if msg["type"] != "error" || msg["error_code"] != "already_active" {
		t.Errorf("Expected already_active error, got %v", msg)
	}
}

func TestHub_RejectsInvalidMessages(t *testing.T) {
	_, conn := setupTestHub(t, newFakeController())
	readMessage(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	msg := readMessage(t, conn)
	if msg["type"] != "error" || msg["error_code"] != "invalid_message" {
		t.Errorf("Expected invalid_message error, got %v", msg)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	msg = readMessage(t, conn)
	if msg["error_code"] != "unsupported_frame" {
		t.Errorf("Expected unsupported_frame error, got %v", msg)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, conn := setupTestHub(t, newFakeController())
	readMessage(t, conn)

	conn.Close()
	waitFor(t, "unregister", func() bool { return hub.ClientCount() == 0 })
}

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		want    any
		wantErr bool
	}{
		{name: "start", message: `{"type":"start"}`, want: &StartMessage{}},
		{name: "stop", message: `{"type":"stop","skip_report":true}`, want: &StopMessage{}},
		{name: "ping", message: `{"type":"ping","data":"x"}`, want: &PingMessage{}},
		{name: "missing type", message: `{"data":"x"}`, wantErr: true},
		{name: "unknown type", message: `{"type":"audio_chunk"}`, wantErr: true},
		{name: "invalid json", message: `{"type":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch tt.want.(type) {
			case *StartMessage:
				if _, ok := got.(*StartMessage); !ok {
					t.Errorf("Expected *StartMessage, got %T", got)
				}
			case *StopMessage:
				stop, ok := got.(*StopMessage)
				if !ok || !stop.SkipReport {
					t.Errorf("Expected stop with skip_report, got %#v", got)
				}
			case *PingMessage:
				ping, ok := got.(*PingMessage)
				if !ok || ping.Data != "x" {
					t.Errorf("Expected ping with data, got %#v", got)
				}
			}
		})
	}
}
