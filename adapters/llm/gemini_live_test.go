package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/satriahrh/interview-coach/domain"
	"github.com/satriahrh/interview-coach/domain/repositories"
	"github.com/satriahrh/interview-coach/internal/audio"
)

type fakeConn struct {
	mu       sync.Mutex
	inbound  chan *genai.LiveServerMessage
	recvErr  error
	audio    []genai.LiveRealtimeInput
	tools    []genai.LiveToolResponseInput
	closed   bool
	closedCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan *genai.LiveServerMessage, 8),
		closedCh: make(chan struct{}),
	}
}

func (f *fakeConn) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, input)
	return nil
}

func (f *fakeConn) SendToolResponse(input genai.LiveToolResponseInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = append(f.tools, input)
	return nil
}

func (f *fakeConn) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg, ok := <-f.inbound:
		if !ok {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.recvErr != nil {
				return nil, f.recvErr
			}
			return nil, io.EOF
		}
		return msg, nil
	case <-f.closedCh:
		return nil, io.EOF
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

type recorder struct {
	mu       sync.Mutex
	messages []domain.ServerMessage
	errs     []error
	closed   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{closed: make(chan struct{})}
}

func (r *recorder) callbacks() repositories.LiveCallbacks {
	return repositories.LiveCallbacks{
		OnMessage: func(m domain.ServerMessage) {
			r.mu.Lock()
			r.messages = append(r.messages, m)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnClose: func() { close(r.closed) },
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for OnClose")
	}
}

func TestTranslateServerMessages(t *testing.T) {
	pcm := audio.Int16ToBytes([]int16{1, 2, 3})
	msg := &genai.LiveServerMessage{
		SetupComplete: &genai.LiveServerSetupComplete{},
		ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
			{ID: "c1", Name: "end_interview"},
		}},
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: pcm, MIMEType: "audio/pcm;rate=24000"}},
				{Text: "ignored"},
				{InlineData: &genai.Blob{Data: pcm}},
			}},
			Interrupted: true,
		},
	}

	out := translate(msg)
	if len(out) != 4 {
		t.Fatalf("Expected 4 messages, got %d: %#v", len(out), out)
	}
	if _, ok := out[0].(domain.SetupComplete); !ok {
		t.Errorf("Expected SetupComplete first, got %T", out[0])
	}
	call, ok := out[1].(domain.ToolCall)
	if !ok || len(call.Calls) != 1 || call.Calls[0].ID != "c1" || !call.Includes("end_interview") {
		t.Errorf("Unexpected tool call %#v", out[1])
	}
	chunk, ok := out[2].(domain.ContentChunk)
	if !ok || len(chunk.AudioParts) != 2 {
		t.Fatalf("Expected 2 audio parts, got %#v", out[2])
	}
	samples, err := audio.DecodeBase64ToInt16(chunk.AudioParts[0])
	if err != nil || len(samples) != 3 || samples[2] != 3 {
		t.Errorf("Unexpected decoded part %v, %v", samples, err)
	}
	if _, ok := out[3].(domain.Interrupted); !ok {
		t.Errorf("Expected Interrupted last, got %T", out[3])
	}

	if translate(nil) != nil {
		t.Error("Expected nil for nil message")
	}
}

func TestGeminiLiveSessionReceiveLoop(t *testing.T) {
	conn := newFakeConn()
	rec := newRecorder()
	s := newGeminiLiveSession(conn, rec.callbacks(), zaptest.NewLogger(t))
	go s.receiveLoop()

	conn.inbound <- &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}
	close(conn.inbound)
	rec.wait(t)

	if len(rec.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(rec.messages))
	}
	if len(rec.errs) != 0 {
		t.Errorf("Expected EOF to close without error, got %v", rec.errs)
	}
}

func TestGeminiLiveSessionReceiveError(t *testing.T) {
	conn := newFakeConn()
	conn.recvErr = errors.New("connection reset")
	rec := newRecorder()
	s := newGeminiLiveSession(conn, rec.callbacks(), zaptest.NewLogger(t))
	go s.receiveLoop()

	close(conn.inbound)
	rec.wait(t)

	if len(rec.errs) != 1 {
		t.Errorf("Expected one reported error, got %v", rec.errs)
	}
}

func TestGeminiLiveSessionSends(t *testing.T) {
	conn := newFakeConn()
	rec := newRecorder()
	s := newGeminiLiveSession(conn, rec.callbacks(), zaptest.NewLogger(t))
	go s.receiveLoop()

	data := audio.EncodeInt16ToBase64([]int16{7, 8})
	if err := s.SendAudio(domain.AudioInput{Data: data, MIMEType: audio.MIMEType(16000)}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.SendToolResponse(domain.OKResponses([]domain.FunctionCall{{ID: "c1", Name: "end_interview"}})); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(conn.audio) != 1 || conn.audio[0].Audio.MIMEType != "audio/pcm;rate=16000" || len(conn.audio[0].Audio.Data) != 4 {
		t.Errorf("Unexpected realtime input %#v", conn.audio)
	}
	if len(conn.tools) != 1 {
		t.Fatalf("Expected 1 tool response, got %d", len(conn.tools))
	}
	fr := conn.tools[0].FunctionResponses[0]
	if fr.ID != "c1" || fr.Name != "end_interview" || fr.Response["result"] != "ok" {
		t.Errorf("Unexpected function response %#v", fr)
	}

	if err := s.SendAudio(domain.AudioInput{Data: "%%%"}); err == nil {
		t.Error("Expected error for invalid base64")
	}

	s.Close()
	rec.wait(t)
	if err := s.SendAudio(domain.AudioInput{Data: data}); err == nil {
		t.Error("Expected error sending after close")
	}
	if len(rec.errs) != 0 {
		t.Errorf("Expected local close to report no error, got %v", rec.errs)
	}
}

func TestBuildConnectConfig(t *testing.T) {
	cfg := buildConnectConfig(repositories.LiveConfig{
		SystemInstruction: "You are a recruiter",
		Tools:             []repositories.FunctionDeclaration{{Name: "end_interview", Description: "end"}},
	})

	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("Expected audio modality, got %v", cfg.ResponseModalities)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "You are a recruiter" {
		t.Errorf("Unexpected system instruction %#v", cfg.SystemInstruction)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].FunctionDeclarations[0].Name != "end_interview" {
		t.Errorf("Unexpected tools %#v", cfg.Tools)
	}
}

func TestGeminiLiveRequiresToken(t *testing.T) {
	g := NewGeminiLive(GeminiLiveConfig{}, zaptest.NewLogger(t))
	if g.model != defaultModel {
		t.Errorf("Expected default model, got %s", g.model)
	}
	if _, err := g.Dial(context.Background(), "", repositories.LiveConfig{}, repositories.LiveCallbacks{}); err == nil {
		t.Error("Expected error without token")
	}
}

func TestMockGeminiLiveScript(t *testing.T) {
	m := NewMockGeminiLive(MockLiveConfig{ReplyAfter: 2, ReplyChunks: 3, EndAfter: 50 * time.Millisecond}, zaptest.NewLogger(t))

	var mu sync.Mutex
	var got []domain.ServerMessage
	endCalled := make(chan struct{})
	var once sync.Once

	session, err := m.Dial(context.Background(), "token", repositories.LiveConfig{Model: "mock"}, repositories.LiveCallbacks{
		OnMessage: func(msg domain.ServerMessage) {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
			if tc, ok := msg.(domain.ToolCall); ok && tc.Includes("end_interview") {
				once.Do(func() { close(endCalled) })
			}
		},
	})
	if err != nil {
		t.Fatalf("Unexpected dial error: %v", err)
	}
	defer session.Close()

	frame := audio.EncodeInt16ToBase64(make([]int16, 160))
	session.SendAudio(domain.AudioInput{Data: frame})
	session.SendAudio(domain.AudioInput{Data: frame})

	select {
	case <-endCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for end_interview call")
	}

	mu.Lock()
	defer mu.Unlock()
	if _, ok := got[0].(domain.SetupComplete); !ok {
		t.Errorf("Expected SetupComplete first, got %T", got[0])
	}
	var chunks int
	for _, msg := range got {
		if c, ok := msg.(domain.ContentChunk); ok {
			chunks += len(c.AudioParts)
		}
	}
	if chunks != 3 {
		t.Errorf("Expected 3 reply chunks, got %d", chunks)
	}
	if n := m.Sessions()[0].AudioChunks(); n != 2 {
		t.Errorf("Expected 2 audio chunks received, got %d", n)
	}
}
