package llm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain"
	"github.com/satriahrh/interview-coach/domain/repositories"
	"github.com/satriahrh/interview-coach/internal/audio"
)

// MockLiveConfig scripts the mock endpoint
type MockLiveConfig struct {
	// SetupDelay is the time between dial and setupComplete
	SetupDelay time.Duration
	// ReplyAfter is how many audio chunks are received before each spoken reply
	ReplyAfter int
	// ReplyChunks is the number of 200ms tone chunks in one reply
	ReplyChunks int
	// EndAfter requests termination this long after dial. Zero disables it.
	EndAfter time.Duration
	// EndFunction is the termination function name to call
	EndFunction string
}

// MockGeminiLive is an offline stand-in for the live endpoint. It answers
// every few received audio chunks with a short tone and can request
// termination on a timer.
type MockGeminiLive struct {
	config MockLiveConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions []*MockLiveSession
}

var _ repositories.LiveDialer = (*MockGeminiLive)(nil)

// NewMockGeminiLive creates a new mock dialer
func NewMockGeminiLive(config MockLiveConfig, logger *zap.Logger) *MockGeminiLive {
	if config.ReplyAfter <= 0 {
		config.ReplyAfter = 25
	}
	if config.ReplyChunks <= 0 {
		config.ReplyChunks = 5
	}
	if config.EndFunction == "" {
		config.EndFunction = "end_interview"
	}
	return &MockGeminiLive{config: config, logger: logger}
}

// Dial implements repositories.LiveDialer
func (m *MockGeminiLive) Dial(ctx context.Context, token string, config repositories.LiveConfig, callbacks repositories.LiveCallbacks) (repositories.LiveSession, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &MockLiveSession{
		config:    m.config,
		callbacks: callbacks,
		logger:    m.logger,
		done:      make(chan struct{}),
		inbox:     make(chan domain.ServerMessage, 64),
	}

	m.mu.Lock()
	m.sessions = append(m.sessions, s)
	m.mu.Unlock()

	m.logger.Info("Mock live session connected", zap.String("model", config.Model))
	callbacks.Open()
	go s.run()
	return s, nil
}

// Sessions returns every session dialed so far
func (m *MockGeminiLive) Sessions() []*MockLiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockLiveSession(nil), m.sessions...)
}

// MockLiveSession is one scripted session
type MockLiveSession struct {
	config    MockLiveConfig
	callbacks repositories.LiveCallbacks
	logger    *zap.Logger

	inbox     chan domain.ServerMessage
	done      chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	audioChunks   int
	toolResponses []domain.FunctionResponse
}

func (s *MockLiveSession) run() {
	defer s.callbacks.Close()

	var endTimer <-chan time.Time
	if s.config.EndAfter > 0 {
		t := time.NewTimer(s.config.EndAfter)
		defer t.Stop()
		endTimer = t.C
	}

	setup := time.NewTimer(s.config.SetupDelay)
	defer setup.Stop()
	select {
	case <-setup.C:
		s.callbacks.Message(domain.SetupComplete{})
	case <-s.done:
		return
	}

	for {
		select {
		case msg := <-s.inbox:
			s.callbacks.Message(msg)
		case <-endTimer:
			s.callbacks.Message(domain.ToolCall{Calls: []domain.FunctionCall{{
				ID:   fmt.Sprintf("call-%d", time.Now().UnixNano()),
				Name: s.config.EndFunction,
			}}})
		case <-s.done:
			return
		}
	}
}

// SendAudio counts incoming audio and queues a spoken reply every ReplyAfter chunks
func (s *MockLiveSession) SendAudio(input domain.AudioInput) error {
	if _, err := audio.DecodeBase64ToInt16(input.Data); err != nil {
		return err
	}

	s.mu.Lock()
	s.audioChunks++
	reply := s.audioChunks%s.config.ReplyAfter == 0
	s.mu.Unlock()

	if reply {
		s.push(domain.ContentChunk{AudioParts: toneChunks(s.config.ReplyChunks)})
	}
	return s.alive()
}

// SendToolResponse records acknowledgements
func (s *MockLiveSession) SendToolResponse(responses []domain.FunctionResponse) error {
	s.mu.Lock()
	s.toolResponses = append(s.toolResponses, responses...)
	s.mu.Unlock()
	return s.alive()
}

// Close ends the session
func (s *MockLiveSession) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// AudioChunks is the number of audio messages received
func (s *MockLiveSession) AudioChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioChunks
}

// ToolResponses returns the acknowledgements received
func (s *MockLiveSession) ToolResponses() []domain.FunctionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FunctionResponse(nil), s.toolResponses...)
}

func (s *MockLiveSession) push(msg domain.ServerMessage) {
	select {
	case s.inbox <- msg:
	case <-s.done:
	default:
		s.logger.Warn("Mock live inbox full, dropping message")
	}
}

func (s *MockLiveSession) alive() error {
	select {
	case <-s.done:
		return fmt.Errorf("live session closed")
	default:
		return nil
	}
}

// toneChunks renders n base64 chunks of a 440Hz tone, 200ms each at the output rate
func toneChunks(n int) []string {
	const perChunk = audio.OutputSampleRate / 5
	out := make([]string, n)
	for c := range out {
		samples := make([]float32, perChunk)
		for i := range samples {
			t := float64(c*perChunk+i) / audio.OutputSampleRate
			samples[i] = float32(0.2 * math.Sin(2*math.Pi*440*t))
		}
		out[c] = audio.EncodeInt16ToBase64(audio.EncodePCM16(samples))
	}
	return out
}
