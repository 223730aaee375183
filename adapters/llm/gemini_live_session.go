package llm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/interview-coach/domain"
	"github.com/satriahrh/interview-coach/domain/repositories"
	"github.com/satriahrh/interview-coach/internal/audio"
)

// liveConn is the subset of *genai.Session the adapter uses
type liveConn interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// GeminiLiveSession wraps a genai live session. Sends are serialized because
// the underlying websocket allows one writer at a time.
type GeminiLiveSession struct {
	conn      liveConn
	callbacks repositories.LiveCallbacks
	logger    *zap.Logger

	sendMu    sync.Mutex
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

var _ repositories.LiveSession = (*GeminiLiveSession)(nil)

func newGeminiLiveSession(conn liveConn, callbacks repositories.LiveCallbacks, logger *zap.Logger) *GeminiLiveSession {
	return &GeminiLiveSession{
		conn:      conn,
		callbacks: callbacks,
		logger:    logger,
	}
}

// SendAudio sends one realtime audio chunk
func (s *GeminiLiveSession) SendAudio(input domain.AudioInput) error {
	data, err := audio.DecodeBase64(input.Data)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.isClosed() {
		return fmt.Errorf("live session closed")
	}
	return s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: input.MIMEType},
	})
}

// SendToolResponse acknowledges function calls
func (s *GeminiLiveSession) SendToolResponse(responses []domain.FunctionResponse) error {
	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.isClosed() {
		return fmt.Errorf("live session closed")
	}
	return s.conn.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: out})
}

// Close ends the session. The receive loop reports OnClose once it exits.
func (s *GeminiLiveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *GeminiLiveSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *GeminiLiveSession) receiveLoop() {
	defer s.callbacks.Close()

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if !s.isClosed() && !isNormalClose(err) {
				s.callbacks.Error(err)
			}
			s.logger.Debug("Live receive loop finished", zap.Error(err))
			return
		}
		for _, m := range translate(msg) {
			s.callbacks.Message(m)
		}
	}
}

func isNormalClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// translate maps one server message onto the domain message sum type
func translate(msg *genai.LiveServerMessage) []domain.ServerMessage {
	if msg == nil {
		return nil
	}

	var out []domain.ServerMessage
	if msg.SetupComplete != nil {
		out = append(out, domain.SetupComplete{})
	}
	if msg.ToolCall != nil {
		calls := make([]domain.FunctionCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			calls = append(calls, domain.FunctionCall{ID: fc.ID, Name: fc.Name})
		}
		out = append(out, domain.ToolCall{Calls: calls})
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			var parts []string
			for _, p := range sc.ModelTurn.Parts {
				if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
					parts = append(parts, audio.EncodeBase64(p.InlineData.Data))
				}
			}
			if len(parts) > 0 {
				out = append(out, domain.ContentChunk{AudioParts: parts})
			}
		}
		if sc.Interrupted {
			out = append(out, domain.Interrupted{})
		}
	}
	return out
}
