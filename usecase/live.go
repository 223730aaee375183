package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain"
	"github.com/satriahrh/interview-coach/domain/entities"
	"github.com/satriahrh/interview-coach/domain/repositories"
	"github.com/satriahrh/interview-coach/internal/audio"
)

// liveHandle is one attempt at a live session. Callbacks compare their handle
// with the controller's current one so that events from a replaced session
// never touch controller state.
type liveHandle struct {
	id      string
	session repositories.LiveSession

	ready     chan struct{}
	readyOnce sync.Once
	connected chan struct{}
	connOnce  sync.Once
	done      chan struct{}
	doneOnce  sync.Once
}

func newLiveHandle() *liveHandle {
	return &liveHandle{
		id:        uuid.New().String(),
		ready:     make(chan struct{}),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (h *liveHandle) markReady()     { h.readyOnce.Do(func() { close(h.ready) }) }
func (h *liveHandle) markConnected() { h.connOnce.Do(func() { close(h.connected) }) }

func (h *liveHandle) finish() {
	h.markConnected()
	h.doneOnce.Do(func() { close(h.done) })
}

// fetchToken returns the cached credential or joins the single in-flight fetch
func (c *VoiceController) fetchToken(ctx context.Context) (string, error) {
	return c.tokens.Do(ctx, func() (string, error) {
		token, err := c.deps.Credentials.FetchToken(c.lifetime)
		if err != nil {
			return "", err
		}
		if token == "" {
			return "", entities.ErrTokenMissing
		}
		return token, nil
	})
}

// getSession returns the open session, joins a pending open, or dials a new one
func (c *VoiceController) getSession(ctx context.Context) (*liveHandle, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, entities.ErrControllerClosed
	}
	c.mu.Unlock()

	return c.sessions.Do(ctx, c.dial)
}

func (c *VoiceController) dial() (*liveHandle, error) {
	h := newLiveHandle()

	c.mu.Lock()
	c.current = h
	c.conn = entities.ConnectionConnecting
	c.publishLocked()
	c.mu.Unlock()

	token, err := c.fetchToken(c.lifetime)
	if err != nil {
		c.failOpen(h, err)
		return nil, fmt.Errorf("failed to fetch token: %w", err)
	}

	session, err := c.deps.Dialer.Dial(c.lifetime, token, c.liveConfig(), c.liveCallbacks(h))
	if err != nil {
		c.failOpen(h, err)
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	c.mu.Lock()
	h.session = session
	stale := c.current != h
	c.mu.Unlock()

	if stale {
		session.Close()
		h.finish()
		return nil, fmt.Errorf("live session replaced while connecting")
	}

	h.markConnected()
	c.metrics.sessionOpened(c.lifetime)
	c.logger.Info("Live session connected", zap.String("sessionID", h.id))
	return h, nil
}

func (c *VoiceController) failOpen(h *liveHandle, err error) {
	c.logger.Error("Failed to open live session", zap.String("sessionID", h.id), zap.Error(err))

	c.mu.Lock()
	if c.current == h {
		c.current = nil
		c.conn = entities.ConnectionClosed
		c.status = entities.VoiceStatusError
		c.lastError = err.Error()
		c.publishLocked()
	}
	c.mu.Unlock()
	h.finish()
}

func (c *VoiceController) liveCallbacks(h *liveHandle) repositories.LiveCallbacks {
	return repositories.LiveCallbacks{
		OnOpen: func() {
			c.mu.Lock()
			if c.current == h {
				c.conn = entities.ConnectionOpen
				c.publishLocked()
			}
			c.mu.Unlock()

			if err := c.ensureAudioContext(c.lifetime); err != nil {
				c.logger.Warn("Failed to prepare playback on open", zap.Error(err))
			}
		},
		OnMessage: func(msg domain.ServerMessage) {
			c.handleMessage(h, msg)
		},
		OnError: func(err error) {
			c.logger.Error("Live session error", zap.String("sessionID", h.id), zap.Error(err))
		},
		OnClose: func() {
			c.mu.Lock()
			if c.current == h {
				c.current = nil
				c.conn = entities.ConnectionClosed
				c.sessions.Clear()
				c.publishLocked()
			}
			c.mu.Unlock()
			h.finish()
			c.logger.Info("Live session closed", zap.String("sessionID", h.id))
		},
	}
}

func (c *VoiceController) handleMessage(h *liveHandle, msg domain.ServerMessage) {
	switch m := msg.(type) {
	case domain.SetupComplete:
		h.markReady()

	case domain.ToolCall:
		// the dialer may deliver messages before Dial has returned the session
		<-h.connected
		if h.session == nil {
			return
		}
		if err := h.session.SendToolResponse(domain.OKResponses(m.Calls)); err != nil {
			c.logger.Warn("Failed to acknowledge tool call", zap.Error(err))
		}
		if m.Includes(c.config.EndFunction) {
			c.handleEndInterview()
		}

	case domain.ContentChunk:
		c.mu.Lock()
		player := c.player
		c.mu.Unlock()
		if player == nil {
			return
		}
		for _, part := range m.AudioParts {
			pcm, err := audio.DecodeBase64ToInt16(part)
			if err != nil {
				c.logger.Warn("Dropping malformed audio part", zap.Error(err))
				continue
			}
			if err := player.AddChunk(pcm); err != nil {
				c.logger.Warn("Failed to schedule playback", zap.Error(err))
				continue
			}
			c.metrics.playbackChunk(c.lifetime)
		}

	case domain.Interrupted:
		c.mu.Lock()
		player := c.player
		c.mu.Unlock()
		if player != nil {
			player.Stop()
		}
	}
}

// ensureAudioContext lazily creates the playback context and its stream
// player, resuming the context when it is suspended
func (c *VoiceController) ensureAudioContext(ctx context.Context) error {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()

	c.mu.Lock()
	actx := c.audioCtx
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return entities.ErrControllerClosed
	}

	if actx == nil || actx.State() == repositories.AudioContextClosed {
		var err error
		actx, err = c.deps.AudioContexts.NewContext(c.config.OutputSampleRate)
		if err != nil {
			return fmt.Errorf("failed to create audio context: %w", err)
		}
		player := audio.NewStreamPlayer(actx, c.config.OutputSampleRate, c.config.PlaybackLead, c.logger)

		c.mu.Lock()
		c.audioCtx = actx
		c.player = player
		c.mu.Unlock()
	}

	if actx.State() == repositories.AudioContextSuspended {
		if err := actx.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume audio context: %w", err)
		}
	}
	return nil
}

func (c *VoiceController) speechCallbacks() repositories.SpeechCallbacks {
	return repositories.SpeechCallbacks{
		OnSpeechStart: c.onSpeechStart,
		OnSpeechEnd:   c.onSpeechEnd,
	}
}

func (c *VoiceController) onSpeechStart() {
	c.mu.Lock()
	if c.capture == nil {
		c.mu.Unlock()
		return
	}
	if c.status != entities.VoiceStatusSpeaking {
		c.status = entities.VoiceStatusSpeaking
		c.publishLocked()
	}
	c.mu.Unlock()

	if _, ok := c.sessions.Value(); ok || c.sessions.Pending() {
		return
	}
	c.goTracked(func() {
		if _, err := c.getSession(c.lifetime); err != nil {
			c.logger.Warn("Failed to reopen live session on speech", zap.Error(err))
		}
	})
}

func (c *VoiceController) onSpeechEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil || c.status != entities.VoiceStatusSpeaking {
		return
	}
	c.status = entities.VoiceStatusListening
	c.publishLocked()
}

// WaitReady blocks until the current session confirms its setup
func (c *VoiceController) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	h := c.current
	c.mu.Unlock()
	if h == nil {
		return entities.ErrSessionNotStarted
	}

	select {
	case <-h.ready:
		return nil
	case <-h.done:
		select {
		case <-h.ready:
			return nil
		default:
		}
		return errors.New("live session closed before setup completed")
	case <-ctx.Done():
		return ctx.Err()
	}
}
