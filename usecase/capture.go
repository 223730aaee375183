package usecase

import (
	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain"
	"github.com/satriahrh/interview-coach/internal/audio"
)

// outboxSize bounds the chunks waiting for the sender. At the default buffer
// size this is over twenty seconds of microphone audio.
const outboxSize = 256

// outboundChunk is one encoded chunk bound to the session it was taken for
type outboundChunk struct {
	handle *liveHandle
	input  domain.AudioInput
}

// onFrame receives raw capture frames, feeds the recording mix and regroups
// the samples into BufferSize chunks for the live session
func (c *VoiceController) onFrame(cs *captureState, frame []float32) {
	c.tapMu.Lock()
	defer c.tapMu.Unlock()

	c.mu.Lock()
	active := c.capture == cs
	c.mu.Unlock()
	if !active {
		return
	}

	cs.mixer.WriteMic(frame)

	cs.pending = append(cs.pending, frame...)
	size := c.config.BufferSize
	off := 0
	for len(cs.pending)-off >= size {
		chunk := make([]float32, size)
		copy(chunk, cs.pending[off:off+size])
		off += size
		c.processChunk(cs, chunk)
	}
	cs.pending = cs.pending[:copy(cs.pending, cs.pending[off:])]
}

// processChunk queues the chunk while no session exists. Once one does, the
// backlog is handed to the sender ahead of the live chunk.
func (c *VoiceController) processChunk(cs *captureState, chunk []float32) {
	h, ok := c.sessions.Value()
	if !ok || h == nil || h.session == nil {
		cs.queue.Add(chunk)
		return
	}

	rate := cs.stream.SampleRate()
	if backlog := cs.queue.Drain(); len(backlog) > 0 {
		for _, f := range backlog {
			c.enqueueAudio(cs, h, f.Data, rate)
		}
		c.logger.Debug("Flushed queued audio", zap.Int("frames", len(backlog)))
		c.metrics.framesFlushed(c.lifetime, len(backlog))
	}
	c.enqueueAudio(cs, h, chunk, rate)
}

// enqueueAudio never blocks the capture thread; a chunk that finds the
// outbox full is dropped
func (c *VoiceController) enqueueAudio(cs *captureState, h *liveHandle, samples []float32, rate int) {
	out := outboundChunk{
		handle: h,
		input: domain.AudioInput{
			Data:     audio.EncodeForSession(samples, rate, c.config.PCMSampleRate),
			MIMEType: audio.MIMEType(c.config.PCMSampleRate),
		},
	}
	select {
	case cs.outbox <- out:
	default:
		c.logger.Warn("Dropping audio chunk, send backlog is full", zap.String("sessionID", h.id))
		c.metrics.sendError(c.lifetime)
	}
}

// runSender writes queued chunks to the live session in order until the
// capture stops
func (c *VoiceController) runSender(cs *captureState) {
	defer close(cs.senderDone)
	for {
		select {
		case <-cs.quit:
			return
		case out := <-cs.outbox:
			c.sendAudio(out.handle, out.input)
		}
	}
}

func (c *VoiceController) sendAudio(h *liveHandle, input domain.AudioInput) {
	if err := h.session.SendAudio(input); err != nil {
		c.logger.Warn("Failed to send audio", zap.String("sessionID", h.id), zap.Error(err))
		c.metrics.sendError(c.lifetime)
		return
	}
	c.metrics.chunkSent(c.lifetime)
}
