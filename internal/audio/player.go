package audio

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain/repositories"
)

// DefaultPlaybackLead is inserted before a chunk when the timeline fell behind
const DefaultPlaybackLead = 20 * time.Millisecond

// StreamPlayer schedules decoded chunks back to back on one timeline
type StreamPlayer struct {
	ctx        repositories.AudioContext
	sampleRate int
	lead       time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	nextStart time.Duration
	sources   map[uint64]repositories.ScheduledSource
	seq       uint64
}

// NewStreamPlayer creates a player for chunks recorded at sampleRate
func NewStreamPlayer(ctx repositories.AudioContext, sampleRate int, lead time.Duration, logger *zap.Logger) *StreamPlayer {
	if sampleRate <= 0 {
		sampleRate = OutputSampleRate
	}
	if lead <= 0 {
		lead = DefaultPlaybackLead
	}
	return &StreamPlayer{
		ctx:        ctx,
		sampleRate: sampleRate,
		lead:       lead,
		logger:     logger,
		sources:    make(map[uint64]repositories.ScheduledSource),
	}
}

// AddChunk schedules PCM16 samples at max(nextStart, now+lead) and advances
// the timeline by the chunk duration. Empty chunks are ignored.
func (p *StreamPlayer) AddChunk(pcm []int16) error {
	if len(pcm) == 0 {
		return nil
	}
	samples := Int16ToFloat32(pcm)
	duration := time.Duration(len(samples)) * time.Second / time.Duration(p.sampleRate)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.ctx.CurrentTime()
	if p.nextStart < now {
		p.nextStart = now + p.lead
	}

	p.seq++
	id := p.seq
	src, err := p.ctx.Schedule(samples, p.nextStart, func() { p.release(id) })
	if err != nil {
		return fmt.Errorf("failed to schedule playback chunk: %w", err)
	}
	p.nextStart += duration
	p.sources[id] = src
	return nil
}

func (p *StreamPlayer) release(id uint64) {
	p.mu.Lock()
	delete(p.sources, id)
	p.mu.Unlock()
}

// Stop halts every scheduled source and resets the timeline to zero
func (p *StreamPlayer) Stop() {
	p.mu.Lock()
	sources := p.sources
	p.sources = make(map[uint64]repositories.ScheduledSource)
	p.nextStart = 0
	p.mu.Unlock()

	for _, src := range sources {
		if err := src.Stop(); err != nil {
			p.logger.Debug("Ignoring playback stop error", zap.Error(err))
		}
	}
}

// Pending is the number of sources scheduled and not yet ended
func (p *StreamPlayer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sources)
}

// NextStart is where the next chunk would be placed if the timeline is ahead
func (p *StreamPlayer) NextStart() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextStart
}
