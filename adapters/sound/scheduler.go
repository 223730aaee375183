package sound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/satriahrh/interview-coach/domain/repositories"
)

// Scheduler is a sample-accurate playback clock. Sources are mixed into the
// blocks returned by Render; the clock only advances while running.
type Scheduler struct {
	rate int

	mu      sync.Mutex
	state   repositories.AudioContextState
	clock   int64
	seq     uint64
	sources map[uint64]*scheduledSource
	taps    map[uint64]func([]float32)
}

var _ repositories.AudioContext = (*Scheduler)(nil)

type scheduledSource struct {
	scheduler *Scheduler
	id        uint64
	start     int64
	samples   []float32
	onEnded   func()
}

// NewScheduler creates a suspended scheduler at the given sample rate
func NewScheduler(sampleRate int) *Scheduler {
	return &Scheduler{
		rate:    sampleRate,
		state:   repositories.AudioContextSuspended,
		sources: make(map[uint64]*scheduledSource),
		taps:    make(map[uint64]func([]float32)),
	}
}

func (s *Scheduler) State() repositories.AudioContextState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resume starts the clock
func (s *Scheduler) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == repositories.AudioContextClosed {
		return fmt.Errorf("audio context closed")
	}
	s.state = repositories.AudioContextRunning
	return nil
}

func (s *Scheduler) CurrentTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toDuration(s.clock)
}

func (s *Scheduler) SampleRate() int {
	return s.rate
}

// Schedule queues samples to start at the given clock time. A start time in
// the past plays immediately from the next rendered block.
func (s *Scheduler) Schedule(samples []float32, at time.Duration, onEnded func()) (repositories.ScheduledSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == repositories.AudioContextClosed {
		return nil, fmt.Errorf("audio context closed")
	}

	start := s.toSamples(at)
	if start < s.clock {
		start = s.clock
	}

	s.seq++
	src := &scheduledSource{
		scheduler: s,
		id:        s.seq,
		start:     start,
		samples:   append([]float32(nil), samples...),
		onEnded:   onEnded,
	}
	s.sources[src.id] = src
	return src, nil
}

// Tap registers an observer for every rendered block
func (s *Scheduler) Tap(fn func(block []float32)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := s.seq
	s.taps[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.taps, id)
		s.mu.Unlock()
	}
}

// Render produces the next n samples. While suspended it returns silence
// without advancing the clock.
func (s *Scheduler) Render(n int) []float32 {
	out := make([]float32, n)

	s.mu.Lock()
	if s.state != repositories.AudioContextRunning || n <= 0 {
		s.mu.Unlock()
		return out
	}

	from, to := s.clock, s.clock+int64(n)
	var ended []func()
	for id, src := range s.sources {
		end := src.start + int64(len(src.samples))
		lo, hi := max(src.start, from), min(end, to)
		for i := lo; i < hi; i++ {
			out[i-from] += src.samples[i-src.start]
		}
		if end <= to {
			delete(s.sources, id)
			if src.onEnded != nil {
				ended = append(ended, src.onEnded)
			}
		}
	}
	s.clock = to

	taps := make([]func([]float32), 0, len(s.taps))
	for _, fn := range s.taps {
		taps = append(taps, fn)
	}
	s.mu.Unlock()

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
	for _, fn := range taps {
		fn(out)
	}
	for _, fn := range ended {
		fn()
	}
	return out
}

// Pending is the number of sources not yet finished
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Close stops every source and rejects further scheduling
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.state == repositories.AudioContextClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = repositories.AudioContextClosed
	var ended []func()
	for id, src := range s.sources {
		delete(s.sources, id)
		if src.onEnded != nil {
			ended = append(ended, src.onEnded)
		}
	}
	s.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return nil
}

func (s *Scheduler) toSamples(d time.Duration) int64 {
	return int64((d*time.Duration(s.rate) + time.Second/2) / time.Second)
}

func (s *Scheduler) toDuration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(s.rate)
}

// Stop removes the source. onEnded fires if it had not finished yet.
func (src *scheduledSource) Stop() error {
	s := src.scheduler
	s.mu.Lock()
	_, ok := s.sources[src.id]
	delete(s.sources, src.id)
	s.mu.Unlock()

	if ok && src.onEnded != nil {
		src.onEnded()
	}
	return nil
}
