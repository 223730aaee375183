package sound

import (
	"context"
	"sync"

	"github.com/satriahrh/interview-coach/domain/repositories"
)

// FakeMicrophone hands out streams that are fed by Push
type FakeMicrophone struct {
	rate int

	mu      sync.Mutex
	err     error
	streams []*FakeStream
}

var _ repositories.Microphone = (*FakeMicrophone)(nil)

func NewFakeMicrophone(sampleRate int) *FakeMicrophone {
	return &FakeMicrophone{rate: sampleRate}
}

// FailWith makes subsequent Open calls return err
func (m *FakeMicrophone) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *FakeMicrophone) Open(ctx context.Context) (repositories.MicStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := &FakeStream{rate: m.rate, subs: make(map[uint64]func([]float32))}
	m.streams = append(m.streams, s)
	return s, nil
}

// Streams returns every stream opened so far
func (m *FakeMicrophone) Streams() []*FakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*FakeStream(nil), m.streams...)
}

// Last returns the most recently opened stream, or nil
func (m *FakeMicrophone) Last() *FakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

type FakeStream struct {
	rate int

	mu      sync.Mutex
	seq     uint64
	subs    map[uint64]func([]float32)
	stopped bool
}

func (s *FakeStream) SampleRate() int { return s.rate }

func (s *FakeStream) Subscribe(fn func([]float32)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := s.seq
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Push delivers one frame to every subscriber synchronously. Stopped streams drop it.
func (s *FakeStream) Push(frame []float32) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	subs := make([]func([]float32), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(frame)
	}
}

func (s *FakeStream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *FakeStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *FakeStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// FakeContextFactory creates plain Schedulers that tests drive with Render
type FakeContextFactory struct {
	mu       sync.Mutex
	contexts []*Scheduler
}

var _ repositories.AudioContextFactory = (*FakeContextFactory)(nil)

func (f *FakeContextFactory) NewContext(sampleRate int) (repositories.AudioContext, error) {
	s := NewScheduler(sampleRate)
	f.mu.Lock()
	f.contexts = append(f.contexts, s)
	f.mu.Unlock()
	return s, nil
}

// Contexts returns every context created so far
func (f *FakeContextFactory) Contexts() []*Scheduler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Scheduler(nil), f.contexts...)
}
