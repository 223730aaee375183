package audio

import (
	"sync"
	"time"
)

const (
	DefaultQueueMaxLength = 100
	DefaultQueueTTL       = 5 * time.Second
)

// QueueState tracks whether the backlog has been handed to a session
type QueueState int

const (
	QueuePending QueueState = iota
	QueueFlushed
)

func (s QueueState) String() string {
	if s == QueueFlushed {
		return "flushed"
	}
	return "pending"
}

// Frame is one captured chunk with its enqueue time
type Frame struct {
	Data      []float32
	Timestamp time.Time
}

// Queue buffers microphone frames captured before a live session exists.
// When the first queued frame is older than the TTL at insertion time the
// whole queue is reset, and past the max length the oldest frame is evicted.
type Queue struct {
	mu        sync.Mutex
	frames    []Frame
	startTime time.Time
	maxLength int
	ttl       time.Duration
	state     QueueState
	now       func() time.Time
}

// NewQueue creates an empty pending queue
func NewQueue(maxLength int, ttl time.Duration) *Queue {
	if maxLength <= 0 {
		maxLength = DefaultQueueMaxLength
	}
	if ttl <= 0 {
		ttl = DefaultQueueTTL
	}
	return &Queue{
		maxLength: maxLength,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Add copies and enqueues a frame. Adding after a flush re-arms the queue.
func (q *Queue) Add(data []float32) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if q.startTime.IsZero() {
		q.startTime = now
	}
	if now.Sub(q.startTime) > q.ttl {
		q.reset()
		q.startTime = now
	}

	frame := Frame{Data: append([]float32(nil), data...), Timestamp: now}
	q.frames = append(q.frames, frame)
	if len(q.frames) > q.maxLength {
		q.frames = q.frames[1:]
	}
	q.state = QueuePending
}

// ValidChunks returns the frames younger than the TTL, oldest first
func (q *Queue) ValidChunks() []Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.valid(q.now())
}

func (q *Queue) valid(now time.Time) []Frame {
	out := make([]Frame, 0, len(q.frames))
	for _, f := range q.frames {
		if !f.Timestamp.IsZero() && now.Sub(f.Timestamp) < q.ttl {
			out = append(out, f)
		}
	}
	return out
}

// Drain hands out the valid backlog exactly once and moves the queue to the
// flushed state. It returns nil when already flushed.
func (q *Queue) Drain() []Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == QueueFlushed {
		return nil
	}
	frames := q.valid(q.now())
	q.reset()
	q.state = QueueFlushed
	return frames
}

// Clear empties the queue and forgets its start time
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset()
}

func (q *Queue) reset() {
	q.frames = nil
	q.startTime = time.Time{}
}

func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames) == 0
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *Queue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}
