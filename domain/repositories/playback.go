package repositories

import (
	"context"
	"time"
)

// AudioContextState mirrors the lifecycle of a playback device
type AudioContextState string

const (
	AudioContextSuspended AudioContextState = "suspended"
	AudioContextRunning   AudioContextState = "running"
	AudioContextClosed    AudioContextState = "closed"
)

// AudioContext is a playback device with a monotonic clock and scheduled sources
type AudioContext interface {
	State() AudioContextState
	Resume(ctx context.Context) error
	// CurrentTime is the elapsed playback clock
	CurrentTime() time.Duration
	SampleRate() int
	// Schedule plays samples starting at the given clock time. onEnded fires
	// once when the source finishes or is stopped.
	Schedule(samples []float32, at time.Duration, onEnded func()) (ScheduledSource, error)
	// Tap observes every rendered output block, the mixable destination.
	Tap(fn func(block []float32)) (untap func())
	Close() error
}

// ScheduledSource is a handle to one scheduled buffer
type ScheduledSource interface {
	Stop() error
}

// AudioContextFactory creates playback contexts lazily
type AudioContextFactory interface {
	NewContext(sampleRate int) (AudioContext, error)
}
