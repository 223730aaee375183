package repositories

import "context"

// Microphone acquires capture streams
type Microphone interface {
	// Open starts capture. Failures wrap entities.ErrPermissionDenied or
	// entities.ErrDeviceNotFound when the cause is known.
	Open(ctx context.Context) (MicStream, error)
}

// MicStream is a live capture of mono float samples in [-1, 1]
type MicStream interface {
	SampleRate() int
	// Subscribe registers a frame listener and returns its removal func.
	// Listeners must not retain the slice.
	Subscribe(fn func(frame []float32)) (unsubscribe func())
	// Stop releases the device. Safe to call more than once.
	Stop()
}

// SpeechCallbacks receive voice-activity transitions
type SpeechCallbacks struct {
	OnSpeechStart func()
	OnSpeechEnd   func()
}

// DetectorFactory builds voice-activity detectors bound to a stream
type DetectorFactory interface {
	New(stream MicStream, callbacks SpeechCallbacks) (Detector, error)
}

// Detector classifies a stream into speech and non-speech intervals
type Detector interface {
	Start() error
	Pause() error
	Destroy()
}
