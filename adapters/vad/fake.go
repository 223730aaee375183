package vad

import (
	"sync"

	"github.com/satriahrh/interview-coach/domain/repositories"
)

// FakeFactory creates detectors whose transitions are triggered by tests
type FakeFactory struct {
	mu        sync.Mutex
	detectors []*FakeDetector
}

var _ repositories.DetectorFactory = (*FakeFactory)(nil)

func (f *FakeFactory) New(stream repositories.MicStream, callbacks repositories.SpeechCallbacks) (repositories.Detector, error) {
	d := &FakeDetector{stream: stream, callbacks: callbacks}
	f.mu.Lock()
	f.detectors = append(f.detectors, d)
	f.mu.Unlock()
	return d, nil
}

// Detectors returns every detector created so far
func (f *FakeFactory) Detectors() []*FakeDetector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeDetector(nil), f.detectors...)
}

// Last returns the most recently created detector, or nil
func (f *FakeFactory) Last() *FakeDetector {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.detectors) == 0 {
		return nil
	}
	return f.detectors[len(f.detectors)-1]
}

type FakeDetector struct {
	stream    repositories.MicStream
	callbacks repositories.SpeechCallbacks

	mu        sync.Mutex
	running   bool
	starts    int
	pauses    int
	destroyed bool
}

func (d *FakeDetector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	d.starts++
	return nil
}

func (d *FakeDetector) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.pauses++
	return nil
}

func (d *FakeDetector) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.destroyed = true
}

// Stream is the stream the detector was bound to
func (d *FakeDetector) Stream() repositories.MicStream { return d.stream }

// SpeechStart fires OnSpeechStart when running
func (d *FakeDetector) SpeechStart() {
	if d.Running() && d.callbacks.OnSpeechStart != nil {
		d.callbacks.OnSpeechStart()
	}
}

// SpeechEnd fires OnSpeechEnd when running
func (d *FakeDetector) SpeechEnd() {
	if d.Running() && d.callbacks.OnSpeechEnd != nil {
		d.callbacks.OnSpeechEnd()
	}
}

func (d *FakeDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *FakeDetector) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

func (d *FakeDetector) Pauses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pauses
}

func (d *FakeDetector) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}
