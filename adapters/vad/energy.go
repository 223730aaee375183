package vad

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain/repositories"
)

const (
	FrameDuration = 20 * time.Millisecond

	defaultThreshold = 0.02
	defaultDebounce  = 60 * time.Millisecond
	defaultHangover  = 800 * time.Millisecond
)

// Config holds configuration for the energy detector
// Optional fields with defaults:
// - Threshold: RMS level counted as speech (default: 0.02)
// - Debounce: loud time required before speech starts (default: 60ms)
// - Hangover: quiet time required before speech ends (default: 800ms)
type Config struct {
	Threshold float64
	Debounce  time.Duration
	Hangover  time.Duration
}

// Validate checks the detector configuration
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("vad threshold must be within [0, 1], got %f", c.Threshold)
	}
	if c.Debounce < 0 || c.Hangover < 0 {
		return fmt.Errorf("vad debounce and hangover must not be negative")
	}
	return nil
}

// Factory builds energy detectors
type Factory struct {
	threshold   float64
	startFrames int
	endFrames   int
	logger      *zap.Logger
}

var _ repositories.DetectorFactory = (*Factory)(nil)

// NewFactory creates a detector factory
func NewFactory(config Config, logger *zap.Logger) (*Factory, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	threshold := config.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
		logger.Info("Using default VAD threshold", zap.Float64("threshold", threshold))
	}
	debounce := config.Debounce
	if debounce == 0 {
		debounce = defaultDebounce
	}
	hangover := config.Hangover
	if hangover == 0 {
		hangover = defaultHangover
	}

	return &Factory{
		threshold:   threshold,
		startFrames: framesFor(debounce),
		endFrames:   framesFor(hangover),
		logger:      logger,
	}, nil
}

func framesFor(d time.Duration) int {
	n := int((d + FrameDuration - 1) / FrameDuration)
	return max(n, 1)
}

// New binds a detector to the stream. It stays idle until Start.
func (f *Factory) New(stream repositories.MicStream, callbacks repositories.SpeechCallbacks) (repositories.Detector, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is required")
	}
	frameLen := stream.SampleRate() * int(FrameDuration/time.Millisecond) / 1000
	if frameLen <= 0 {
		return nil, fmt.Errorf("invalid stream sample rate %d", stream.SampleRate())
	}

	return &EnergyDetector{
		stream:      stream,
		callbacks:   callbacks,
		threshold:   f.threshold,
		startFrames: f.startFrames,
		endFrames:   f.endFrames,
		frameLen:    frameLen,
		logger:      f.logger,
	}, nil
}

// EnergyDetector raises speech start after a run of loud frames and speech
// end after a run of quiet frames
type EnergyDetector struct {
	stream      repositories.MicStream
	callbacks   repositories.SpeechCallbacks
	threshold   float64
	startFrames int
	endFrames   int
	frameLen    int
	logger      *zap.Logger

	mu          sync.Mutex
	buf         []float32
	loud        int
	quiet       int
	speaking    bool
	unsubscribe func()
	destroyed   bool
}

func (d *EnergyDetector) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return fmt.Errorf("detector destroyed")
	}
	if d.unsubscribe != nil {
		return nil
	}
	d.unsubscribe = d.stream.Subscribe(d.process)
	d.logger.Debug("VAD started")
	return nil
}

// Pause detaches from the stream and forgets partial state. No end event is raised.
func (d *EnergyDetector) Pause() error {
	d.mu.Lock()
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	d.reset()
	d.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		d.logger.Debug("VAD paused")
	}
	return nil
}

func (d *EnergyDetector) Destroy() {
	d.Pause()
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

// Speaking reports whether the detector is inside a speech interval
func (d *EnergyDetector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

func (d *EnergyDetector) reset() {
	d.buf = d.buf[:0]
	d.loud, d.quiet = 0, 0
	d.speaking = false
}

func (d *EnergyDetector) process(frame []float32) {
	var events []func()

	d.mu.Lock()
	if d.unsubscribe == nil {
		d.mu.Unlock()
		return
	}
	d.buf = append(d.buf, frame...)
	off := 0
	for len(d.buf)-off >= d.frameLen {
		level := rms(d.buf[off : off+d.frameLen])
		off += d.frameLen

		if level >= d.threshold {
			d.loud++
			d.quiet = 0
		} else {
			d.quiet++
			d.loud = 0
		}

		switch {
		case !d.speaking && d.loud >= d.startFrames:
			d.speaking = true
			if d.callbacks.OnSpeechStart != nil {
				events = append(events, d.callbacks.OnSpeechStart)
			}
		case d.speaking && d.quiet >= d.endFrames:
			d.speaking = false
			if d.callbacks.OnSpeechEnd != nil {
				events = append(events, d.callbacks.OnSpeechEnd)
			}
		}
	}
	d.buf = d.buf[:copy(d.buf, d.buf[off:])]
	d.mu.Unlock()

	for _, fn := range events {
		fn()
	}
}

// rms is the root-mean-square level of float samples in [-1, 1]
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
