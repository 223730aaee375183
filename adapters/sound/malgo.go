package sound

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain/entities"
	"github.com/satriahrh/interview-coach/domain/repositories"
	"github.com/satriahrh/interview-coach/internal/audio"
)

const periodMillis = 20

// MalgoBackend owns a miniaudio context and opens capture and playback devices on it
type MalgoBackend struct {
	ctx     *malgo.AllocatedContext
	micRate int
	logger  *zap.Logger
}

var (
	_ repositories.Microphone          = (*MalgoBackend)(nil)
	_ repositories.AudioContextFactory = (*MalgoBackend)(nil)
)

// NewMalgoBackend initializes the native audio context. Capture runs at micRate.
func NewMalgoBackend(micRate int, logger *zap.Logger) (*MalgoBackend, error) {
	config := malgo.ContextConfig{}
	config.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, config, func(message string) {
		logger.Debug("malgo", zap.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	return &MalgoBackend{ctx: ctx, micRate: micRate, logger: logger}, nil
}

// Open starts a mono capture device
func (b *MalgoBackend) Open(ctx context.Context) (repositories.MicStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := &malgoMicStream{
		rate: b.micRate,
		subs: make(map[uint64]func([]float32)),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(b.micRate)
	deviceConfig.PeriodSizeInMilliseconds = periodMillis

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			samples, err := audio.BytesToInt16(in)
			if err != nil {
				return
			}
			stream.publish(audio.Int16ToFloat32(samples))
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, classifyDeviceError(err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, classifyDeviceError(err)
	}
	stream.device = device

	b.logger.Info("Microphone capture started", zap.Int("sampleRate", b.micRate))
	return stream, nil
}

// NewContext creates a suspended mono playback context driven by a Scheduler
func (b *MalgoBackend) NewContext(sampleRate int) (repositories.AudioContext, error) {
	pc := &malgoPlayback{Scheduler: NewScheduler(sampleRate)}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = periodMillis

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			block := pc.Render(int(frameCount))
			copy(out, audio.Int16ToBytes(audio.EncodePCM16(block)))
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to init playback device: %w", classifyDeviceError(err))
	}
	pc.device = device

	b.logger.Info("Playback context created", zap.Int("sampleRate", sampleRate))
	return pc, nil
}

// Close releases the native context
func (b *MalgoBackend) Close() {
	if err := b.ctx.Uninit(); err != nil {
		b.logger.Warn("Failed to uninit audio context", zap.Error(err))
	}
	b.ctx.Free()
}

type malgoMicStream struct {
	rate   int
	device *malgo.Device

	mu   sync.Mutex
	seq  uint64
	subs map[uint64]func([]float32)

	stopOnce sync.Once
}

func (s *malgoMicStream) SampleRate() int { return s.rate }

func (s *malgoMicStream) Subscribe(fn func([]float32)) func() {
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

func (s *malgoMicStream) publish(frame []float32) {
	s.mu.Lock()
	subs := make([]func([]float32), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(frame)
	}
}

func (s *malgoMicStream) Stop() {
	s.stopOnce.Do(func() {
		s.device.Stop()
		s.device.Uninit()
	})
}

type malgoPlayback struct {
	*Scheduler
	device *malgo.Device

	mu      sync.Mutex
	started bool
}

func (p *malgoPlayback) Resume(ctx context.Context) error {
	if err := p.Scheduler.Resume(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	p.started = true
	return nil
}

func (p *malgoPlayback) Close() error {
	p.mu.Lock()
	if p.started {
		p.device.Stop()
		p.started = false
	}
	p.mu.Unlock()

	p.device.Uninit()
	return p.Scheduler.Close()
}

// classifyDeviceError maps backend failures onto the media error sentinels
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %v", entities.ErrPermissionDenied, err)
	case strings.Contains(msg, "no device"), strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", entities.ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("failed to open audio device: %w", err)
	}
}
