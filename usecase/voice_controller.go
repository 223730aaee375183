package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/interview-coach/domain/entities"
	"github.com/satriahrh/interview-coach/domain/repositories"
	"github.com/satriahrh/interview-coach/internal/audio"
	"github.com/satriahrh/interview-coach/internal/memo"
	"github.com/satriahrh/interview-coach/internal/recording"
)

const (
	DefaultModel           = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultEndFunction     = "end_interview"
	DefaultBufferSize      = 4096
	DefaultShutdownDelay   = 2000 * time.Millisecond
	DefaultPlayerStopDelay = 500 * time.Millisecond
)

// ControllerConfig holds the voice controller tuning
// Optional fields with defaults:
// - Model: live model name (default: "gemini-2.5-flash-native-audio-preview-12-2025")
// - EndFunction: termination function name (default: "end_interview")
// - PCMSampleRate: wire rate for microphone audio (default: 16000)
// - OutputSampleRate: playback and recording rate (default: 24000)
// - BufferSize: capture samples per processing tick (default: 4096)
// - QueueMaxLength / QueueTTL: pre-session backlog bounds (default: 100 / 5s)
// - ShutdownDelay: delay between the termination call and stop (default: 2s)
// - PlayerStopDelay: delay between stop and playback cut (default: 500ms)
// - PlaybackLead: gap inserted when playback fell behind (default: 20ms)
type ControllerConfig struct {
	Model            string
	EndFunction      string
	PCMSampleRate    int
	OutputSampleRate int
	BufferSize       int
	QueueMaxLength   int
	QueueTTL         time.Duration
	ShutdownDelay    time.Duration
	PlayerStopDelay  time.Duration
	PlaybackLead     time.Duration
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.EndFunction == "" {
		c.EndFunction = DefaultEndFunction
	}
	if c.PCMSampleRate == 0 {
		c.PCMSampleRate = audio.PCMSampleRate
	}
	if c.OutputSampleRate == 0 {
		c.OutputSampleRate = audio.OutputSampleRate
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.QueueMaxLength == 0 {
		c.QueueMaxLength = audio.DefaultQueueMaxLength
	}
	if c.QueueTTL == 0 {
		c.QueueTTL = audio.DefaultQueueTTL
	}
	if c.ShutdownDelay == 0 {
		c.ShutdownDelay = DefaultShutdownDelay
	}
	if c.PlayerStopDelay == 0 {
		c.PlayerStopDelay = DefaultPlayerStopDelay
	}
	if c.PlaybackLead == 0 {
		c.PlaybackLead = audio.DefaultPlaybackLead
	}
	return c
}

// Validate rejects negative tuning values
func (c ControllerConfig) Validate() error {
	if c.PCMSampleRate < 0 || c.OutputSampleRate < 0 || c.BufferSize < 0 || c.QueueMaxLength < 0 {
		return fmt.Errorf("controller rates and sizes must not be negative")
	}
	if c.QueueTTL < 0 || c.ShutdownDelay < 0 || c.PlayerStopDelay < 0 || c.PlaybackLead < 0 {
		return fmt.Errorf("controller durations must not be negative")
	}
	return nil
}

// Dependencies are the platform capabilities the controller drives
type Dependencies struct {
	Credentials   repositories.CredentialSource
	Reports       repositories.ReportSubmitter
	Dialer        repositories.LiveDialer
	Microphone    repositories.Microphone
	Detectors     repositories.DetectorFactory
	AudioContexts repositories.AudioContextFactory
	// Meter is optional; counters are dropped without it
	Meter metric.Meter
}

func (d Dependencies) validate() error {
	switch {
	case d.Credentials == nil:
		return errors.New("credential source is required")
	case d.Reports == nil:
		return errors.New("report submitter is required")
	case d.Dialer == nil:
		return errors.New("live dialer is required")
	case d.Microphone == nil:
		return errors.New("microphone is required")
	case d.Detectors == nil:
		return errors.New("detector factory is required")
	case d.AudioContexts == nil:
		return errors.New("audio context factory is required")
	}
	return nil
}

// captureState is everything wired by one Start and released by the matching Stop
type captureState struct {
	stream        repositories.MicStream
	queue         *audio.Queue
	mixer         *recording.Mixer
	recorder      *recording.Recorder
	untapMic      func()
	untapPlayback func()
	pending       []float32

	// outbox carries encoded chunks from the capture tap to the sender goroutine
	outbox     chan outboundChunk
	quit       chan struct{}
	quitOnce   sync.Once
	senderDone chan struct{}
}

func newCaptureState(stream repositories.MicStream, recorder *recording.Recorder, mixRate int, config ControllerConfig) *captureState {
	return &captureState{
		stream:     stream,
		queue:      audio.NewQueue(config.QueueMaxLength, config.QueueTTL),
		mixer:      recording.NewMixer(mixRate, stream.SampleRate(), recorder.Write),
		recorder:   recorder,
		outbox:     make(chan outboundChunk, outboxSize),
		quit:       make(chan struct{}),
		senderDone: make(chan struct{}),
	}
}

func (cs *captureState) stopSender() {
	cs.quitOnce.Do(func() { close(cs.quit) })
}

// VoiceController runs one voice interview at a time: microphone capture,
// the live session, playback and the combined recording.
type VoiceController struct {
	config   ControllerConfig
	deps     Dependencies
	logger   *zap.Logger
	metrics  *controllerMetrics
	lifetime context.Context
	cancel   context.CancelFunc

	tokens   memo.Memo[string]
	sessions memo.Memo[*liveHandle]

	// mediaMu serializes microphone acquisition between PreWarm and Start
	mediaMu sync.Mutex
	// audioMu serializes audio context creation
	audioMu sync.Mutex
	// tapMu serializes capture frame processing
	tapMu sync.Mutex

	mu                sync.Mutex
	interview         entities.Interview
	status            entities.VoiceStatus
	conn              entities.ConnectionState
	complete          bool
	report            json.RawMessage
	lastError         string
	shutdownScheduled bool
	disposed          bool
	current           *liveHandle
	capture           *captureState
	audioCtx          repositories.AudioContext
	player            *audio.StreamPlayer
	prewarmed         repositories.MicStream
	detector          repositories.Detector
	detectorStream    repositories.MicStream
	timers            map[*time.Timer]struct{}
	subscribers       map[int]chan entities.StatusEvent
	nextSubscriber    int

	wg sync.WaitGroup
}

// NewVoiceController creates an idle controller
func NewVoiceController(config ControllerConfig, deps Dependencies, logger *zap.Logger) (*VoiceController, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	metrics, err := newControllerMetrics(deps.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create controller metrics: %w", err)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	return &VoiceController{
		config:      config.withDefaults(),
		deps:        deps,
		logger:      logger,
		metrics:     metrics,
		lifetime:    lifetime,
		cancel:      cancel,
		status:      entities.VoiceStatusIdle,
		conn:        entities.ConnectionClosed,
		timers:      make(map[*time.Timer]struct{}),
		subscribers: make(map[int]chan entities.StatusEvent),
	}, nil
}

// Snapshot returns the current controller state
func (c *VoiceController) Snapshot() entities.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *VoiceController) snapshotLocked() entities.Snapshot {
	s := entities.Snapshot{
		VoiceStatus:       c.status,
		ConnectionState:   c.conn,
		InterviewComplete: c.complete,
		Report:            c.report,
		Error:             c.lastError,
	}
	if c.current != nil {
		s.SessionID = c.current.id
	}
	return s
}

// Interview returns the interview context in use
func (c *VoiceController) Interview() entities.Interview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interview
}

// Subscribe returns a feed of status events. Slow readers miss events
// instead of blocking the controller.
func (c *VoiceController) Subscribe() (<-chan entities.StatusEvent, func()) {
	ch := make(chan entities.StatusEvent, 16)

	c.mu.Lock()
	id := c.nextSubscriber
	c.nextSubscriber++
	if c.disposed {
		close(ch)
	} else {
		c.subscribers[id] = ch
	}
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

func (c *VoiceController) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked()
}

func (c *VoiceController) publishLocked() {
	ev := entities.NewStatusEvent(c.snapshotLocked())
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *VoiceController) setStatus(status entities.VoiceStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == status {
		return
	}
	c.status = status
	c.publishLocked()
}

// abortStart releases a stream acquired by Start and reports msg, unless a
// Stop or Dispose already moved the controller out of priming
func (c *VoiceController) abortStart(stream repositories.MicStream, msg string) {
	if stream != nil {
		c.releaseStream(stream)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != entities.VoiceStatusPriming || c.disposed {
		return
	}
	c.status = entities.VoiceStatusError
	c.lastError = msg
	c.publishLocked()
}

// after runs fn once the delay elapses unless the controller is disposed first
func (c *VoiceController) after(d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, t)
		c.mu.Unlock()
		fn()
	})
	c.timers[t] = struct{}{}
}

func (c *VoiceController) goTracked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// SetInterview stores the interview context. A ready context primes the
// credential, the session and the detector in the background; replacing a
// ready context first tears down everything built for the previous one.
func (c *VoiceController) SetInterview(interview entities.Interview) error {
	if err := interview.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return entities.ErrControllerClosed
	}
	previous := c.interview
	c.interview = interview
	c.mu.Unlock()

	if previous.Ready() && previous != interview {
		c.logger.Info("Interview context changed, resetting voice resources")
		c.teardown()
	}

	if interview.Ready() {
		c.Prime()
	}
	return nil
}

// Prime speculatively fetches the credential, opens the session and pre-warms
// the detector. Every step is best-effort.
func (c *VoiceController) Prime() {
	c.goTracked(func() {
		if _, err := c.fetchToken(c.lifetime); err != nil {
			c.logger.Warn("Speculative token fetch failed", zap.Error(err))
		}
	})
	c.goTracked(func() {
		if _, err := c.getSession(c.lifetime); err != nil {
			c.logger.Warn("Speculative session open failed", zap.Error(err))
		}
	})
	c.goTracked(func() {
		if err := c.PreWarm(c.lifetime); err != nil {
			c.logger.Warn("Detector pre-warm failed", zap.Error(err))
		}
	})
}

// PreWarm acquires a microphone stream and builds a detector on it ahead of
// Start. It is a no-op when a detector already exists.
func (c *VoiceController) PreWarm(ctx context.Context) error {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return entities.ErrControllerClosed
	}
	if c.detector != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	stream, err := c.deps.Microphone.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire microphone: %w", err)
	}

	detector, err := c.deps.Detectors.New(stream, c.speechCallbacks())
	if err != nil {
		stream.Stop()
		return fmt.Errorf("failed to create detector: %w", err)
	}

	c.mu.Lock()
	c.prewarmed = stream
	c.detector = detector
	c.detectorStream = stream
	c.mu.Unlock()

	c.logger.Info("Detector pre-warmed", zap.Int("sampleRate", stream.SampleRate()))
	return nil
}

// Start begins a conversation. It is ignored with ErrAlreadyActive while
// priming or active.
func (c *VoiceController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return entities.ErrControllerClosed
	}
	if c.status == entities.VoiceStatusPriming || c.status.Active() {
		c.mu.Unlock()
		return entities.ErrAlreadyActive
	}
	c.status = entities.VoiceStatusPriming
	c.complete = false
	c.shutdownScheduled = false
	c.lastError = ""
	c.publishLocked()
	c.mu.Unlock()

	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()

	c.mu.Lock()
	prewarmed := c.prewarmed
	c.prewarmed = nil
	c.mu.Unlock()

	stream := prewarmed
	if stream == nil {
		var err error
		stream, err = c.deps.Microphone.Open(ctx)
		if err != nil {
			c.logger.Error("Failed to acquire microphone", zap.Error(err))
			c.abortStart(nil, entities.MediaErrorMessage(err))
			return fmt.Errorf("failed to acquire microphone: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.fetchToken(gctx)
		return err
	})
	g.Go(func() error {
		return c.ensureAudioContext(gctx)
	})
	g.Go(func() error {
		_, err := c.getSession(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		c.abortStart(stream, err.Error())
		return fmt.Errorf("failed to prepare voice session: %w", err)
	}

	detector, err := c.bindDetector(stream, prewarmed)
	if err != nil {
		c.abortStart(stream, err.Error())
		return err
	}

	c.mu.Lock()
	actx, mixRate := c.audioCtx, c.config.OutputSampleRate
	c.mu.Unlock()

	recorder := recording.NewRecorder(mixRate, c.logger)
	if err := recorder.Start(); err != nil {
		c.abortStart(stream, err.Error())
		return fmt.Errorf("failed to start recording: %w", err)
	}
	cs := newCaptureState(stream, recorder, mixRate, c.config)

	c.mu.Lock()
	if c.status != entities.VoiceStatusPriming || c.disposed {
		c.mu.Unlock()
		recorder.Stop(true)
		c.releaseStream(stream)
		return fmt.Errorf("start interrupted by stop")
	}
	cs.untapPlayback = actx.Tap(cs.mixer.WritePlayback)
	go c.runSender(cs)
	cs.untapMic = stream.Subscribe(func(frame []float32) { c.onFrame(cs, frame) })
	c.capture = cs
	if err := detector.Start(); err != nil {
		c.logger.Warn("Failed to start detector", zap.Error(err))
	}
	c.status = entities.VoiceStatusListening
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("Voice conversation started",
		zap.Int("micSampleRate", stream.SampleRate()),
		zap.Bool("prewarmed", prewarmed != nil))
	return nil
}

// bindDetector reuses the pre-warmed detector when it was built on this
// exact stream, otherwise replaces it with a fresh one
func (c *VoiceController) bindDetector(stream, prewarmed repositories.MicStream) (repositories.Detector, error) {
	c.mu.Lock()
	detector, detectorStream := c.detector, c.detectorStream
	c.mu.Unlock()

	if detector != nil && prewarmed != nil && detectorStream == stream {
		return detector, nil
	}
	if detector != nil {
		detector.Destroy()
	}

	detector, err := c.deps.Detectors.New(stream, c.speechCallbacks())
	if err != nil {
		c.mu.Lock()
		c.detector, c.detectorStream = nil, nil
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	c.mu.Lock()
	c.detector, c.detectorStream = detector, stream
	c.mu.Unlock()
	return detector, nil
}

// releaseStream stops a stream that never became the active capture and
// drops a detector bound to it
func (c *VoiceController) releaseStream(stream repositories.MicStream) {
	c.mu.Lock()
	var detector repositories.Detector
	if c.detectorStream == stream {
		detector = c.detector
		c.detector, c.detectorStream = nil, nil
	}
	c.mu.Unlock()

	if detector != nil {
		detector.Destroy()
	}
	stream.Stop()
}

// Stop ends the conversation. The recording is submitted for evaluation
// unless skipReport is set; playback is cut after PlayerStopDelay.
func (c *VoiceController) Stop(skipReport bool) {
	c.mu.Lock()
	cs := c.capture
	c.capture = nil
	handle := c.current
	c.current = nil
	var session repositories.LiveSession
	if handle != nil {
		session = handle.session
	}
	detector := c.detector
	c.complete = true
	c.status = entities.VoiceStatusIdle
	c.mu.Unlock()

	var rec *entities.Recording
	if cs != nil {
		cs.untapPlayback()
		cs.mixer.Flush()
		var err error
		rec, err = cs.recorder.Stop(skipReport)
		if err != nil {
			c.logger.Warn("Failed to finalize recording", zap.Error(err))
		}
		cs.queue.Clear()
	}

	if detector != nil {
		if err := detector.Pause(); err != nil {
			c.logger.Debug("Ignoring detector pause error", zap.Error(err))
		}
	}

	if cs != nil {
		cs.untapMic()
		cs.stream.Stop()
		cs.stopSender()
	}

	c.after(c.config.PlayerStopDelay, c.stopPlayback)

	if session != nil {
		if err := session.Close(); err != nil {
			c.logger.Debug("Ignoring session close error", zap.Error(err))
		}
	}
	if cs != nil {
		<-cs.senderDone
	}
	c.sessions.Clear()
	if handle != nil {
		handle.finish()
	}

	c.mu.Lock()
	c.conn = entities.ConnectionClosed
	if rec != nil {
		c.status = entities.VoiceStatusReporting
	}
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("Voice conversation stopped", zap.Bool("skipReport", skipReport))

	if rec != nil {
		c.goTracked(func() { c.submitReport(*rec) })
	}
}

func (c *VoiceController) stopPlayback() {
	c.mu.Lock()
	player := c.player
	c.mu.Unlock()
	if player != nil {
		player.Stop()
	}
}

func (c *VoiceController) submitReport(rec entities.Recording) {
	c.mu.Lock()
	reportID := c.interview.ReportKey()
	c.mu.Unlock()

	report, err := c.deps.Reports.SubmitReport(c.lifetime, reportID, rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Error("Failed to submit report", zap.String("reportID", reportID), zap.Error(err))
	} else if report != nil {
		c.report = report.Evaluations
		c.logger.Info("Report received", zap.String("reportID", reportID))
	}
	if c.status == entities.VoiceStatusReporting {
		c.status = entities.VoiceStatusIdle
	}
	c.shutdownScheduled = false
	c.publishLocked()
}

// handleEndInterview marks the interview complete and stops after ShutdownDelay.
// Repeated termination requests while a stop is scheduled are ignored.
func (c *VoiceController) handleEndInterview() {
	c.mu.Lock()
	if c.shutdownScheduled || c.disposed {
		c.mu.Unlock()
		return
	}
	c.shutdownScheduled = true
	c.complete = true
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("Interview end requested", zap.Duration("delay", c.config.ShutdownDelay))
	c.after(c.config.ShutdownDelay, func() {
		c.Stop(false)
		c.mu.Lock()
		c.shutdownScheduled = false
		c.mu.Unlock()
	})
}

// teardown releases every voice resource but keeps the controller usable
func (c *VoiceController) teardown() {
	c.Stop(true)
	c.stopPlayback()

	c.mu.Lock()
	detector := c.detector
	c.detector, c.detectorStream = nil, nil
	prewarmed := c.prewarmed
	c.prewarmed = nil
	actx := c.audioCtx
	c.audioCtx, c.player = nil, nil
	c.mu.Unlock()

	if detector != nil {
		detector.Destroy()
	}
	if actx != nil {
		if err := actx.Close(); err != nil {
			c.logger.Debug("Ignoring audio context close error", zap.Error(err))
		}
	}
	if prewarmed != nil {
		prewarmed.Stop()
	}
}

// Dispose releases everything and rejects further use
func (c *VoiceController) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	for t := range c.timers {
		t.Stop()
		delete(c.timers, t)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.teardown()
	c.tokens.Clear()

	c.mu.Lock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	c.mu.Unlock()

	c.logger.Info("Voice controller disposed")
}
