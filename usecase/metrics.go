package usecase

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type controllerMetrics struct {
	chunksSent metric.Int64Counter
	sendErrors metric.Int64Counter
	flushed    metric.Int64Counter
	playback   metric.Int64Counter
	sessions   metric.Int64Counter
}

func newControllerMetrics(meter metric.Meter) (*controllerMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("interview-coach")
	}

	var (
		m   controllerMetrics
		err error
	)
	if m.chunksSent, err = meter.Int64Counter("interview_audio_chunks_sent",
		metric.WithDescription("Microphone chunks delivered to the live session")); err != nil {
		return nil, err
	}
	if m.sendErrors, err = meter.Int64Counter("interview_audio_send_errors",
		metric.WithDescription("Microphone chunks the live session rejected")); err != nil {
		return nil, err
	}
	if m.flushed, err = meter.Int64Counter("interview_audio_frames_flushed",
		metric.WithDescription("Queued frames flushed once a session opened")); err != nil {
		return nil, err
	}
	if m.playback, err = meter.Int64Counter("interview_playback_chunks",
		metric.WithDescription("Model audio chunks scheduled for playback")); err != nil {
		return nil, err
	}
	if m.sessions, err = meter.Int64Counter("interview_sessions_opened",
		metric.WithDescription("Live sessions successfully connected")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *controllerMetrics) chunkSent(ctx context.Context)     { m.chunksSent.Add(ctx, 1) }
func (m *controllerMetrics) sendError(ctx context.Context)     { m.sendErrors.Add(ctx, 1) }
func (m *controllerMetrics) playbackChunk(ctx context.Context) { m.playback.Add(ctx, 1) }
func (m *controllerMetrics) sessionOpened(ctx context.Context) { m.sessions.Add(ctx, 1) }

func (m *controllerMetrics) framesFlushed(ctx context.Context, n int) {
	m.flushed.Add(ctx, int64(n))
}
