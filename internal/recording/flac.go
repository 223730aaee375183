package recording

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"go.uber.org/zap"

	"github.com/satriahrh/interview-coach/domain/entities"
	"github.com/satriahrh/interview-coach/internal/audio"
)

const (
	BlockSize     = 4096
	minBlockSize  = 16
	BitsPerSample = 16

	MIMEType = "audio/flac"
	Filename = "interview_recording.flac"
)

var ErrNotRecording = errors.New("recorder is not recording")

// chunkWriter keeps every encoder write as a separate chunk
type chunkWriter struct {
	chunks [][]byte
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.chunks = append(w.chunks, append([]byte(nil), p...))
	return len(p), nil
}

// Recorder encodes mixed mono audio into FLAC chunks between Start and Stop
type Recorder struct {
	sampleRate int
	logger     *zap.Logger

	mu      sync.Mutex
	enc     *flac.Encoder
	out     *chunkWriter
	block   []int16
	samples uint64
}

func NewRecorder(sampleRate int, logger *zap.Logger) *Recorder {
	return &Recorder{sampleRate: sampleRate, logger: logger}
}

// Start begins a new recording
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc != nil {
		return errors.New("recorder already started")
	}

	out := &chunkWriter{}
	info := &meta.StreamInfo{
		BlockSizeMin:  minBlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(r.sampleRate),
		NChannels:     1,
		BitsPerSample: BitsPerSample,
	}
	enc, err := flac.NewEncoder(out, info)
	if err != nil {
		return fmt.Errorf("failed to create flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	r.enc = enc
	r.out = out
	r.block = make([]int16, 0, BlockSize)
	r.samples = 0
	return nil
}

// Recording reports whether Start was called without a matching Stop
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc != nil
}

// Write appends mixed samples. Samples arriving while stopped are dropped.
func (r *Recorder) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		return
	}
	for _, s := range audio.EncodePCM16(samples) {
		r.block = append(r.block, s)
		if len(r.block) == BlockSize {
			if err := r.writeBlock(r.enc); err != nil {
				r.logger.Warn("Failed to encode recording block", zap.Error(err))
			}
		}
	}
}

func (r *Recorder) writeBlock(enc *flac.Encoder) error {
	block := r.block
	r.block = r.block[:0]
	if len(block) == 0 {
		return nil
	}
	for len(block) < minBlockSize {
		block = append(block, 0)
	}

	samples := make([]int32, len(block))
	for i, s := range block {
		samples[i] = int32(s)
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    uint32(r.sampleRate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(samples),
		}},
	}
	if err := enc.WriteFrame(f); err != nil {
		return fmt.Errorf("failed to write flac frame: %w", err)
	}
	r.samples += uint64(len(samples))
	return nil
}

// Chunks is the number of encoded chunks accumulated so far
func (r *Recorder) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return 0
	}
	return len(r.out.chunks)
}

// Stop finalizes the recording into one blob. With skip, or when nothing was
// written, the accumulated chunks are discarded and nil is returned.
func (r *Recorder) Stop(skip bool) (*entities.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		return nil, ErrNotRecording
	}
	enc, out := r.enc, r.out
	r.enc, r.out = nil, nil

	if skip {
		r.block = r.block[:0]
		if err := enc.Close(); err != nil {
			r.logger.Debug("Ignoring flac close error on discarded recording", zap.Error(err))
		}
		return nil, nil
	}

	if err := r.writeBlock(enc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize recording: %w", err)
	}
	if r.samples == 0 {
		r.logger.Debug("Recording is empty, nothing to finalize")
		return nil, nil
	}

	r.logger.Info("Recording finalized",
		zap.Uint64("samples", r.samples),
		zap.Int("chunks", len(out.chunks)))

	return &entities.Recording{
		Data:     bytes.Join(out.chunks, nil),
		MIMEType: MIMEType,
		Filename: Filename,
	}, nil
}
