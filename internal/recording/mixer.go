// Package recording combines both sides of the conversation into a single
// mono stream and encodes it for the report pipeline.
package recording

import (
	"sync"

	"github.com/satriahrh/interview-coach/internal/audio"
)

// DefaultMaxLag is how far one input may run ahead before the other is
// treated as silent, in milliseconds of audio
const DefaultMaxLag = 250

// Mixer sums microphone and playback audio on a shared sample clock. The
// microphone is resampled to the mix rate; playback must already be at it.
type Mixer struct {
	rate    int
	micRate int
	maxLag  int
	sink    func(samples []float32)

	mu   sync.Mutex
	mic  []float32
	play []float32
}

// NewMixer creates a mixer emitting mixed blocks to sink. sink is called
// with the mixer lock held and must not call back into the mixer.
func NewMixer(rate, micRate int, sink func([]float32)) *Mixer {
	return &Mixer{
		rate:    rate,
		micRate: micRate,
		maxLag:  rate * DefaultMaxLag / 1000,
		sink:    sink,
	}
}

// WriteMic feeds one capture frame at the microphone rate
func (m *Mixer) WriteMic(frame []float32) {
	resampled := audio.Resample(frame, m.micRate, m.rate)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mic = append(m.mic, resampled...)
	m.emit()
}

// WritePlayback feeds one rendered playback block at the mix rate
func (m *Mixer) WritePlayback(block []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.play = append(m.play, block...)
	m.emit()
}

// Flush emits everything buffered, padding the shorter input with silence
func (m *Mixer) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mixOut(max(len(m.mic), len(m.play)))
}

func (m *Mixer) emit() {
	if n := min(len(m.mic), len(m.play)); n > 0 {
		m.mixOut(n)
	}
	if len(m.mic) > m.maxLag || len(m.play) > m.maxLag {
		m.mixOut(max(len(m.mic), len(m.play)))
	}
}

func (m *Mixer) mixOut(n int) {
	if n == 0 {
		return
	}
	out := make([]float32, n)
	for i := range out {
		var s float32
		if i < len(m.mic) {
			s += m.mic[i]
		}
		if i < len(m.play) {
			s += m.play[i]
		}
		out[i] = clamp(s)
	}
	m.mic = consume(m.mic, n)
	m.play = consume(m.play, n)
	m.sink(out)
}

func consume(buf []float32, n int) []float32 {
	if n >= len(buf) {
		return buf[:0]
	}
	return append(buf[:0], buf[n:]...)
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
