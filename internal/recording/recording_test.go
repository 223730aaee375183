package recording

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mewkiz/flac"
	"go.uber.org/zap/zaptest"
)

type collector struct {
	out []float32
}

func (c *collector) sink(samples []float32) {
	c.out = append(c.out, samples...)
}

func TestMixerSumsAlignedInputs(t *testing.T) {
	var c collector
	m := NewMixer(24000, 24000, c.sink)

	m.WriteMic([]float32{0.1, 0.2, 0.3})
	if len(c.out) != 0 {
		t.Fatalf("Expected no output before playback arrives, got %v", c.out)
	}
	m.WritePlayback([]float32{0.5, 0.5})

	if len(c.out) != 2 {
		t.Fatalf("Expected 2 mixed samples, got %d", len(c.out))
	}
	want := []float32{0.6, 0.7}
	for i := range want {
		if diff := c.out[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("Sample %d: expected %v, got %v", i, want[i], c.out[i])
		}
	}

	m.Flush()
	if len(c.out) != 3 || c.out[2] != 0.3 {
		t.Errorf("Expected flush to emit the remaining mic sample, got %v", c.out)
	}
}

func TestMixerClampsSum(t *testing.T) {
	var c collector
	m := NewMixer(24000, 24000, c.sink)

	m.WriteMic([]float32{0.9, -0.9})
	m.WritePlayback([]float32{0.9, -0.9})

	if c.out[0] != 1 || c.out[1] != -1 {
		t.Errorf("Expected clamped output, got %v", c.out)
	}
}

func TestMixerResamplesMicrophone(t *testing.T) {
	var c collector
	m := NewMixer(24000, 48000, c.sink)

	m.WriteMic([]float32{0.2, 0.4, 0.6, 0.8})
	m.WritePlayback([]float32{0, 0})

	if len(c.out) != 2 {
		t.Fatalf("Expected 2 samples at the mix rate, got %d", len(c.out))
	}
	if diff := c.out[0] - 0.3; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Expected averaged sample 0.3, got %v", c.out[0])
	}
}

func TestMixerLagTreatsMissingSideAsSilence(t *testing.T) {
	var c collector
	m := NewMixer(1000, 1000, c.sink)
	lag := 1000 * DefaultMaxLag / 1000

	m.WriteMic(make([]float32, lag))
	if len(c.out) != 0 {
		t.Fatalf("Expected buffering up to the lag bound, got %d samples", len(c.out))
	}
	m.WriteMic([]float32{0.5})
	if len(c.out) != lag+1 {
		t.Errorf("Expected mic-only flush past the lag bound, got %d samples", len(c.out))
	}
}

func TestRecorderProducesFlacBlob(t *testing.T) {
	r := NewRecorder(24000, zaptest.NewLogger(t))
	if err := r.Start(); err != nil {
		t.Fatalf("Unexpected start error: %v", err)
	}
	if !r.Recording() {
		t.Fatal("Expected recorder to be recording")
	}

	samples := make([]float32, 5000)
	for i := range samples {
		samples[i] = 0.5
	}
	r.Write(samples[:3000])
	r.Write(samples[3000:])

	rec, err := r.Stop(false)
	if err != nil {
		t.Fatalf("Unexpected stop error: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected a recording")
	}
	if rec.MIMEType != MIMEType || rec.Filename != Filename {
		t.Errorf("Unexpected blob metadata %s %s", rec.MIMEType, rec.Filename)
	}
	if !bytes.HasPrefix(rec.Data, []byte("fLaC")) {
		t.Fatalf("Expected FLAC signature, got %q", rec.Data[:4])
	}

	stream, err := flac.New(bytes.NewReader(rec.Data))
	if err != nil {
		t.Fatalf("Failed to parse recording: %v", err)
	}
	for i, want := range []uint16{BlockSize, 5000 - BlockSize} {
		f, err := stream.ParseNext()
		if err != nil {
			t.Fatalf("Failed to parse frame %d: %v", i, err)
		}
		if f.BlockSize != want {
			t.Errorf("Frame %d: expected block size %d, got %d", i, want, f.BlockSize)
		}
		if got := f.Subframes[0].Samples[0]; got != 16383 {
			t.Errorf("Frame %d: expected first sample 16383, got %d", i, got)
		}
	}
	if r.Recording() {
		t.Error("Expected recorder to be stopped")
	}
}

func TestRecorderSkipDiscards(t *testing.T) {
	r := NewRecorder(24000, zaptest.NewLogger(t))
	r.Start()
	r.Write(noise(4 * BlockSize))
	if r.Chunks() == 0 {
		t.Fatal("Expected encoded chunks before stop")
	}

	rec, err := r.Stop(true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec != nil {
		t.Error("Expected no recording when skipping")
	}
	if r.Chunks() != 0 {
		t.Error("Expected chunks discarded")
	}
}

func TestRecorderEmptyYieldsNothing(t *testing.T) {
	r := NewRecorder(24000, zaptest.NewLogger(t))
	if err := r.Start(); err != nil {
		t.Fatalf("Unexpected start error: %v", err)
	}

	rec, err := r.Stop(false)
	if err != nil {
		t.Fatalf("Unexpected stop error: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected no recording without samples, got %d bytes", len(rec.Data))
	}
	if r.Recording() {
		t.Error("Expected recorder to be stopped")
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	r := NewRecorder(24000, zaptest.NewLogger(t))
	if _, err := r.Stop(false); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
	r.Write([]float32{1})
}

func TestRecorderRestart(t *testing.T) {
	r := NewRecorder(16000, zaptest.NewLogger(t))
	r.Start()
	if err := r.Start(); err == nil {
		t.Error("Expected error starting twice")
	}
	r.Stop(true)
	if err := r.Start(); err != nil {
		t.Errorf("Expected restart after stop, got %v", err)
	}
}

// noise is deterministic white noise that does not compress below the
// encoder's write buffer
func noise(n int) []float32 {
	out := make([]float32, n)
	x := uint32(1)
	for i := range out {
		x = x*1664525 + 1013904223
		out[i] = float32(int32(x)) / (1 << 31)
	}
	return out
}
