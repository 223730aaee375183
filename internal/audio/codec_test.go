package audio

import (
	"bytes"
	"math"
	"testing"
)

func TestBase64RoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00, 0x01},
		{0xff, 0x7f, 0x00, 0x80, 0x12, 0x34},
		bytes.Repeat([]byte{0xab, 0xcd}, 9000),
	}

	for _, in := range inputs {
		out, err := DecodeBase64(EncodeBase64(in))
		if err != nil {
			t.Fatalf("Unexpected decode error: %v", err)
		}
		if !bytes.Equal(in, out) {
			t.Errorf("Round trip mismatch for %d bytes", len(in))
		}
	}
}

func TestInt16Base64RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234, -4321}

	decoded, err := DecodeBase64ToInt16(EncodeInt16ToBase64(samples))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestBytesToInt16LittleEndian(t *testing.T) {
	got, err := BytesToInt16([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []int16{1, -1, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	if _, err := BytesToInt16([]byte{0x01}); err == nil {
		t.Error("Expected error for odd-length payload")
	}
}

func TestDecodeBase64Invalid(t *testing.T) {
	if _, err := DecodeBase64ToInt16("not base64!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestEncodePCM16Clamping(t *testing.T) {
	got := EncodePCM16([]float32{1.5, 1.0, -2.0, -1.0, 0, 0.5, -0.5})

	if got[0] != got[1] {
		t.Errorf("Expected 1.5 to clamp to %d, got %d", got[1], got[0])
	}
	if got[2] != got[3] {
		t.Errorf("Expected -2.0 to clamp to %d, got %d", got[3], got[2])
	}
	if got[1] != 32767 {
		t.Errorf("Expected 1.0 to encode to 32767, got %d", got[1])
	}
	if got[3] != -32768 {
		t.Errorf("Expected -1.0 to encode to -32768, got %d", got[3])
	}
	if got[4] != 0 {
		t.Errorf("Expected 0 to encode to 0, got %d", got[4])
	}
	// truncation toward zero: 0.5*32767 = 16383.5, -0.5*32768 = -16384
	if got[5] != 16383 {
		t.Errorf("Expected 0.5 to encode to 16383, got %d", got[5])
	}
	if got[6] != -16384 {
		t.Errorf("Expected -0.5 to encode to -16384, got %d", got[6])
	}
}

func TestInt16ToFloat32(t *testing.T) {
	got := Int16ToFloat32([]int16{-32768, 0, 16384})
	want := []float32{-1, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestDownsample(t *testing.T) {
	t.Run("box filter 48k to 16k", func(t *testing.T) {
		got := Downsample([]float32{1, 2, 3, 4, 5, 6}, 48000, 16000)
		want := []float32{2, 5}
		if len(got) != len(want) {
			t.Fatalf("Expected %d samples, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Sample %d: expected %v, got %v", i, want[i], got[i])
			}
		}
	})

	t.Run("same rate returns input", func(t *testing.T) {
		in := []float32{0.1, 0.2, 0.3}
		got := Downsample(in, 16000, 16000)
		if &got[0] != &in[0] {
			t.Error("Expected the input slice to be returned unchanged")
		}
	})

	t.Run("fractional ratio", func(t *testing.T) {
		in := make([]float32, 4096)
		for i := range in {
			in[i] = 0.25
		}
		got := Downsample(in, 24000, 16000)
		if len(got) != int(math.Round(4096/1.5)) {
			t.Fatalf("Unexpected output length %d", len(got))
		}
		for i, s := range got {
			if math.Abs(float64(s-0.25)) > 1e-6 {
				t.Fatalf("Sample %d: expected 0.25, got %v", i, s)
			}
		}
	})
}

func TestResampleUp(t *testing.T) {
	got := Resample([]float32{1, 2}, 12000, 24000)
	want := []float32{1, 1, 2, 2}
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestEncodeForSession(t *testing.T) {
	frame := []float32{1, 1, 1, -1, -1, -1}
	data := EncodeForSession(frame, 48000, 16000)

	samples, err := DecodeBase64ToInt16(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(samples) != 2 || samples[0] != 32767 || samples[1] != -32768 {
		t.Errorf("Unexpected samples %v", samples)
	}
	if MIMEType(16000) != "audio/pcm;rate=16000" {
		t.Errorf("Unexpected mime type %s", MIMEType(16000))
	}
}
