// Package audio holds the sample-level plumbing shared by capture, the live
// session and playback: PCM16 codecs, the pre-connection frame queue and the
// gapless stream player.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// PCMSampleRate is the rate audio is sent to the live endpoint at
	PCMSampleRate = 16000
	// OutputSampleRate is the rate the live endpoint streams audio back at
	OutputSampleRate = 24000

	int16Divisor = 1.0 / 32768.0
	maxPositive  = 0x7fff
	maxNegative  = 0x8000
)

// MIMEType names raw PCM16 at the given rate, e.g. audio/pcm;rate=16000
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodeBase64 encodes raw bytes with standard padding
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 is the inverse of EncodeBase64
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return data, nil
}

// BytesToInt16 reinterprets little-endian bytes as PCM16 samples
func BytesToInt16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, nil
}

// Int16ToBytes serializes PCM16 samples little-endian
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodeBase64ToInt16 decodes a base64 PCM16 payload
func DecodeBase64ToInt16(s string) ([]int16, error) {
	data, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	return BytesToInt16(data)
}

// EncodeInt16ToBase64 encodes PCM16 samples as base64
func EncodeInt16ToBase64(samples []int16) string {
	return EncodeBase64(Int16ToBytes(samples))
}

// EncodePCM16 converts float samples to PCM16. Samples are clamped to [-1, 1]
// and scaled by 32768 when negative or 32767 otherwise, truncating toward zero.
func EncodePCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		if s < 0 {
			out[i] = int16(float64(s) * maxNegative)
		} else {
			out[i] = int16(float64(s) * maxPositive)
		}
	}
	return out
}

// Int16ToFloat32 converts PCM16 samples to floats in [-1, 1)
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(float64(s) * int16Divisor)
	}
	return out
}

// Downsample decimates buf from inputRate to outputRate by replacing each
// window of inputRate/outputRate samples with its mean. The input is returned
// unchanged when the rates match.
func Downsample(buf []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 {
		return buf
	}
	ratio := float64(inputRate) / float64(outputRate)
	out := make([]float32, int(math.Round(float64(len(buf))/ratio)))

	offset := 0
	for i := range out {
		next := int(math.Round(float64(i+1) * ratio))
		var sum float64
		count := 0
		for j := offset; j < next && j < len(buf); j++ {
			sum += float64(buf[j])
			count++
		}
		if count > 0 {
			out[i] = float32(sum / float64(count))
		}
		offset = next
	}
	return out
}

// Resample converts between rates, box-filtering down and holding samples up
func Resample(buf []float32, inputRate, outputRate int) []float32 {
	if inputRate >= outputRate {
		return Downsample(buf, inputRate, outputRate)
	}
	ratio := float64(inputRate) / float64(outputRate)
	out := make([]float32, int(math.Round(float64(len(buf))/ratio)))
	for i := range out {
		j := int(float64(i) * ratio)
		if j >= len(buf) {
			j = len(buf) - 1
		}
		out[i] = buf[j]
	}
	return out
}

// EncodeForSession downsamples a capture frame to the wire rate and encodes
// it as base64 PCM16
func EncodeForSession(frame []float32, inputRate, wireRate int) string {
	return EncodeInt16ToBase64(EncodePCM16(Downsample(frame, inputRate, wireRate)))
}
