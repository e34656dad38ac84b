// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats, decoded buffers and gain conversions
package audio

import (
	"fmt"
	"math"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a decoded audio stream
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Buffer holds a fully decoded audio file as interleaved float32 PCM in [-1, 1]
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// NewBuffer creates a buffer and validates its layout
func NewBuffer(samples []float32, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("sample count %d not aligned to %d channels", len(samples), channels)
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// Frames returns the number of sample frames in the buffer
func (b *Buffer) Frames() int {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the buffer length in seconds
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Sample returns the sample at frame index and channel, or 0 outside the buffer
func (b *Buffer) Sample(frame, channel int) float32 {
	if frame < 0 || frame >= b.Frames() {
		return 0
	}
	return b.Samples[frame*b.Channels+channel%b.Channels]
}

// DBToLinear converts decibels to linear amplitude
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts linear amplitude to decibels (-Inf for silence)
func LinearToDB(linear float64) float64 {
	if linear <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(linear)
}

// SampleFromInt16 converts a 16-bit PCM sample to float32
func SampleFromInt16(sample int16) float32 {
	return float32(sample) / 32768.0
}

// SampleToInt16 converts a float32 sample to 16-bit PCM with clipping
func SampleToInt16(sample float32) int16 {
	if sample >= 1 {
		return math.MaxInt16
	}
	if sample <= -1 {
		return math.MinInt16
	}
	return int16(sample * 32767.0)
}

// SampleFromInt24 converts a 24-bit PCM sample held in an int32 to float32
func SampleFromInt24(sample int32) float32 {
	return float32(sample) / 8388608.0
}

// SampleToInt24 converts a float32 sample to 24-bit PCM held in an int32
func SampleToInt24(sample float32) int32 {
	scaled := int64(float64(sample) * Max24Bit)
	if scaled > Max24Bit {
		scaled = Max24Bit
	} else if scaled < Min24Bit {
		scaled = Min24Bit
	}
	return int32(scaled)
}

// SampleFromBits converts an integer sample of the given bit depth to float32
func SampleFromBits(sample int32, bitDepth int) float32 {
	if bitDepth <= 0 {
		return 0
	}
	return float32(float64(sample) / float64(int64(1)<<(bitDepth-1)))
}
