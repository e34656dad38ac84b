// ABOUTME: Tests for audio types
// ABOUTME: Tests buffer layout, sample and gain conversion functions
package audio

import (
	"math"
	"testing"
)

func TestNewBuffer(t *testing.T) {
	tests := []struct {
		name       string
		samples    []float32
		sampleRate int
		channels   int
		wantErr    bool
	}{
		{"stereo", make([]float32, 96000), 48000, 2, false},
		{"mono", make([]float32, 100), 44100, 1, false},
		{"misaligned", make([]float32, 3), 48000, 2, true},
		{"zero rate", make([]float32, 2), 0, 2, true},
		{"zero channels", make([]float32, 2), 48000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuffer(tt.samples, tt.sampleRate, tt.channels)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBufferDuration(t *testing.T) {
	buf, err := NewBuffer(make([]float32, 96000), 48000, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if buf.Frames() != 48000 {
		t.Errorf("expected 48000 frames, got %d", buf.Frames())
	}
	if buf.Duration() != 1.0 {
		t.Errorf("expected 1s, got %v", buf.Duration())
	}

	var nilBuf *Buffer
	if nilBuf.Duration() != 0 {
		t.Error("expected nil buffer to have zero duration")
	}
}

func TestBufferSample(t *testing.T) {
	buf := &Buffer{Samples: []float32{0.1, 0.2, 0.3, 0.4}, SampleRate: 2, Channels: 2}

	if got := buf.Sample(1, 1); got != 0.4 {
		t.Errorf("expected 0.4, got %v", got)
	}
	if got := buf.Sample(2, 0); got != 0 {
		t.Errorf("expected 0 past the end, got %v", got)
	}
	if got := buf.Sample(-1, 0); got != 0 {
		t.Errorf("expected 0 before the start, got %v", got)
	}
}

func TestDBToLinear(t *testing.T) {
	tests := []struct {
		db       float64
		expected float64
	}{
		{0, 1},
		{-20, 0.1},
		{20, 10},
		{-6, 0.501187},
	}

	for _, tt := range tests {
		got := DBToLinear(tt.db)
		if math.Abs(got-tt.expected) > 1e-5 {
			t.Errorf("DBToLinear(%v): expected %v, got %v", tt.db, tt.expected, got)
		}
	}
}

func TestLinearToDB(t *testing.T) {
	if got := LinearToDB(1); got != 0 {
		t.Errorf("expected 0dB, got %v", got)
	}
	if got := LinearToDB(0); !math.IsInf(got, -1) {
		t.Errorf("expected -Inf, got %v", got)
	}
	if got := LinearToDB(DBToLinear(-12)); math.Abs(got+12) > 1e-9 {
		t.Errorf("expected -12dB round trip, got %v", got)
	}
}

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected float32
	}{
		{"zero", 0, 0},
		{"min", -32768, -1},
		{"half", 16384, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SampleFromInt16(tt.input); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSampleToInt16Clipping(t *testing.T) {
	if got := SampleToInt16(1.5); got != math.MaxInt16 {
		t.Errorf("expected clip to max, got %d", got)
	}
	if got := SampleToInt16(-1.5); got != math.MinInt16 {
		t.Errorf("expected clip to min, got %d", got)
	}
	if got := SampleToInt16(0); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestSampleToInt24Clipping(t *testing.T) {
	if got := SampleToInt24(2); got != Max24Bit {
		t.Errorf("expected %d, got %d", Max24Bit, got)
	}
	if got := SampleToInt24(-2); got != Min24Bit {
		t.Errorf("expected %d, got %d", Min24Bit, got)
	}
}

func TestSampleFromBits(t *testing.T) {
	if got := SampleFromBits(-128, 8); got != -1 {
		t.Errorf("expected -1, got %v", got)
	}
	if got := SampleFromBits(1<<22, 24); got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
	if got := SampleFromBits(5, 0); got != 0 {
		t.Errorf("expected 0 for invalid depth, got %v", got)
	}
}
