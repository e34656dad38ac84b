// ABOUTME: Tests for the linear resampler
// ABOUTME: Tests chunked streaming, whole-buffer conversion and passthrough
package resample

import (
	"math"
	"testing"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

func TestResampleUpsample(t *testing.T) {
	r := New(1000, 2000, 1)

	input := []float32{0, 1, 0}
	output := make([]float32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	want := []float32{0, 0.5, 1, 0.5}
	if n != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), n)
	}
	for i, w := range want {
		if output[i] != w {
			t.Errorf("sample %d: expected %v, got %v", i, w, output[i])
		}
	}
}

func TestResampleDownsampleStereo(t *testing.T) {
	r := New(2000, 1000, 2)

	// frames: (0,0) (1,-1) (2,-2) (3,-3) (4,-4)
	input := []float32{0, 0, 1, -1, 2, -2, 3, -3, 4, -4}
	output := make([]float32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	want := []float32{0, 0, 2, -2}
	if n != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), n)
	}
	for i, w := range want {
		if output[i] != w {
			t.Errorf("sample %d: expected %v, got %v", i, w, output[i])
		}
	}
}

func TestResampleChunksMatchWhole(t *testing.T) {
	input := make([]float32, 101)
	for i := range input {
		input[i] = float32(math.Sin(float64(i) / 7))
	}

	whole := New(44100, 48000, 1)
	wholeOut := make([]float32, whole.OutputSamplesNeeded(len(input)))
	wn := whole.Resample(input, wholeOut)

	chunked := New(44100, 48000, 1)
	var chunkedOut []float32
	for start := 0; start < len(input); start += 10 {
		end := min(start+10, len(input))
		out := make([]float32, chunked.OutputSamplesNeeded(end-start)+1)
		n := chunked.Resample(input[start:end], out)
		chunkedOut = append(chunkedOut, out[:n]...)
	}

	if len(chunkedOut) != wn {
		t.Fatalf("chunked produced %d samples, whole produced %d", len(chunkedOut), wn)
	}
	for i := 0; i < wn; i++ {
		if math.Abs(float64(chunkedOut[i]-wholeOut[i])) > 1e-5 {
			t.Fatalf("sample %d differs: %v vs %v", i, chunkedOut[i], wholeOut[i])
		}
	}
}

func TestResampleReset(t *testing.T) {
	r := New(1000, 2000, 1)
	out := make([]float32, 16)
	r.Resample([]float32{1, 1, 1}, out)

	r.Reset()
	n := r.Resample([]float32{0, 1}, out)
	if n != 2 || out[0] != 0 || out[1] != 0.5 {
		t.Errorf("expected fresh start after reset, got %v", out[:n])
	}
}

func TestBuffer(t *testing.T) {
	src, err := audio.NewBuffer([]float32{0, 1}, 1000, 1)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Buffer(src, 2000)
	if err != nil {
		t.Fatalf("resample failed: %v", err)
	}
	if got.SampleRate != 2000 {
		t.Errorf("expected 2000Hz, got %d", got.SampleRate)
	}

	want := []float32{0, 0.5, 1, 1}
	if len(got.Samples) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got.Samples))
	}
	for i, w := range want {
		if got.Samples[i] != w {
			t.Errorf("sample %d: expected %v, got %v", i, w, got.Samples[i])
		}
	}
}

func TestBufferPassthrough(t *testing.T) {
	src := &audio.Buffer{Samples: []float32{0.1, 0.2}, SampleRate: 48000, Channels: 2}
	got, err := Buffer(src, 48000)
	if err != nil {
		t.Fatal(err)
	}
	if got != src {
		t.Error("expected the same buffer back at equal rates")
	}

	if _, err := Buffer(src, 0); err == nil {
		t.Error("expected error for zero rate")
	}
	if _, err := Buffer(nil, 48000); err == nil {
		t.Error("expected error for nil buffer")
	}
}
