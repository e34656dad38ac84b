// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Used to bring decoded buffers to the output device rate
package resample

import (
	"fmt"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	last       []float32 // final input frame of the previous chunk
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		last:       make([]float32, channels),
	}
}

// Resample converts interleaved input at inputRate into output at
// outputRate and returns the number of samples written. Chunks may be fed
// one after another; the last input frame is carried over so chunk
// boundaries interpolate seamlessly.
func (r *Resampler) Resample(input []float32, output []float32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}
	outputFrames := len(output) / r.channels

	// frame -1 is the carried-over frame once primed
	frame := func(i, ch int) float32 {
		if i < 0 {
			return r.last[ch]
		}
		return input[i*r.channels+ch]
	}

	first := 0.0
	if r.primed {
		first = -1
	}
	pos := r.position + first

	outIdx := 0
	for outIdx < outputFrames {
		idx := int(pos)
		if pos < 0 {
			idx = -1
		}
		if idx >= inputFrames-1 {
			break
		}

		frac := float32(pos - float64(idx))
		for ch := 0; ch < r.channels; ch++ {
			a := frame(idx, ch)
			b := frame(idx+1, ch)
			output[outIdx*r.channels+ch] = a + (b-a)*frac
		}

		outIdx++
		pos += r.ratio
	}

	// continue from the final frame, which becomes frame -1 next time
	r.position = pos - float64(inputFrames-1)
	copy(r.last, input[(inputFrames-1)*r.channels:])
	r.primed = true

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	clear(r.last)
}

// OutputSamplesNeeded calculates how many output samples a chunk of input
// samples can produce at most
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)/r.ratio) + 1
	return outputFrames * r.channels
}

// Buffer converts a whole decoded buffer to rate. Buffers already at rate are
// returned unchanged.
func Buffer(buf *audio.Buffer, rate int) (*audio.Buffer, error) {
	if buf == nil {
		return nil, fmt.Errorf("nil buffer")
	}
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", rate)
	}
	if buf.SampleRate == rate {
		return buf, nil
	}

	r := New(buf.SampleRate, rate, buf.Channels)
	out := make([]float32, r.OutputSamplesNeeded(len(buf.Samples)))
	n := r.Resample(buf.Samples, out)

	// hold the final frame for the fraction the interpolation cannot reach
	frames := buf.Frames()
	want := int(float64(frames) * float64(rate) / float64(buf.SampleRate))
	for n/buf.Channels < want && frames > 0 {
		n += copy(out[n:n+buf.Channels], buf.Samples[(frames-1)*buf.Channels:])
	}

	return audio.NewBuffer(out[:n], rate, buf.Channels)
}
