// ABOUTME: Post-gain analysis taps for level metering
// ABOUTME: Keeps a rolling window of rendered samples and reports peak and RMS
package mixer

import (
	"math"
	"slices"
)

// Levels is a snapshot of an analyser window
type Levels struct {
	Peak float64
	RMS  float64
}

// Analyser records the most recent samples leaving a gain node
type Analyser struct {
	node   *Gain
	window []float32
	pos    int
	filled bool
}

// NewAnalyser taps node's post-gain output with a window of size samples
func (g *Graph) NewAnalyser(node *Gain, size int) *Analyser {
	if size <= 0 {
		size = 2048
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	a := &Analyser{node: node, window: make([]float32, size)}
	node.analysers = append(node.analysers, a)
	return a
}

// Levels returns the peak magnitude and RMS of the current window
func (a *Analyser) Levels() Levels {
	g := a.node.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	n := a.pos
	if a.filled {
		n = len(a.window)
	}
	if n == 0 {
		return Levels{}
	}

	var peak, sum float64
	for _, s := range a.window[:n] {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
		sum += v * v
	}
	return Levels{Peak: peak, RMS: math.Sqrt(sum / float64(n))}
}

// Remove detaches the tap from its node
func (a *Analyser) Remove() {
	g := a.node.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	a.node.analysers = slices.DeleteFunc(a.node.analysers, func(x *Analyser) bool { return x == a })
}

func (a *Analyser) push(samples []float32) {
	if len(samples) >= len(a.window) {
		copy(a.window, samples[len(samples)-len(a.window):])
		a.pos = 0
		a.filled = true
		return
	}
	for _, s := range samples {
		a.window[a.pos] = s
		a.pos++
		if a.pos == len(a.window) {
			a.pos = 0
			a.filled = true
		}
	}
}
