// ABOUTME: Software mixing graph driven by a frame-counting hardware clock
// ABOUTME: Renders scheduled sources through a gain tree into interleaved float32 frames
package mixer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

var (
	// ErrSourceStopped is returned when stopping a source that already ended
	ErrSourceStopped = errors.New("source already stopped")

	// ErrDisconnected is returned when scheduling into a disconnected node
	ErrDisconnected = errors.New("gain node disconnected")
)

// Graph renders audio sources through a tree of gain nodes.
//
// The graph is its own hardware clock: time advances only as frames are
// rendered, so whichever device pulls frames (oto, malgo, or a test) defines
// the clock rate. A graph starts suspended; while suspended Render produces
// silence and the clock stands still.
type Graph struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	frames     int64
	suspended  bool

	master     *Gain
	nodes      []*Gain
	nodesDirty bool
	sources    []*Source

	// completion callbacks waiting to fire outside the lock
	pending []func()

	scratch []float32
}

// NewGraph creates a suspended graph rendering at the given rate and channel count
func NewGraph(sampleRate, channels int) (*Graph, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	g := &Graph{
		sampleRate: sampleRate,
		channels:   channels,
		suspended:  true,
	}
	g.master = &Gain{graph: g, value: 1, connected: true}
	g.nodes = []*Gain{g.master}
	return g, nil
}

// SampleRate returns the output sample rate
func (g *Graph) SampleRate() int { return g.sampleRate }

// Channels returns the output channel count
func (g *Graph) Channels() int { return g.channels }

// Now returns the hardware clock in seconds
func (g *Graph) Now() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now()
}

func (g *Graph) now() float64 {
	return float64(g.frames) / float64(g.sampleRate)
}

// Suspended reports whether the clock is stopped
func (g *Graph) Suspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended
}

// Resume starts the clock
func (g *Graph) Resume() {
	g.mu.Lock()
	g.suspended = false
	g.mu.Unlock()
}

// Suspend stops the clock; rendering yields silence until Resume
func (g *Graph) Suspend() {
	g.mu.Lock()
	g.suspended = true
	g.mu.Unlock()
}

// Master returns the root gain node
func (g *Graph) Master() *Gain {
	return g.master
}

// NewGain creates a gain node feeding parent (master when nil)
func (g *Graph) NewGain(parent *Gain) *Gain {
	g.mu.Lock()
	defer g.mu.Unlock()

	if parent == nil {
		parent = g.master
	}
	node := &Gain{
		graph:     g,
		parent:    parent,
		depth:     parent.depth + 1,
		value:     1,
		connected: parent.connected,
	}
	g.nodes = append(g.nodes, node)
	g.nodesDirty = true
	return node
}

// Start schedules buf to sound into dest from file position offset for
// duration seconds, beginning at hardware time when. onEnded, if set, fires
// once after the source finishes or is stopped.
func (g *Graph) Start(buf *audio.Buffer, dest *Gain, when, offset, duration float64, onEnded func()) (*Source, error) {
	if buf == nil || buf.Frames() == 0 {
		return nil, errors.New("empty buffer")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("invalid duration: %v", duration)
	}
	if offset < 0 {
		offset = 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if dest == nil {
		dest = g.master
	}
	if !dest.connected {
		return nil, ErrDisconnected
	}

	// sources never outlive their buffer
	if remaining := buf.Duration() - offset; remaining < duration {
		duration = remaining
	}
	if duration <= 0 {
		return nil, fmt.Errorf("offset %.3fs beyond buffer end", offset)
	}

	src := &Source{
		graph:    g,
		buf:      buf,
		dest:     dest,
		when:     when,
		offset:   offset,
		duration: duration,
		onEnded:  onEnded,
	}
	g.sources = append(g.sources, src)
	return src, nil
}

// Render fills out with interleaved frames and advances the clock
func (g *Graph) Render(out []float32) {
	g.mu.Lock()
	g.render(out)
	fire := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

// Read implements io.Reader producing float32 little-endian frames
func (g *Graph) Read(p []byte) (int, error) {
	frameBytes := 4 * g.channels
	n := len(p) / frameBytes
	if n == 0 {
		return 0, nil
	}

	samples := n * g.channels
	if cap(g.scratch) < samples {
		g.scratch = make([]float32, samples)
	}
	buf := g.scratch[:samples]
	g.Render(buf)

	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return n * frameBytes, nil
}

func (g *Graph) render(out []float32) {
	clear(out)
	if g.suspended {
		return
	}

	n := len(out) / g.channels
	if n == 0 {
		return
	}

	if g.nodesDirty {
		// children before parents
		slices.SortStableFunc(g.nodes, func(a, b *Gain) int { return b.depth - a.depth })
		g.nodesDirty = false
	}

	size := n * g.channels
	for _, node := range g.nodes {
		if cap(node.bus) < size {
			node.bus = make([]float32, size)
		}
		node.bus = node.bus[:size]
		clear(node.bus)
	}

	g.mixSources(n)

	rate := float64(g.sampleRate)
	for _, node := range g.nodes {
		if !node.connected {
			continue
		}
		for i := 0; i < n; i++ {
			t := float64(g.frames+int64(i)) / rate
			gain := float32(node.valueAt(t))
			for c := 0; c < g.channels; c++ {
				node.bus[i*g.channels+c] *= gain
			}
		}
		for _, a := range node.analysers {
			a.push(node.bus)
		}

		if node.parent == nil {
			copy(out, node.bus)
		} else {
			for i, s := range node.bus {
				node.parent.bus[i] += s
			}
		}
	}

	g.frames += int64(n)
	for _, node := range g.nodes {
		node.settle(g.now())
	}
}

func (g *Graph) mixSources(n int) {
	rate := float64(g.sampleRate)
	kept := g.sources[:0]

	for _, src := range g.sources {
		startFrame := int64(math.Ceil(src.when*rate - 1e-9))
		endFrame := int64(math.Ceil((src.when+src.duration)*rate - 1e-9))
		blockStart := g.frames
		blockEnd := g.frames + int64(n)

		if src.dest.connected {
			from := max(startFrame, blockStart)
			to := min(endFrame, blockEnd)
			for f := from; f < to; f++ {
				t := float64(f)/rate - src.when
				pos := (src.offset + t) * float64(src.buf.SampleRate)
				i := int(f - blockStart)
				for c := 0; c < g.channels; c++ {
					src.dest.bus[i*g.channels+c] += src.sampleAt(pos, c)
				}
			}
		}

		if endFrame <= blockEnd {
			src.finish()
			continue
		}
		kept = append(kept, src)
	}

	clear(g.sources[len(kept):])
	g.sources = kept
}

// Active returns the number of sources not yet finished
func (g *Graph) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sources)
}

func (g *Graph) removeSource(src *Source) {
	g.sources = slices.DeleteFunc(g.sources, func(s *Source) bool { return s == src })
}
