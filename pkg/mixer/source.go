// ABOUTME: Scheduled buffer sources
// ABOUTME: A source plays one trimmed region of a buffer at a hardware time
package mixer

import "github.com/Sendspin/multitrack-go/pkg/audio"

// Source is one scheduled playback of a buffer region
type Source struct {
	graph    *Graph
	buf      *audio.Buffer
	dest     *Gain
	when     float64
	offset   float64
	duration float64
	onEnded  func()
	done     bool
}

// When returns the hardware start time
func (s *Source) When() float64 { return s.when }

// Offset returns the file position the source starts from
func (s *Source) Offset() float64 { return s.offset }

// Duration returns the playable length in seconds
func (s *Source) Duration() float64 { return s.duration }

// Done reports whether the source finished or was stopped
func (s *Source) Done() bool {
	s.graph.mu.Lock()
	defer s.graph.mu.Unlock()
	return s.done
}

// Stop silences the source immediately
func (s *Source) Stop() error {
	s.graph.mu.Lock()
	defer s.graph.mu.Unlock()

	if s.done {
		return ErrSourceStopped
	}
	s.graph.removeSource(s)
	s.finish()
	return nil
}

// finish marks the source done and queues its callback; caller holds the lock
func (s *Source) finish() {
	s.done = true
	if s.onEnded != nil {
		s.graph.pending = append(s.graph.pending, s.onEnded)
		s.onEnded = nil
	}
}

// sampleAt reads channel c at a fractional frame position
func (s *Source) sampleAt(pos float64, c int) float32 {
	i := int(pos)
	frac := float32(pos - float64(i))
	a := s.buf.Sample(i, c)
	if frac == 0 {
		return a
	}
	b := s.buf.Sample(i+1, c)
	return a + (b-a)*frac
}
