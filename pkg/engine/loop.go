// ABOUTME: Loop range controls
// ABOUTME: Setting, clearing and toggling the loop resynchronizes live voices
package engine

import (
	"errors"
	"fmt"

	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// ErrInvalidLoop is returned for empty loop ranges
var ErrInvalidLoop = errors.New("invalid loop range")

// SetLoopInBeats sets and enables the loop range. Start and end are swapped
// when reversed.
func (e *Engine) SetLoopInBeats(start, end float64, opts LoopOptions) error {
	start, end = min(start, end), max(start, end)
	if opts.Quantize {
		start = timeline.QuantizeBeats(start, e.config.LoopQuantum, false)
		end = timeline.QuantizeBeats(end, e.config.LoopQuantum, true)
	}
	if start < 0 || !(end > start) {
		return fmt.Errorf("%w: [%v, %v)", ErrInvalidLoop, start, end)
	}

	e.mu.Lock()
	e.loop = LoopRange{StartBeat: start, EndBeat: end, Set: true, Enabled: true}
	e.resync()
	st := e.stateLocked()
	e.mu.Unlock()

	e.emit(st)
	return nil
}

// ClearLoop removes the loop range, which also disables looping
func (e *Engine) ClearLoop() {
	e.mu.Lock()
	wasActive := e.loop.Active()
	e.loop = LoopRange{}
	if wasActive {
		e.resync()
	}
	st := e.stateLocked()
	e.mu.Unlock()

	e.emit(st)
}

// ToggleLoop flips looping on or off. Without a range it does nothing.
func (e *Engine) ToggleLoop() {
	e.mu.Lock()
	if !e.loop.Set {
		e.mu.Unlock()
		return
	}
	e.loop.Enabled = !e.loop.Enabled
	e.resync()
	st := e.stateLocked()
	e.mu.Unlock()

	e.emit(st)
}

// Loop returns the loop range
func (e *Engine) Loop() LoopRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loop
}

// resync rebuilds the voice set after the window changed under a running
// transport. The epoch mapping is kept, so playback continues in place.
func (e *Engine) resync() {
	if !e.playing {
		return
	}

	now := e.device.Now()
	pos := e.songTime(now)
	if e.inLeadIn(now) {
		pos = e.startOffset
	}
	if win := e.window(); pos >= win.end {
		pos = e.wrap(pos, win)
	}

	e.stopAll(reasonTransport)
	e.nextScheduleTime = pos
	e.scanFloor = pos
	e.currentTime = pos
	e.scheduleOverlapping(pos)
}
