// ABOUTME: Periodic scheduler tick with look-ahead and window wrap-around
// ABOUTME: Queues clips before they are due and repeats loop and song windows
package engine

import (
	"math"
	"time"
)

// beatEpsilon absorbs rounding when converting song seconds back to beats
const beatEpsilon = 1e-9

// window is the song-time range playback repeats: the loop when active,
// otherwise the whole song
type window struct {
	start   float64
	end     float64
	looping bool
}

func (w window) length() float64 {
	return w.end - w.start
}

func (e *Engine) window() window {
	spb := e.secondsPerBeat()
	if e.loop.Active() {
		return window{start: e.loop.StartBeat * spb, end: e.loop.EndBeat * spb, looping: true}
	}
	return window{start: 0, end: e.config.TotalBeats * spb}
}

// tick is one scheduler period
func (e *Engine) tick() {
	started := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.drainEnded()
	e.pruneFinished()

	if !e.playing {
		return
	}
	if e.reconcilePending.Load() {
		e.reconcileLocked()
	}
	e.advance()

	e.config.Metrics.observeTick(time.Since(started))
}

// advance moves the cursor, wraps it and schedules the look-ahead window
func (e *Engine) advance() {
	win := e.window()
	now := e.device.Now()
	song := e.songTime(now)

	// set when the pass just entered never had its head queued, as after a
	// late tick or a wrap of several laps
	enter := false
	if song >= win.end {
		iteration := e.iteration
		headQueued := e.nextScheduleTime > win.end
		song = e.wrap(song, win)
		e.pruneStale()
		enter = !headQueued || e.iteration > iteration+1
	}
	e.currentTime = e.displayTime(now)

	horizon := song + e.lookAhead()
	from := math.Max(math.Min(song, e.nextScheduleTime), e.scanFloor)

	if horizon > win.end {
		// remainder of this pass, then the head of the next one
		e.scanWindow(from, win.end, e.iteration, 0, win, enter)
		head := math.Min(horizon-win.end, win.length())
		e.scanWindow(win.start, win.start+head, e.iteration+1, win.length(), win, true)
	} else {
		e.scanWindow(from, horizon, e.iteration, 0, win, enter)
	}
	e.nextScheduleTime = horizon
}

// wrap folds song back into win by whole laps. The epoch mapping is shifted
// instead of re-derived, so already queued voices keep their hardware times.
func (e *Engine) wrap(song float64, win window) float64 {
	l := win.length()
	if l <= 0 || song < win.end {
		return song
	}

	laps := math.Max(1, math.Floor((song-win.start)/l))
	shift := laps * l

	e.playbackStartTime += shift
	e.nextScheduleTime -= shift
	e.scanFloor = win.start
	e.iteration += int(laps)
	e.stats.Wraps += int64(laps)
	e.config.Metrics.wrapped(int(laps))

	e.debugf("Wrapped %.3fs -> %.3fs (iteration %d)", song, song-shift, e.iteration)
	return song - shift
}

// scanWindow schedules clips starting in [from, to) for iteration iter.
// With overlap set, clips already sounding at from are entered mid-clip.
func (e *Engine) scanWindow(from, to float64, iter int, shift float64, win window, overlap bool) {
	if to <= from {
		return
	}

	idx := e.timelineIndex()
	spb := e.secondsPerBeat()

	if overlap {
		for i := 0; i < idx.Len(); i++ {
			c := idx.At(i)
			if c.StartBeat*spb >= from {
				break
			}
			if c.EndBeat*spb > from {
				e.scheduleVoice(c, iter, shift, from, win.end)
			}
		}
	}

	for i := idx.FirstAtOrAfter(from/spb - beatEpsilon); i < idx.Len(); i++ {
		c := idx.At(i)
		start := c.StartBeat * spb
		if start >= to {
			break
		}
		e.scheduleVoice(c, iter, shift, start, win.end)
	}
}

// scheduleOverlapping enters every clip sounding at pos, starting from pos
func (e *Engine) scheduleOverlapping(pos float64) {
	win := e.window()
	if pos >= win.end {
		return
	}

	idx := e.timelineIndex()
	spb := e.secondsPerBeat()
	for i := 0; i < idx.Len(); i++ {
		c := idx.At(i)
		if c.StartBeat*spb > pos {
			break
		}
		if c.EndBeat*spb <= pos {
			continue
		}
		e.scheduleVoice(c, e.iteration, 0, pos, win.end)
	}
}
