// ABOUTME: Transport controls and the song-time to hardware-time mapping
// ABOUTME: Play, pause, seek and reset each start or end a playback epoch
package engine

import (
	"math"

	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// Play starts playback from the resting position. It does nothing when
// already playing.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.playing {
		e.mu.Unlock()
		return
	}

	if e.device.Suspended() {
		e.device.Resume()
	}

	pos := e.restPosition
	if win := e.window(); win.looping && pos >= win.end {
		pos = win.start
	}

	e.stopAll(reasonTransport)
	e.playing = true
	e.beginEpoch(pos)

	st := e.stateLocked()
	e.mu.Unlock()
	e.emit(st)
}

// Pause stops every voice and freezes the position at the current song time
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}

	pos := e.displayTime(e.device.Now())
	e.stopAll(reasonTransport)
	e.playing = false
	e.startOffset = pos
	e.currentTime = pos

	st := e.stateLocked()
	e.mu.Unlock()
	e.emit(st)
}

// Seek moves the playhead. While playing, all voices are stopped and a new
// epoch begins at the target.
func (e *Engine) Seek(seconds float64, opts SeekOptions) {
	e.mu.Lock()

	target := math.Max(0, seconds)
	if opts.SetAsRest {
		e.restPosition = target
	}

	if !e.playing {
		e.startOffset = target
		e.currentTime = target
	} else {
		if win := e.window(); win.looping && target >= win.end {
			target = win.start
		}
		e.stopAll(reasonTransport)
		e.beginEpoch(target)
	}

	st := e.stateLocked()
	e.mu.Unlock()
	e.emit(st)
}

// Reset stops playback and returns everything to the top of the song
func (e *Engine) Reset() {
	e.mu.Lock()

	if e.playing {
		e.stopAll(reasonTransport)
		e.playing = false
	}
	e.currentTime = 0
	e.startOffset = 0
	e.restPosition = 0
	e.iteration = 0
	e.nextScheduleTime = 0
	e.scanFloor = 0
	e.playbackStartTime = e.device.Now()
	e.leadInUntil = e.playbackStartTime

	st := e.stateLocked()
	e.mu.Unlock()
	e.emit(st)
}

// Position returns the current song time in seconds
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayTime(e.device.Now())
}

// Playing reports whether the transport is running
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// RestPosition returns the position Play starts from
func (e *Engine) RestPosition() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restPosition
}

// SetTimebase changes the tempo and the song length in beats. Zero values
// keep the current setting. The playhead and the resting position keep their
// beat positions; while playing a new epoch begins there.
func (e *Engine) SetTimebase(tempo timeline.Tempo, totalBeats float64) {
	e.mu.Lock()

	if tempo.BPM <= 0 {
		tempo = e.config.Tempo
	}
	if totalBeats <= 0 {
		totalBeats = e.config.TotalBeats
	}
	if tempo.BPM == e.config.Tempo.BPM && totalBeats == e.config.TotalBeats {
		e.mu.Unlock()
		return
	}

	beat := e.displayTime(e.device.Now()) / e.secondsPerBeat()
	restBeat := e.restPosition / e.secondsPerBeat()
	e.config.Tempo = tempo
	e.config.TotalBeats = totalBeats

	spb := e.secondsPerBeat()
	pos := beat * spb
	e.restPosition = restBeat * spb
	if win := e.window(); pos >= win.end {
		pos = win.start
	}
	e.debugf("Timebase %.2f BPM, %.0f beats", tempo.BPM, totalBeats)

	if e.playing {
		e.stopAll(reasonTransport)
		e.beginEpoch(pos)
	} else {
		e.startOffset = pos
		e.currentTime = pos
	}

	st := e.stateLocked()
	e.mu.Unlock()
	e.emit(st)
}

// Timebase returns the tempo and the song length in beats
func (e *Engine) Timebase() (timeline.Tempo, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.Tempo, e.config.TotalBeats
}

// beginEpoch maps song time pos to a hardware time one lead-in from now and
// schedules the clips already sounding at pos
func (e *Engine) beginEpoch(pos float64) {
	e.playbackStartTime = e.device.Now() + e.config.LeadIn.Seconds()
	e.leadInUntil = e.playbackStartTime
	e.startOffset = pos
	e.currentTime = pos
	e.nextScheduleTime = pos
	e.scanFloor = pos
	e.scheduleOverlapping(pos)
}

// inLeadIn reports whether the current epoch's first voices are still pending
func (e *Engine) inLeadIn(now float64) bool {
	return now < e.leadInUntil
}

// songTime applies the epoch mapping without clamping
func (e *Engine) songTime(now float64) float64 {
	return e.startOffset + (now - e.playbackStartTime)
}

// displayTime is the song time shown to users: held at the epoch start during
// the lead-in and folded into the active window between scheduler ticks
func (e *Engine) displayTime(now float64) float64 {
	if !e.playing {
		return e.currentTime
	}
	if e.inLeadIn(now) {
		return e.startOffset
	}

	song := e.songTime(now)
	win := e.window()
	if l := win.length(); l > 0 && song >= win.end {
		song = win.start + math.Mod(song-win.start, l)
	}
	return song
}

func (e *Engine) refreshPosition() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.currentTime = e.displayTime(e.device.Now())
	st := e.stateLocked()
	e.mu.Unlock()
	e.emit(st)
}
