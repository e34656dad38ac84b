// ABOUTME: Voice registry and voice lifecycle
// ABOUTME: Keys, content hashes, epoch-tagged completions and teardown
package engine

import (
	"encoding/binary"
	"errors"
	"log"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/Sendspin/multitrack-go/pkg/mixer"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// stop reasons, used as metric labels
const (
	reasonTransport = "transport"
	reasonDeleted   = "deleted"
	reasonChanged   = "changed"
	reasonStale     = "stale"
	reasonTrack     = "track"
	reasonShutdown  = "shutdown"
)

// voiceKey identifies one sounding of a clip: at most one live voice per key
type voiceKey struct {
	clip      timeline.ClipID
	iteration int
	start     float64 // clip start in loop-local song seconds
}

type voice struct {
	id     uint64
	key    voiceKey
	track  timeline.TrackID
	hash   uint64
	epoch  uint64
	gain   *mixer.Gain
	source *mixer.Source
}

type endedEvent struct {
	epoch uint64
	key   voiceKey
	id    uint64
}

// clipHash fingerprints the fields that decide what a voice sounds like.
// Gain is left out so gain edits ramp the live voice instead of replacing it.
func clipHash(c timeline.Clip) uint64 {
	d := xxhash.New()
	var b [8]byte
	for _, f := range []float64{c.StartBeat, c.EndBeat, c.OffsetSeconds} {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		d.Write(b[:])
	}
	d.WriteString(string(c.AudioFileID))
	d.Write([]byte{0})
	d.WriteString(string(c.TrackID))
	return d.Sum64()
}

// scheduleVoice sounds clip c from song time from until song time until
// (both clamped to the clip) in iteration iter. shift offsets the hardware
// start for voices queued ahead into the next pass.
func (e *Engine) scheduleVoice(c timeline.Clip, iter int, shift, from, until float64) bool {
	spb := e.secondsPerBeat()
	clipStart := c.StartBeat * spb
	clipEnd := c.EndBeat * spb

	key := voiceKey{clip: c.ID, iteration: iter, start: clipStart}
	if v, ok := e.voices[key]; ok {
		if !v.source.Done() {
			return false
		}
		e.release(v)
	}

	from = math.Max(from, clipStart)
	until = math.Min(until, clipEnd)
	if until <= from {
		return false
	}

	stage, ok := e.tracks[c.TrackID]
	if !ok {
		e.missing(c, "track stage")
		return false
	}
	buf, ok := e.timeline.Buffer(c.AudioFileID)
	if !ok {
		e.missing(c, "buffer")
		return false
	}

	when := e.playbackStartTime + (from + shift - e.startOffset)
	offset := c.OffsetSeconds + (from - clipStart)
	duration := until - from

	// a late tick: start now and skip what was missed to stay phase-correct
	now := e.device.Now()
	missed := 0.0
	if when < now {
		missed = now - when
		when = now
		offset += missed
		duration -= missed
	}
	if duration <= 0 {
		e.elapsed(c, iter, -duration)
		return false
	}

	gain := e.device.NewGain(stage.gain)
	gain.SetValue(c.EffectiveGain())

	e.nextID++
	id := e.nextID
	epoch := e.epoch
	src, err := e.device.Start(buf, gain, when, offset, duration, func() {
		e.postEnded(endedEvent{epoch: epoch, key: key, id: id})
	})
	if err != nil {
		gain.Disconnect()
		e.debugf("Failed to start clip %s: %v", c.ID, err)
		return false
	}

	e.voices[key] = &voice{
		id:     id,
		key:    key,
		track:  c.TrackID,
		hash:   clipHash(c),
		epoch:  epoch,
		gain:   gain,
		source: src,
	}

	e.stats.Scheduled++
	e.config.Metrics.voiceScheduled(len(e.voices))
	if missed > lateThreshold {
		e.stats.Late++
		e.config.Metrics.voiceLate()
		e.debugf("Clip %s started %.1fms late", c.ID, missed*1000)
	}
	return true
}

// lateThreshold separates real lateness from clock rounding
const lateThreshold = 0.001

func (e *Engine) missing(c timeline.Clip, what string) {
	e.stats.Missing++
	e.config.Metrics.voiceMissing()
	e.debugf("Skipping clip %s: %s not ready", c.ID, what)
}

func (e *Engine) elapsed(c timeline.Clip, iter int, overdue float64) {
	e.stats.Elapsed++
	e.config.Metrics.voiceElapsed()
	if e.config.ElapsedPolicy == ElapsedLog {
		log.Printf("Dropped elapsed clip %s (iteration %d): %.1fms past its end", c.ID, iter, overdue*1000)
	}
}

// stopVoice removes v from the registry and silences it. Failures to stop
// are diagnostics only.
func (e *Engine) stopVoice(v *voice, reason string) {
	if err := v.source.Stop(); err != nil {
		if errors.Is(err, mixer.ErrSourceStopped) {
			e.debugf("Stop clip %s: %v", v.key.clip, err)
		} else {
			log.Printf("Stop clip %s failed: %v", v.key.clip, err)
		}
	}
	e.release(v)
	e.stats.Stopped++
	e.config.Metrics.voiceStopped(reason, len(e.voices))
}

// release drops v from the registry and the graph without stopping it
func (e *Engine) release(v *voice) {
	if cur, ok := e.voices[v.key]; ok && cur.id == v.id {
		delete(e.voices, v.key)
	}
	v.gain.Disconnect()
	e.config.Metrics.setActive(len(e.voices))
}

// stopAll tears down every voice and invalidates outstanding completions
func (e *Engine) stopAll(reason string) {
	e.epoch++
	for _, v := range e.voices {
		e.stopVoice(v, reason)
	}
	clear(e.voices)
}

// postEnded is called from the render path and must never block
func (e *Engine) postEnded(ev endedEvent) {
	select {
	case e.ended <- ev:
	default:
		// the next tick prunes finished voices
	}
}

func (e *Engine) drainEnded() {
	for {
		select {
		case ev := <-e.ended:
			e.releaseEnded(ev)
		default:
			return
		}
	}
}

// releaseEnded handles a completion, ignoring those from superseded epochs
// or from a voice that has since been replaced under the same key
func (e *Engine) releaseEnded(ev endedEvent) {
	if ev.epoch != e.epoch {
		e.stats.Stale++
		e.config.Metrics.staleCompletion()
		return
	}
	v, ok := e.voices[ev.key]
	if !ok || v.id != ev.id {
		return
	}
	e.release(v)
}

func (e *Engine) pruneFinished() {
	for _, v := range e.voices {
		if v.source.Done() {
			e.release(v)
		}
	}
}

// pruneStale stops voices left over from passes before the current one
func (e *Engine) pruneStale() {
	for _, v := range e.voices {
		if v.key.iteration < e.iteration {
			if v.source.Done() {
				e.release(v)
				continue
			}
			e.stopVoice(v, reasonStale)
		}
	}
}
