// ABOUTME: Tests for reconciliation, gain riding and track stages
// ABOUTME: Tests teardown on clip changes, stale completions and metering
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

func TestClipHashIgnoresGain(t *testing.T) {
	c := timeline.Clip{ID: "a", TrackID: "t1", AudioFileID: "B", StartBeat: 0, EndBeat: 4}

	withGain := c
	withGain.Gain = timeline.Float(0.5)
	withGain.GainDB = timeline.Float(-6)
	assert.Equal(t, clipHash(c), clipHash(withGain))

	for name, mutate := range map[string]func(*timeline.Clip){
		"start":  func(c *timeline.Clip) { c.StartBeat = 1 },
		"end":    func(c *timeline.Clip) { c.EndBeat = 5 },
		"offset": func(c *timeline.Clip) { c.OffsetSeconds = 0.5 },
		"buffer": func(c *timeline.Clip) { c.AudioFileID = "C" },
		"track":  func(c *timeline.Clip) { c.TrackID = "t2" },
	} {
		changed := c
		mutate(&changed)
		assert.NotEqual(t, clipHash(c), clipHash(changed), name)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("A", 0, 8)
	h.clip("B", 1, 3)

	h.eng.Play()
	h.run(0.6)

	h.eng.reconcile()
	before := h.eng.Stats()
	ids := make(map[voiceKey]uint64)
	for k, v := range h.eng.voices {
		ids[k] = v.id
	}

	h.eng.reconcile()
	after := h.eng.Stats()
	assert.Equal(t, before.Scheduled, after.Scheduled)
	assert.Equal(t, before.Stopped, after.Stopped)
	require.Len(t, h.eng.voices, len(ids))
	for k, v := range h.eng.voices {
		assert.Equal(t, ids[k], v.id)
	}
}

func TestGainChangeRampsLiveVoice(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.clip("A", 0, 8)

	h.eng.Play()
	h.render(0.5)
	v := h.voice("A", 0)
	require.NotNil(t, v)

	c.Gain = timeline.Float(0.5)
	require.NoError(t, h.store.PutClip(c))
	assert.True(t, h.eng.gainDirty.Load())

	h.eng.reconcile()
	assert.Same(t, v, h.voice("A", 0), "gain edits keep the voice")

	h.eng.applyGains()
	assert.Equal(t, 0.5, v.gain.Target())
	assert.Equal(t, int64(1), h.eng.Stats().GainRamps)

	h.eng.applyGains()
	assert.Equal(t, int64(1), h.eng.Stats().GainRamps, "no ramp once on target")
	assert.Equal(t, int64(0), h.eng.Stats().Stopped)
}

func TestGainFromDecibels(t *testing.T) {
	h := newHarness(t, Config{})
	c := timeline.Clip{ID: "A", TrackID: "t1", AudioFileID: "B", StartBeat: 0, EndBeat: 8, GainDB: timeline.Float(-20)}
	require.NoError(t, h.store.PutClip(c))

	h.eng.Play()
	v := h.voice("A", 0)
	require.NotNil(t, v)
	assert.InDelta(t, 0.1, v.gain.Value(), 1e-9)
}

func TestOffsetChangeReschedules(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.clip("A", 0, 8)

	h.eng.Play()
	h.render(0.5)
	old := h.voice("A", 0)
	require.NotNil(t, old)

	c.OffsetSeconds = 0.5
	require.NoError(t, h.store.PutClip(c))
	h.eng.reconcile()

	assert.True(t, old.source.Done())
	fresh := h.voice("A", 0)
	require.NotNil(t, fresh)
	assert.NotEqual(t, old.id, fresh.id)
	assert.InDelta(t, 0.5, fresh.source.When(), 1e-9)
	assert.InDelta(t, 0.95, fresh.source.Offset(), 1e-9, "clip offset plus time into the clip")
	assert.Equal(t, int64(1), h.eng.Stats().Stopped)
}

func TestMovedClipRescheduledAtNewStart(t *testing.T) {
	h := newHarness(t, Config{})
	c := h.clip("A", 0, 8)

	h.eng.Play()
	h.render(0.5) // song 0.45

	c.StartBeat = 1 // now starts at 0.5s
	require.NoError(t, h.store.PutClip(c))
	h.eng.reconcile()
	assert.Empty(t, h.eng.voices)

	h.eng.tick()
	v := h.voice("A", 0)
	require.NotNil(t, v)
	assert.Equal(t, 0.5, v.key.start)
	assert.InDelta(t, 0.55, v.source.When(), 1e-9)
}

func TestDeletedClipStops(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("A", 0, 8)

	h.eng.Play()
	require.NotNil(t, h.voice("A", 0))

	h.store.DeleteClip("A")
	h.eng.reconcile()
	assert.Empty(t, h.eng.voices)
	assert.Equal(t, 0, h.graph.Active())
}

func TestNewClipUnderCursorStartsImmediately(t *testing.T) {
	h := newHarness(t, Config{})
	h.eng.Play()
	h.render(1.05) // song 1.0

	h.clip("late", 0, 4)
	h.eng.reconcile()

	v := h.voice("late", 0)
	require.NotNil(t, v)
	assert.InDelta(t, 1.05, v.source.When(), 1e-9)
	assert.InDelta(t, 1.0, v.source.Offset(), 1e-9)
}

func TestReconcileStopsEarlierIterations(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("A", 0, 8)
	h.eng.Play()
	require.NotNil(t, h.voice("A", 0))

	h.eng.mu.Lock()
	h.eng.iteration++
	h.eng.mu.Unlock()
	h.eng.reconcile()

	assert.Nil(t, h.voice("A", 0))
}

func TestStaleCompletionIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("A", 0, 8)

	h.eng.Play()
	h.render(0.2)

	// same key, new epoch
	h.eng.Seek(0, SeekOptions{})
	fresh := h.voice("A", 0)
	require.NotNil(t, fresh)

	// delivers the superseded voice's completion
	h.render(0.01)
	h.eng.tick()

	assert.Equal(t, int64(1), h.eng.Stats().Stale)
	assert.Same(t, fresh, h.voice("A", 0))
}

func TestMissingResourcesRetried(t *testing.T) {
	h := newHarness(t, Config{})
	c := timeline.Clip{ID: "A", TrackID: "t2", AudioFileID: "later", StartBeat: 0, EndBeat: 8}
	require.NoError(t, h.store.PutClip(c))

	h.eng.Play()
	assert.Empty(t, h.eng.voices)
	assert.Equal(t, int64(1), h.eng.Stats().Missing)

	h.eng.RegisterTrack("t2", 1)
	h.eng.tick()
	assert.Empty(t, h.eng.voices, "buffer still missing")

	require.NoError(t, h.store.PutBuffer("later", tone(10)))
	assert.True(t, h.eng.reconcilePending.Load())
	h.eng.tick()
	assert.NotNil(t, h.voice("A", 0))
}

func TestUnregisterTrackStopsVoices(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("A", 0, 8)

	h.eng.Play()
	require.NotNil(t, h.voice("A", 0))

	h.eng.UnregisterTrack("t1")
	assert.Empty(t, h.eng.voices)
	assert.Empty(t, h.eng.Tracks())
	assert.Equal(t, 0.0, h.eng.TrackVolume("t1"))

	// unknown tracks are ignored
	h.eng.UnregisterTrack("t1")
	h.eng.SetTrackGain("t1", 0.5)
}

func TestTrackGainAndMetering(t *testing.T) {
	h := newHarness(t, Config{GainTimeConstant: time.Microsecond})
	h.clip("A", 0, 8)

	h.eng.SetTrackGain("t1", 0.5)
	assert.Equal(t, 0.5, h.eng.TrackGain("t1"))
	assert.Equal(t, 0.0, h.eng.TrackVolume("t1"))

	h.eng.Play()
	h.render(0.3)

	assert.InDelta(t, 0.5, h.eng.TrackVolume("t1"), 1e-6)
	levels := h.eng.TrackLevels("t1")
	assert.Greater(t, levels.RMS, 0.0)
	assert.LessOrEqual(t, levels.RMS, levels.Peak)

	assert.Equal(t, 0.0, h.eng.TrackVolume("missing"))

	h.eng.RegisterTrack("t1", 0.25)
	assert.Equal(t, 0.25, h.eng.TrackGain("t1"), "re-registering updates the gain")
}

func TestLoopControls(t *testing.T) {
	h := newHarness(t, Config{})

	h.eng.ToggleLoop()
	assert.Equal(t, LoopRange{}, h.eng.Loop(), "toggle without a range does nothing")

	require.NoError(t, h.eng.SetLoopInBeats(6.2, 3.3, LoopOptions{Quantize: true}))
	loop := h.eng.Loop()
	assert.Equal(t, 3.0, loop.StartBeat)
	assert.Equal(t, 7.0, loop.EndBeat)
	assert.True(t, loop.Active())

	h.eng.ToggleLoop()
	assert.False(t, h.eng.Loop().Enabled)
	assert.True(t, h.eng.Loop().Set)

	h.eng.ToggleLoop()
	assert.True(t, h.eng.Loop().Active())

	h.eng.ClearLoop()
	assert.False(t, h.eng.Loop().Set)
	assert.False(t, h.eng.Loop().Enabled)

	assert.ErrorIs(t, h.eng.SetLoopInBeats(2, 2, LoopOptions{}), ErrInvalidLoop)
	assert.ErrorIs(t, h.eng.SetLoopInBeats(-4, -2, LoopOptions{}), ErrInvalidLoop)
}

func TestLoopChangeWhilePlayingResyncs(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("A", 0, 16) // 0s - 8s

	h.eng.Play()
	h.render(0.55) // song 0.5
	before := h.voice("A", 0)
	require.NotNil(t, before)
	assert.InDelta(t, 8.0, before.source.Duration(), 1e-9)

	require.NoError(t, h.eng.SetLoopInBeats(0, 4, LoopOptions{}))
	after := h.voice("A", 0)
	require.NotNil(t, after)
	assert.NotEqual(t, before.id, after.id)
	assert.InDelta(t, 1.5, after.source.Duration(), 1e-9, "trimmed at the new loop end")
	assert.InDelta(t, 0.5, h.eng.Position(), 1e-9, "playback continues in place")
}
