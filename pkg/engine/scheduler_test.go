// ABOUTME: Tests for the scheduler tick
// ABOUTME: Tests look-ahead, loop and song wrap, seam pre-scheduling and drift correction
package engine

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

func TestTickSchedulesWithinLookAhead(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("B", 18, 24) // 9s - 12s
	h.clip("C", 21, 22) // 10.5s - 11s
	h.clip("D", 20, 21) // 10s - 10.5s

	h.eng.Seek(10, SeekOptions{SetAsRest: true})
	h.eng.Play()

	// song 10.40: horizon 10.475 stops short of C
	h.render(0.45)
	h.eng.tick()
	assert.Nil(t, h.voice("C", 0))

	// song 10.45: horizon 10.525 reaches C
	h.render(0.05)
	h.eng.tick()
	c := h.voice("C", 0)
	require.NotNil(t, c)
	assert.InDelta(t, 0.55, c.source.When(), 1e-9)
	assert.InDelta(t, 0.0, c.source.Offset(), 1e-9)
	assert.Equal(t, int64(0), h.eng.Stats().Late)
}

func TestWrapPreservesOvershoot(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("X", 0, 4) // 0s - 2s
	require.NoError(t, h.eng.SetLoopInBeats(4, 8, LoopOptions{}))

	h.eng.Play()

	// song 4.3 is 0.3s past the loop end at 4s
	h.render(4.35)
	h.eng.tick()

	st := h.eng.State()
	assert.Equal(t, 1, st.Iteration)
	assert.InDelta(t, 2.3, st.Position, 1e-9)
	assert.Equal(t, int64(1), h.eng.Stats().Wraps)
}

func TestWrapCountsWholeLaps(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.eng.SetLoopInBeats(4, 8, LoopOptions{}))
	h.eng.Play()

	h.eng.mu.Lock()
	song := h.eng.wrap(8.5, h.eng.window())
	iteration := h.eng.iteration
	h.eng.mu.Unlock()

	assert.InDelta(t, 2.5, song, 1e-9)
	assert.Equal(t, 3, iteration)
}

func TestLoopScenario(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("X", 0, 4) // 0s - 2s
	h.clip("Y", 4, 6) // 2s - 3s, wholly inside the loop
	require.NoError(t, h.eng.SetLoopInBeats(4, 8, LoopOptions{}))

	h.eng.Play()
	require.NotNil(t, h.voice("X", 0))

	// up to song 3.95: the look-ahead now straddles the loop end
	h.run(4.0)
	assert.Equal(t, 0, h.eng.iteration)

	next := h.voice("Y", 1)
	require.NotNil(t, next, "head of the next pass is queued before the seam")
	assert.InDelta(t, 4.05, next.source.When(), 1e-9)
	assert.Nil(t, h.voice("X", 1))

	h.run(0.2)
	assert.Equal(t, 1, h.eng.iteration)
	assert.Same(t, next, h.voice("Y", 1), "the queued voice is kept across the wrap")

	for k := range h.eng.voices {
		assert.Equal(t, 1, k.iteration, "no voices remain from the first pass")
	}

	count := 0
	for k := range h.eng.voices {
		if k.clip == "Y" && k.iteration == 1 {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLoopEntersClipsMidClip(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("W", 2, 10) // 1s - 5s, straddles the loop start
	require.NoError(t, h.eng.SetLoopInBeats(4, 8, LoopOptions{}))

	h.eng.Play()
	h.run(1.0)

	first := h.voice("W", 0)
	require.NotNil(t, first)
	assert.InDelta(t, 3.0, first.source.Duration(), 1e-9, "trimmed at the loop end")

	h.run(3.0)
	head := h.voice("W", 1)
	require.NotNil(t, head)
	assert.InDelta(t, 4.05, head.source.When(), 1e-9)
	assert.InDelta(t, 1.0, head.source.Offset(), 1e-9)
	assert.InDelta(t, 2.0, head.source.Duration(), 1e-9)
}

func TestSongEndWrapsToStart(t *testing.T) {
	h := newHarness(t, Config{TotalBeats: 8}) // 4s song
	h.clip("A", 0, 2)

	h.eng.Seek(3.5, SeekOptions{SetAsRest: true})
	h.eng.Play()

	h.run(0.5)
	a := h.voice("A", 1)
	require.NotNil(t, a, "song start is queued ahead of the end")
	assert.InDelta(t, 0.55, a.source.When(), 1e-9)

	h.run(0.1)
	assert.Equal(t, 1, h.eng.State().Iteration)
	assert.Less(t, h.eng.Position(), 0.2)
}

func TestDriftCorrection(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("Z", 4, 4.1)  // 2.0s - 2.05s
	h.clip("Z2", 4, 4.8) // 2.0s - 2.4s

	h.eng.Play()
	h.eng.tick()

	// a starved scheduler: nothing runs until song 2.15
	h.render(2.2)
	h.eng.tick()

	stats := h.eng.Stats()
	assert.Equal(t, int64(1), stats.Elapsed)
	assert.Equal(t, int64(1), stats.Late)
	assert.Nil(t, h.voice("Z", 0))

	z2 := h.voice("Z2", 0)
	require.NotNil(t, z2)
	assert.InDelta(t, 2.2, z2.source.When(), 1e-9)
	assert.InDelta(t, 0.15, z2.source.Offset(), 1e-9)
	assert.InDelta(t, 0.25, z2.source.Duration(), 1e-9)
}

func TestElapsedPolicyLog(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	for _, policy := range []ElapsedPolicy{ElapsedDrop, ElapsedLog} {
		buf.Reset()
		h := newHarness(t, Config{ElapsedPolicy: policy})
		h.clip("Z", 4, 4.1)

		h.eng.Play()
		h.render(2.2)
		h.eng.tick()

		assert.Equal(t, int64(1), h.eng.Stats().Elapsed)
		if policy == ElapsedLog {
			assert.Contains(t, buf.String(), "Dropped elapsed clip Z")
		} else {
			assert.NotContains(t, buf.String(), "Dropped elapsed clip")
		}
	}
}

func TestRegistryMatchesGraph(t *testing.T) {
	h := newHarness(t, Config{})
	for i, start := range []float64{0, 1, 2, 3, 5, 6, 7} {
		h.clip(string(rune('a'+i)), start, start+1.5)
	}
	require.NoError(t, h.eng.SetLoopInBeats(2, 6, LoopOptions{}))

	h.eng.Play()
	for i := 0; i < 200; i++ {
		h.render(0.025)
		h.eng.tick()
		if i%7 == 0 {
			h.eng.reconcile()
		}

		live := 0
		seen := make(map[timeline.ClipID]map[int]bool)
		for k, v := range h.eng.voices {
			if !v.source.Done() {
				live++
			}
			if seen[k.clip] == nil {
				seen[k.clip] = make(map[int]bool)
			}
			assert.False(t, seen[k.clip][k.iteration], "duplicate voice for %s/%d", k.clip, k.iteration)
			seen[k.clip][k.iteration] = true
		}
		assert.Equal(t, h.graph.Active(), live, "tick %d", i)
	}
	assert.Positive(t, h.eng.iteration)
}

func TestPositionAfterWrapBelowEpochStart(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.eng.SetLoopInBeats(4, 8, LoopOptions{})) // 2s - 4s

	h.eng.Seek(3.5, SeekOptions{SetAsRest: true})
	h.eng.Play()

	// wraps at song 4.0, now 0.25s into the second pass
	h.run(0.8)
	require.Equal(t, 1, h.eng.State().Iteration)
	assert.InDelta(t, 2.25, h.eng.Position(), 1e-9)
	assert.InDelta(t, 2.25, h.eng.State().Position, 1e-9)

	h.eng.Pause()
	assert.InDelta(t, 2.25, h.eng.Position(), 1e-9)
	assert.Equal(t, 3.5, h.eng.RestPosition())
}

func TestLoopToggleAfterWrapKeepsCursor(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("L", 0, 16) // 0s - 8s
	require.NoError(t, h.eng.SetLoopInBeats(4, 8, LoopOptions{}))

	h.eng.Seek(3.5, SeekOptions{SetAsRest: true})
	h.eng.Play()
	h.run(0.8) // song 2.25 in the second pass

	h.eng.ToggleLoop()
	require.False(t, h.eng.Loop().Enabled)
	assert.InDelta(t, 2.25, h.eng.Position(), 1e-9)

	require.Len(t, h.eng.voices, 1)
	v := h.voice("L", 1)
	require.NotNil(t, v)
	assert.InDelta(t, 0.8, v.source.When(), 1e-9)
	assert.InDelta(t, 2.25, v.source.Offset(), 1e-9, "resumes at the cursor")
	assert.InDelta(t, 5.75, v.source.Duration(), 1e-9)
}

func TestSeekWhilePlayingAfterWraps(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("X", 4, 6) // 2s - 3s
	require.NoError(t, h.eng.SetLoopInBeats(4, 8, LoopOptions{}))

	h.eng.Seek(3.5, SeekOptions{SetAsRest: true})
	h.eng.Play()
	h.run(0.8)
	require.Equal(t, 1, h.eng.State().Iteration)

	h.eng.Seek(2.5, SeekOptions{})
	assert.Equal(t, 2.5, h.eng.Position(), "held at the target during the lead-in")
	x := h.voice("X", 1)
	require.NotNil(t, x)
	assert.InDelta(t, 0.85, x.source.When(), 1e-9)
	assert.InDelta(t, 0.5, x.source.Offset(), 1e-9)
	assert.InDelta(t, 0.5, x.source.Duration(), 1e-9)

	// 1.75s of song from 2.5 wraps once more and lands at 2.25
	h.run(1.8)
	assert.Equal(t, 2, h.eng.State().Iteration)
	assert.InDelta(t, 2.25, h.eng.Position(), 1e-9)

	h.eng.Pause()
	assert.InDelta(t, 2.25, h.eng.Position(), 1e-9)
}

func TestLateTickAcrossLoopEndEntersOverlappingClips(t *testing.T) {
	h := newHarness(t, Config{})
	h.clip("W", 2, 10) // 1s - 5s, covers the whole loop
	require.NoError(t, h.eng.SetLoopInBeats(4, 8, LoopOptions{}))

	h.eng.Play()
	h.run(3.8) // song 3.75: the last horizon stops short of the loop end

	// one starved tick lands 0.05s into the next pass
	h.render(0.3)
	h.eng.tick()
	require.Equal(t, 1, h.eng.State().Iteration)

	w := h.voice("W", 1)
	require.NotNil(t, w, "clips straddling the loop start are entered late")
	assert.InDelta(t, 4.1, w.source.When(), 1e-9)
	assert.InDelta(t, 1.05, w.source.Offset(), 1e-9)
	assert.InDelta(t, 1.95, w.source.Duration(), 1e-9)
	assert.Equal(t, int64(1), h.eng.Stats().Late)

	h.run(1.0)
	assert.Equal(t, 1, h.eng.State().Iteration)
	assert.InDelta(t, 3.05, h.eng.Position(), 1e-9)
	assert.Same(t, w, h.voice("W", 1))
}
