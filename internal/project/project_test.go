// ABOUTME: Tests for project files
// ABOUTME: Tests parsing, validation, store population and buffer loading
package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/multitrack-go/pkg/audio"
	"github.com/Sendspin/multitrack-go/pkg/audio/encode"
	"github.com/Sendspin/multitrack-go/pkg/engine"
	"github.com/Sendspin/multitrack-go/pkg/mixer"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

const demo = `
name: demo
bpm: 90
total_beats: 32
loop:
  start_beat: 0
  end_beat: 8
tracks:
  - id: drums
    name: Drums
    gain_db: -6
audio_files:
  - id: kick
    path: kick.wav
    name: Kick
  - id: gone
    path: missing.wav
    name: Missing
clips:
  - id: c1
    track: drums
    audio_file: kick
    start_beat: 0
    end_beat: 4
    gain: 0.5
  - id: c2
    track: drums
    audio_file: gone
    start_beat: 4
    end_beat: 8
    offset_seconds: 0.25
`

func writeTone(t *testing.T, path string, rate int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc, err := encode.NewWAV(f, audio.Format{Codec: "wav", SampleRate: rate, Channels: 1, BitDepth: 16})
	require.NoError(t, err)
	require.NoError(t, enc.Encode(make([]float32, rate)))
	require.NoError(t, enc.Close())
}

func TestParse(t *testing.T) {
	p, err := Parse(strings.NewReader(demo), "/songs")
	require.NoError(t, err)

	assert.Equal(t, "demo", p.Name)
	require.Len(t, p.Clips, 2)
	assert.Equal(t, timeline.TrackID("drums"), p.Clips[0].TrackID)
	assert.Equal(t, 0.5, p.Clips[0].EffectiveGain())
	assert.Equal(t, 0.25, p.Clips[1].OffsetSeconds)
	assert.Equal(t, filepath.Join("/songs", "kick.wav"), p.Path(p.AudioFiles[0]))

	cfg := p.EngineConfig(engine.Config{LeadIn: 1})
	assert.Equal(t, 90.0, cfg.Tempo.BPM)
	assert.Equal(t, 32.0, cfg.TotalBeats)
	assert.EqualValues(t, 1, cfg.LeadIn, "other settings are kept")
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "name: x\nbogus: 1\n"},
		{"unknown track", "tracks: []\naudio_files: [{id: a}]\nclips: [{id: c, track: t, audio_file: a, start_beat: 0, end_beat: 1}]\n"},
		{"unknown file", "tracks: [{id: t}]\naudio_files: []\nclips: [{id: c, track: t, audio_file: a, start_beat: 0, end_beat: 1}]\n"},
		{"empty clip", "tracks: [{id: t}]\naudio_files: [{id: a}]\nclips: [{id: c, track: t, audio_file: a, start_beat: 2, end_beat: 2}]\n"},
		{"duplicate clip", "tracks: [{id: t}]\naudio_files: [{id: a}]\nclips: [{id: c, track: t, audio_file: a, start_beat: 0, end_beat: 1}, {id: c, track: t, audio_file: a, start_beat: 1, end_beat: 2}]\n"},
		{"duplicate track", "tracks: [{id: t}, {id: t}]\n"},
		{"empty loop", "loop: {start_beat: 4, end_beat: 4}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body), ".")
			assert.Error(t, err)
		})
	}
}

func TestLoadApplyAndBuffers(t *testing.T) {
	dir := t.TempDir()
	writeTone(t, filepath.Join(dir, "kick.wav"), 8000)
	path := filepath.Join(dir, "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(demo), 0o644))

	p, err := Load(path)
	require.NoError(t, err)

	store := timeline.NewStore()
	require.NoError(t, p.Apply(store))
	assert.Len(t, store.Clips(), 2)
	tr, ok := store.Track("drums")
	require.True(t, ok)
	assert.Equal(t, -6.0, tr.GainDB)

	err = p.LoadBuffers(context.Background(), store, 16000)
	require.Error(t, err, "the missing file is reported")
	assert.Contains(t, err.Error(), "gone")

	buf, ok := store.Buffer("kick")
	require.True(t, ok)
	assert.Equal(t, 16000, buf.SampleRate)
	assert.InDelta(t, 1.0, buf.Duration(), 1e-3)

	_, ok = store.Buffer("gone")
	assert.False(t, ok)
}

func TestApplyLoop(t *testing.T) {
	p, err := Parse(strings.NewReader(demo), ".")
	require.NoError(t, err)

	store := timeline.NewStore()
	g := newGraph(t)
	eng := engine.New(g, store, p.EngineConfig(engine.Config{}))
	defer eng.Close()

	require.NoError(t, p.ApplyLoop(eng))
	loop := eng.Loop()
	assert.True(t, loop.Active())
	assert.Equal(t, 8.0, loop.EndBeat)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func newGraph(t *testing.T) *mixer.Graph {
	t.Helper()
	g, err := mixer.NewGraph(8000, 1)
	require.NoError(t, err)
	return g
}
