// ABOUTME: Tests for the timeline store and index
// ABOUTME: Tests versioning, event delivery, cascading deletes and binary search
package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

func TestStorePutClipEvents(t *testing.T) {
	s := NewStore()

	var events []Event
	unsub := s.Subscribe(func(ev Event) { events = append(events, ev) })

	require.NoError(t, s.PutClip(Clip{ID: "a", TrackID: "t1", StartBeat: 0, EndBeat: 4}))
	require.NoError(t, s.PutClip(Clip{ID: "a", TrackID: "t1", StartBeat: 1, EndBeat: 4}))
	assert.True(t, s.DeleteClip("a"))
	assert.False(t, s.DeleteClip("a"))

	require.Len(t, events, 3)
	assert.Equal(t, EventClipCreated, events[0].Kind)
	assert.Equal(t, EventClipUpdated, events[1].Kind)
	assert.Equal(t, EventClipDeleted, events[2].Kind)
	assert.Equal(t, uint64(3), events[2].Version)
	assert.Equal(t, uint64(3), s.Version())

	unsub()
	require.NoError(t, s.PutClip(Clip{ID: "b", StartBeat: 0, EndBeat: 1}))
	assert.Len(t, events, 3)
}

func TestStoreRejectsInvalidClip(t *testing.T) {
	s := NewStore()
	err := s.PutClip(Clip{ID: "a", StartBeat: 2, EndBeat: 1})
	assert.ErrorIs(t, err, ErrInvalidClip)
	assert.Equal(t, uint64(0), s.Version())
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.PutClip(Clip{ID: "a", StartBeat: 0, EndBeat: 1, Gain: Float(0.5)}))

	c, ok := s.Clip("a")
	require.True(t, ok)
	*c.Gain = 1

	again, _ := s.Clip("a")
	assert.Equal(t, 0.5, *again.Gain)
}

func TestStoreDeleteAudioFile(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.PutAudioFile(AudioFile{ID: "f1", Name: "kick.wav"}))
	require.NoError(t, s.PutBuffer("f1", &audio.Buffer{Samples: []float32{0}, SampleRate: 1, Channels: 1}))
	require.NoError(t, s.PutClip(Clip{ID: "a", AudioFileID: "f1", StartBeat: 0, EndBeat: 1}))
	require.NoError(t, s.PutClip(Clip{ID: "b", AudioFileID: "f1", StartBeat: 2, EndBeat: 3}))
	require.NoError(t, s.PutClip(Clip{ID: "c", AudioFileID: "f2", StartBeat: 2, EndBeat: 3}))

	assert.Equal(t, []ClipID{"a", "b"}, s.ClipsForAudioFile("f1"))

	var kinds []EventKind
	s.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })
	s.DeleteAudioFile("f1", s.ClipsForAudioFile("f1"))

	assert.Equal(t, []EventKind{EventClipDeleted, EventClipDeleted, EventBufferDeleted, EventAudioFileDeleted}, kinds)
	_, ok := s.Buffer("f1")
	assert.False(t, ok)
	_, ok = s.AudioFile("f1")
	assert.False(t, ok)
	assert.Len(t, s.Clips(), 1)
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.PutClip(Clip{ID: "old", StartBeat: 0, EndBeat: 1}))
	require.NoError(t, s.PutBuffer("gone", &audio.Buffer{Samples: []float32{0}, SampleRate: 1, Channels: 1}))
	require.NoError(t, s.PutBuffer("kept", &audio.Buffer{Samples: []float32{0}, SampleRate: 1, Channels: 1}))

	err := s.Reset(
		[]Track{{ID: "t1", Name: "Drums"}},
		[]AudioFile{{ID: "kept"}},
		[]Clip{{ID: "new", TrackID: "t1", AudioFileID: "kept", StartBeat: 0, EndBeat: 2}},
	)
	require.NoError(t, err)

	_, ok := s.Clip("old")
	assert.False(t, ok)
	_, ok = s.Buffer("gone")
	assert.False(t, ok)
	_, ok = s.Buffer("kept")
	assert.True(t, ok)
	assert.Len(t, s.Tracks(), 1)
	assert.Len(t, s.AudioFiles(), 1)

	err = s.Reset(nil, nil, []Clip{{ID: "bad", StartBeat: 1, EndBeat: 0}})
	assert.ErrorIs(t, err, ErrInvalidClip)
	assert.Len(t, s.Clips(), 1)
}

func TestIndexFirstAtOrAfter(t *testing.T) {
	snap := Snapshot{
		Version: 7,
		Clips: []Clip{
			{ID: "c", StartBeat: 8, EndBeat: 9},
			{ID: "a", StartBeat: 0, EndBeat: 4},
			{ID: "b2", StartBeat: 4, EndBeat: 6},
			{ID: "b1", StartBeat: 4, EndBeat: 5},
		},
	}
	idx := NewIndex(snap)

	require.Equal(t, 4, idx.Len())
	assert.Equal(t, uint64(7), idx.Version())
	assert.Equal(t, ClipID("b1"), idx.At(1).ID, "ties ordered by id")

	tests := []struct {
		beat     float64
		expected int
	}{
		{-1, 0},
		{0, 0},
		{0.5, 1},
		{4, 1},
		{4.5, 3},
		{8, 3},
		{9, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, idx.FirstAtOrAfter(tt.beat), "beat %v", tt.beat)
	}
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "clip:update", EventClipUpdated.String())
	assert.Equal(t, "event(99)", EventKind(99).String())
}
