// ABOUTME: Tests for the timeline feed subscriber
// ABOUTME: Drives a feed against an httptest timeline server serving a real WAV file
package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Sendspin/multitrack-go/internal/audiocache"
	"github.com/Sendspin/multitrack-go/pkg/audio"
	"github.com/Sendspin/multitrack-go/pkg/audio/encode"
	"github.com/Sendspin/multitrack-go/pkg/protocol"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

type fakeTracks struct {
	mu    sync.Mutex
	gains map[timeline.TrackID]float64
	sets  int
}

func (f *fakeTracks) RegisterTrack(id timeline.TrackID, gain float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gains[id] = gain
}

func (f *fakeTracks) UnregisterTrack(id timeline.TrackID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.gains, id)
}

func (f *fakeTracks) SetTrackGain(id timeline.TrackID, gain float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gains[id] = gain
	f.sets++
}

func (f *fakeTracks) Tracks() []timeline.TrackID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]timeline.TrackID, 0, len(f.gains))
	for id := range f.gains {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeTracks) gain(id timeline.TrackID) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gains[id]
	return g, ok
}

type fakeTimebase struct {
	mu    sync.Mutex
	tempo timeline.Tempo
	beats float64
}

func (f *fakeTimebase) SetTimebase(tempo timeline.Tempo, totalBeats float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tempo = tempo
	f.beats = totalBeats
}

func (f *fakeTimebase) get() (timeline.Tempo, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tempo, f.beats
}

func writeWAV(t *testing.T, path string) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	enc, err := encode.NewWAV(file, audio.Format{Codec: "wav", SampleRate: 16000, Channels: 1, BitDepth: 16})
	require.NoError(t, err)
	require.NoError(t, enc.Encode(make([]float32, 16000)))
	require.NoError(t, enc.Close())
}

// timelineServer sends a snapshot, waits for next, then sends edits
func timelineServer(t *testing.T, audioDir string, next <-chan struct{}) *httptest.Server {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(audioDir))))
	mux.HandleFunc("/timeline", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello protocol.Envelope
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		send := func(typ string, payload any) {
			conn.WriteJSON(protocol.Message{Type: typ, Payload: payload})
		}

		send(protocol.TypeServerHello, protocol.ServerHello{ServerID: "s", Name: "Studio", Version: protocol.Version})
		send(protocol.TypeServerReady, protocol.ServerReady{
			Project:    "demo",
			BPM:        90,
			TotalBeats: 32,
			Tracks:     []timeline.Track{{ID: "drums", Name: "Drums", GainDB: -6}},
			AudioFiles: []timeline.AudioFile{{ID: "kick", Path: "/audio/kick.wav", Name: "Kick"}},
			Clips:      []timeline.Clip{{ID: "c1", TrackID: "drums", AudioFileID: "kick", EndBeat: 4}},
		})

		<-next
		send(protocol.TypeTrackUpdate, timeline.Track{ID: "drums", Name: "Drums", GainDB: -20})
		send(protocol.TypeTrackUpdate, timeline.Track{ID: "bass", Name: "Bass"})
		send(protocol.TypeClipCreate, timeline.Clip{ID: "c2", TrackID: "drums", AudioFileID: "kick", StartBeat: 4, EndBeat: 8})
		send(protocol.TypeClipDelete, protocol.ClipDelete{ID: "c1"})
		send(protocol.TypeAudioFileCreate, timeline.AudioFile{ID: "snare", Path: "/audio/missing.wav"})
		send(protocol.TypeAudioFileDelete, protocol.AudioFileDelete{AudioFile: timeline.AudioFile{ID: "kick"}})
		send(protocol.TypeServerError, protocol.ServerError{Status: protocol.StatusConflict, Message: "stale"})

		// hold the connection until the player leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(mux)
}

func TestFeedAppliesSnapshotAndEdits(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "kick.wav"))

	next := make(chan struct{})
	srv := timelineServer(t, dir, next)
	defer srv.Close()

	cache, err := audiocache.New(t.TempDir())
	require.NoError(t, err)

	store := timeline.NewStore()
	tracks := &fakeTracks{gains: map[timeline.TrackID]float64{"stale": 1}}
	timebase := &fakeTimebase{}
	errs := make(chan protocol.ServerError, 1)

	f, err := New(Config{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http") + "/timeline",
		SampleRate: 8000,
		Store:      store,
		Tracks:     tracks,
		Cache:      cache,
		Timebase:   timebase,
		OnError:    func(e protocol.ServerError) { errs <- e },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case <-f.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never applied")
	}

	assert.Len(t, store.Clips(), 1)
	tempo, beats := timebase.get()
	assert.Equal(t, 90.0, tempo.BPM)
	assert.Equal(t, 32.0, beats)

	g, ok := tracks.gain("drums")
	require.True(t, ok)
	assert.InDelta(t, 0.501, g, 1e-3)
	_, ok = tracks.gain("stale")
	assert.False(t, ok, "tracks missing from the snapshot are unregistered")

	require.Eventually(t, func() bool {
		_, ok := store.Buffer("kick")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	buf, _ := store.Buffer("kick")
	assert.Equal(t, 8000, buf.SampleRate)
	assert.InDelta(t, 1.0, buf.Duration(), 1e-3)

	close(next)

	select {
	case e := <-errs:
		assert.Equal(t, protocol.StatusConflict, e.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("server error not delivered")
	}

	assert.Empty(t, store.Clips(), "c1 deleted, c2 removed with its audio file")
	_, ok = store.AudioFile("kick")
	assert.False(t, ok)
	_, ok = store.Buffer("kick")
	assert.False(t, ok)

	g, _ = tracks.gain("drums")
	assert.InDelta(t, 0.1, g, 1e-9)
	bass, ok := tracks.gain("bass")
	assert.True(t, ok, "new tracks are registered")
	assert.Equal(t, 1.0, bass)
	tracks.mu.Lock()
	assert.Equal(t, 1, tracks.sets)
	tracks.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunReportsServerHangup(t *testing.T) {
	defer goleak.VerifyNone(t)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var hello protocol.Envelope
		conn.ReadJSON(&hello)
		conn.WriteJSON(protocol.Message{Type: protocol.TypeServerHello, Payload: protocol.ServerHello{Version: protocol.Version}})
	}))
	defer srv.Close()

	cache, err := audiocache.New(t.TempDir())
	require.NoError(t, err)
	f, err := New(Config{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		SampleRate: 8000,
		Store:      timeline.NewStore(),
		Tracks:     &fakeTracks{gains: map[timeline.TrackID]float64{}},
		Cache:      cache,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.Run(context.Background()), ErrClosed)
}

func TestNewValidates(t *testing.T) {
	cache, err := audiocache.New(t.TempDir())
	require.NoError(t, err)
	valid := Config{URL: "ws://host:8930/timeline", SampleRate: 48000, Store: timeline.NewStore(), Tracks: &fakeTracks{}, Cache: cache}

	f, err := New(valid)
	require.NoError(t, err)
	assert.NotEmpty(t, f.config.ClientID)
	assert.Equal(t, "http://host:8930/", f.base.String())

	u, err := f.audioURL(timeline.AudioFile{ID: "a", Path: "/audio/a.flac"})
	require.NoError(t, err)
	assert.Equal(t, "http://host:8930/audio/a.flac", u)

	_, err = f.audioURL(timeline.AudioFile{ID: "a"})
	assert.Error(t, err)

	bad := valid
	bad.URL = "http://host/timeline"
	_, err = New(bad)
	assert.Error(t, err)

	bad = valid
	bad.SampleRate = 0
	_, err = New(bad)
	assert.Error(t, err)

	bad = valid
	bad.Store = nil
	_, err = New(bad)
	assert.Error(t, err)
}
