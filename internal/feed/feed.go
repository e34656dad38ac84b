// ABOUTME: Timeline feed subscriber for players
// ABOUTME: Applies a server's snapshot and edits to the local store and track gain stages
package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"runtime"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Sendspin/multitrack-go/internal/audiocache"
	"github.com/Sendspin/multitrack-go/pkg/audio"
	"github.com/Sendspin/multitrack-go/pkg/audio/decode"
	"github.com/Sendspin/multitrack-go/pkg/audio/resample"
	"github.com/Sendspin/multitrack-go/pkg/protocol"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// ErrClosed is returned by Run when the server ends the feed
var ErrClosed = errors.New("feed closed by server")

// Tracks receives track gain changes. *engine.Engine satisfies it.
type Tracks interface {
	RegisterTrack(id timeline.TrackID, initialGain float64)
	UnregisterTrack(id timeline.TrackID)
	SetTrackGain(id timeline.TrackID, gain float64)
	Tracks() []timeline.TrackID
}

// Timebase receives the server's tempo and song length. *engine.Engine
// satisfies it.
type Timebase interface {
	SetTimebase(tempo timeline.Tempo, totalBeats float64)
}

// Config holds feed configuration
type Config struct {
	// URL is the server's websocket address
	URL string
	// Name identifies this player to the server
	Name string
	// ClientID defaults to a random UUID
	ClientID   string
	DeviceInfo protocol.DeviceInfo
	// SampleRate is the rate buffers are converted to
	SampleRate int
	Store      *timeline.Store
	Tracks     Tracks
	Cache      *audiocache.Cache
	// Timebase follows the project's tempo when set
	Timebase Timebase
	// OnError receives server:error messages
	OnError func(protocol.ServerError)
}

// Feed keeps a local timeline in step with a server
type Feed struct {
	config Config
	client *protocol.Client
	base   *url.URL

	readyOnce sync.Once
	ready     chan struct{}
}

// New creates a feed
func New(config Config) (*Feed, error) {
	if config.Store == nil || config.Tracks == nil || config.Cache == nil {
		return nil, errors.New("feed requires a store, tracks and cache")
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", config.SampleRate)
	}
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if config.Name == "" {
		config.Name = "multitrack player"
	}

	base, err := httpBase(config.URL)
	if err != nil {
		return nil, err
	}

	return &Feed{
		config: config,
		base:   base,
		client: protocol.NewClient(protocol.Config{
			URL:        config.URL,
			ClientID:   config.ClientID,
			Name:       config.Name,
			DeviceInfo: config.DeviceInfo,
		}),
		ready: make(chan struct{}),
	}, nil
}

// Client returns the underlying connection, for submitting edits
func (f *Feed) Client() *protocol.Client {
	return f.client
}

// Ready is closed once the first snapshot has been applied
func (f *Feed) Ready() <-chan struct{} {
	return f.ready
}

// Run connects and applies messages until ctx is done or the server hangs up
func (f *Feed) Run(ctx context.Context) error {
	if err := f.client.Connect(ctx); err != nil {
		return err
	}

	loads, loadCtx := errgroup.WithContext(ctx)
	loads.SetLimit(runtime.NumCPU())
	defer loads.Wait()

	for {
		select {
		case <-ctx.Done():
			f.client.SendGoodbye("shutdown")
			f.client.Close()
			return nil
		case env, ok := <-f.client.Messages:
			if !ok {
				return ErrClosed
			}
			if err := f.handle(loadCtx, loads, env); err != nil {
				log.Printf("Feed: %v", err)
			}
		}
	}
}

// handle applies one message
func (f *Feed) handle(ctx context.Context, loads *errgroup.Group, env protocol.Envelope) error {
	store := f.config.Store

	switch env.Type {
	case protocol.TypeServerReady:
		var ready protocol.ServerReady
		if err := env.Decode(&ready); err != nil {
			return err
		}
		return f.applySnapshot(ctx, loads, ready)

	case protocol.TypeClipCreate, protocol.TypeClipUpdate:
		var c timeline.Clip
		if err := env.Decode(&c); err != nil {
			return err
		}
		return store.PutClip(c)

	case protocol.TypeClipDelete:
		var del protocol.ClipDelete
		if err := env.Decode(&del); err != nil {
			return err
		}
		store.DeleteClip(del.ID)

	case protocol.TypeTrackUpdate:
		var t timeline.Track
		if err := env.Decode(&t); err != nil {
			return err
		}
		return f.applyTrack(t)

	case protocol.TypeAudioFileCreate:
		var af timeline.AudioFile
		if err := env.Decode(&af); err != nil {
			return err
		}
		if err := store.PutAudioFile(af); err != nil {
			return err
		}
		f.load(ctx, loads, af)

	case protocol.TypeAudioFileDelete:
		var del protocol.AudioFileDelete
		if err := env.Decode(&del); err != nil {
			return err
		}
		clips := del.DeletedClips
		for _, id := range store.ClipsForAudioFile(del.AudioFile.ID) {
			if !slices.Contains(clips, id) {
				clips = append(clips, id)
			}
		}
		store.DeleteAudioFile(del.AudioFile.ID, clips)

	case protocol.TypeServerError:
		var serverErr protocol.ServerError
		if err := env.Decode(&serverErr); err != nil {
			return err
		}
		log.Printf("Server error %s: %s", serverErr.Status, serverErr.Message)
		if f.config.OnError != nil {
			f.config.OnError(serverErr)
		}

	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
	return nil
}

// applySnapshot replaces the local timeline and starts loading audio
func (f *Feed) applySnapshot(ctx context.Context, loads *errgroup.Group, ready protocol.ServerReady) error {
	if err := f.config.Store.Reset(ready.Tracks, ready.AudioFiles, ready.Clips); err != nil {
		return err
	}
	if f.config.Timebase != nil {
		f.config.Timebase.SetTimebase(timeline.Tempo{BPM: ready.BPM}, ready.TotalBeats)
	}

	present := make(map[timeline.TrackID]bool, len(ready.Tracks))
	for _, t := range ready.Tracks {
		present[t.ID] = true
		f.config.Tracks.RegisterTrack(t.ID, t.Gain())
	}
	for _, id := range f.config.Tracks.Tracks() {
		if !present[id] {
			f.config.Tracks.UnregisterTrack(id)
		}
	}

	urls := make([]string, 0, len(ready.AudioFiles))
	for _, af := range ready.AudioFiles {
		if u, err := f.audioURL(af); err == nil {
			urls = append(urls, u)
		}
		if _, ok := f.config.Store.Buffer(af.ID); !ok {
			f.load(ctx, loads, af)
		}
	}
	if err := f.config.Cache.Prune(urls); err != nil {
		log.Printf("Failed to prune audio cache: %v", err)
	}

	log.Printf("Timeline ready: %s, %d tracks, %d clips", ready.Project, len(ready.Tracks), len(ready.Clips))
	f.readyOnce.Do(func() { close(f.ready) })
	return nil
}

// applyTrack stores a track and ramps its stage to the new gain
func (f *Feed) applyTrack(t timeline.Track) error {
	_, known := f.config.Store.Track(t.ID)
	if err := f.config.Store.PutTrack(t); err != nil {
		return err
	}
	if !known {
		f.config.Tracks.RegisterTrack(t.ID, t.Gain())
		return nil
	}
	f.config.Tracks.SetTrackGain(t.ID, audio.DBToLinear(t.GainDB))
	return nil
}

// load fetches, decodes and stores an audio file in the background
func (f *Feed) load(ctx context.Context, loads *errgroup.Group, af timeline.AudioFile) {
	loads.Go(func() error {
		buf, err := f.fetch(ctx, af)
		if err != nil {
			log.Printf("Audio file %s failed to load: %v", af.ID, err)
			return nil
		}
		// the file may have been deleted while loading
		if _, ok := f.config.Store.AudioFile(af.ID); !ok {
			return nil
		}
		if err := f.config.Store.PutBuffer(af.ID, buf); err != nil {
			log.Printf("Audio file %s: %v", af.ID, err)
		}
		return nil
	})
}

func (f *Feed) fetch(ctx context.Context, af timeline.AudioFile) (*audio.Buffer, error) {
	u, err := f.audioURL(af)
	if err != nil {
		return nil, err
	}
	path, err := f.config.Cache.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	buf, err := decode.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return resample.Buffer(buf, f.config.SampleRate)
}

// audioURL resolves an audio file's path against the server address
func (f *Feed) audioURL(af timeline.AudioFile) (string, error) {
	if af.Path == "" {
		return "", fmt.Errorf("audio file %s has no path", af.ID)
	}
	ref, err := url.Parse(af.Path)
	if err != nil {
		return "", fmt.Errorf("audio file %s: %w", af.ID, err)
	}
	return f.base.ResolveReference(ref).String(), nil
}

// httpBase maps a websocket URL onto the HTTP origin serving audio
func httpBase(wsURL string) (*url.URL, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("invalid feed URL scheme %q", u.Scheme)
	}
	u.Path, u.RawQuery = "/", ""
	return u, nil
}
