// ABOUTME: Versioned, mutation-notifying timeline store
// ABOUTME: Holds clips, tracks, audio files and decoded buffers for concurrent readers
package timeline

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Sendspin/multitrack-go/pkg/audio"
)

// EventKind identifies a store mutation
type EventKind int

const (
	EventClipCreated EventKind = iota + 1
	EventClipUpdated
	EventClipDeleted
	EventTrackUpdated
	EventTrackDeleted
	EventAudioFileCreated
	EventAudioFileDeleted
	EventBufferAdded
	EventBufferDeleted
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventClipCreated:
		return "clip:create"
	case EventClipUpdated:
		return "clip:update"
	case EventClipDeleted:
		return "clip:delete"
	case EventTrackUpdated:
		return "track:update"
	case EventTrackDeleted:
		return "track:delete"
	case EventAudioFileCreated:
		return "audiofile:create"
	case EventAudioFileDeleted:
		return "audiofile:delete"
	case EventBufferAdded:
		return "buffer:add"
	case EventBufferDeleted:
		return "buffer:delete"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event describes one committed mutation
type Event struct {
	Kind        EventKind
	Version     uint64
	ClipID      ClipID
	TrackID     TrackID
	AudioFileID AudioFileID
}

// Snapshot is a consistent copy of the clip collection
type Snapshot struct {
	Clips   []Clip
	Version uint64
}

// Store is the shared timeline. Mutations bump the version and notify
// subscribers synchronously after the change is committed.
type Store struct {
	mu      sync.RWMutex
	clips   map[ClipID]Clip
	tracks  map[TrackID]Track
	files   map[AudioFileID]AudioFile
	buffers map[AudioFileID]*audio.Buffer
	version uint64

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		clips:   make(map[ClipID]Clip),
		tracks:  make(map[TrackID]Track),
		files:   make(map[AudioFileID]AudioFile),
		buffers: make(map[AudioFileID]*audio.Buffer),
		subs:    make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every future event. Callbacks must not block.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(events []Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.Lock()
	subs := slices.Collect(maps.Values(s.subs))
	s.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// Version returns the current version
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// PutClip creates or replaces a clip
func (s *Store) PutClip(c Clip) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	_, exists := s.clips[c.ID]
	s.clips[c.ID] = c.Clone()
	s.version++
	ev := Event{Kind: EventClipCreated, Version: s.version, ClipID: c.ID, TrackID: c.TrackID}
	if exists {
		ev.Kind = EventClipUpdated
	}
	s.mu.Unlock()

	s.notify([]Event{ev})
	return nil
}

// DeleteClip removes a clip, reporting whether it existed
func (s *Store) DeleteClip(id ClipID) bool {
	s.mu.Lock()
	c, ok := s.clips[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.clips, id)
	s.version++
	ev := Event{Kind: EventClipDeleted, Version: s.version, ClipID: id, TrackID: c.TrackID}
	s.mu.Unlock()

	s.notify([]Event{ev})
	return true
}

// Clip returns a copy of the clip with id
func (s *Store) Clip(id ClipID) (Clip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clips[id]
	if !ok {
		return Clip{}, false
	}
	return c.Clone(), true
}

// Clips returns all clips ordered by ID
func (s *Store) Clips() []Clip {
	return s.Snapshot().Clips
}

// Snapshot returns every clip together with the version they were read at
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clips := make([]Clip, 0, len(s.clips))
	for _, c := range s.clips {
		clips = append(clips, c.Clone())
	}
	slices.SortFunc(clips, func(a, b Clip) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return Snapshot{Clips: clips, Version: s.version}
}

// ClipsForAudioFile returns the IDs of clips referencing the audio file
func (s *Store) ClipsForAudioFile(id AudioFileID) []ClipID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []ClipID
	for _, c := range s.clips {
		if c.AudioFileID == id {
			ids = append(ids, c.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// PutTrack creates or replaces a track
func (s *Store) PutTrack(t Track) error {
	if t.ID == "" {
		return errors.New("track missing id")
	}

	s.mu.Lock()
	s.tracks[t.ID] = t
	s.version++
	ev := Event{Kind: EventTrackUpdated, Version: s.version, TrackID: t.ID}
	s.mu.Unlock()

	s.notify([]Event{ev})
	return nil
}

// DeleteTrack removes a track record; its clips are left in place
func (s *Store) DeleteTrack(id TrackID) bool {
	s.mu.Lock()
	if _, ok := s.tracks[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.tracks, id)
	s.version++
	ev := Event{Kind: EventTrackDeleted, Version: s.version, TrackID: id}
	s.mu.Unlock()

	s.notify([]Event{ev})
	return true
}

// Track returns the track with id
func (s *Store) Track(id TrackID) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	return t, ok
}

// Tracks returns all tracks ordered by ID
func (s *Store) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tracks := slices.Collect(maps.Values(s.tracks))
	slices.SortFunc(tracks, func(a, b Track) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return tracks
}

// PutAudioFile records an audio file
func (s *Store) PutAudioFile(f AudioFile) error {
	if f.ID == "" {
		return errors.New("audio file missing id")
	}

	s.mu.Lock()
	s.files[f.ID] = f
	s.version++
	ev := Event{Kind: EventAudioFileCreated, Version: s.version, AudioFileID: f.ID}
	s.mu.Unlock()

	s.notify([]Event{ev})
	return nil
}

// AudioFile returns the audio file with id
func (s *Store) AudioFile(id AudioFileID) (AudioFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	return f, ok
}

// AudioFiles returns all audio files ordered by ID
func (s *Store) AudioFiles() []AudioFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := slices.Collect(maps.Values(s.files))
	slices.SortFunc(files, func(a, b AudioFile) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return files
}

// PutBuffer attaches decoded audio to an audio file ID
func (s *Store) PutBuffer(id AudioFileID, buf *audio.Buffer) error {
	if buf == nil {
		return fmt.Errorf("nil buffer for %s", id)
	}

	s.mu.Lock()
	s.buffers[id] = buf
	s.version++
	ev := Event{Kind: EventBufferAdded, Version: s.version, AudioFileID: id}
	s.mu.Unlock()

	s.notify([]Event{ev})
	return nil
}

// Buffer returns the decoded audio for an audio file, if present
func (s *Store) Buffer(id AudioFileID) (*audio.Buffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[id]
	return buf, ok
}

// DeleteAudioFile removes the file, its buffer and the listed clips in one step
func (s *Store) DeleteAudioFile(id AudioFileID, clipIDs []ClipID) {
	s.mu.Lock()
	var events []Event
	for _, cid := range clipIDs {
		c, ok := s.clips[cid]
		if !ok {
			continue
		}
		delete(s.clips, cid)
		s.version++
		events = append(events, Event{Kind: EventClipDeleted, Version: s.version, ClipID: cid, TrackID: c.TrackID})
	}
	if _, ok := s.buffers[id]; ok {
		delete(s.buffers, id)
		s.version++
		events = append(events, Event{Kind: EventBufferDeleted, Version: s.version, AudioFileID: id})
	}
	if _, ok := s.files[id]; ok {
		delete(s.files, id)
		s.version++
		events = append(events, Event{Kind: EventAudioFileDeleted, Version: s.version, AudioFileID: id})
	}
	s.mu.Unlock()

	s.notify(events)
}

// Reset replaces tracks, audio files and clips with a fresh snapshot.
// Decoded buffers for files still present are kept.
func (s *Store) Reset(tracks []Track, files []AudioFile, clips []Clip) error {
	for _, c := range clips {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.tracks = make(map[TrackID]Track, len(tracks))
	for _, t := range tracks {
		s.tracks[t.ID] = t
	}
	s.files = make(map[AudioFileID]AudioFile, len(files))
	for _, f := range files {
		s.files[f.ID] = f
	}
	for id := range s.buffers {
		if _, ok := s.files[id]; !ok {
			delete(s.buffers, id)
		}
	}
	s.clips = make(map[ClipID]Clip, len(clips))
	for _, c := range clips {
		s.clips[c.ID] = c.Clone()
	}
	s.version++
	ev := Event{Kind: EventReset, Version: s.version}
	s.mu.Unlock()

	s.notify([]Event{ev})
	return nil
}
