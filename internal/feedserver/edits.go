// ABOUTME: Edit operations applied on behalf of connected clients
// ABOUTME: Validates edits, records undo history and broadcasts committed store events
package feedserver

import (
	"errors"
	"fmt"

	"github.com/Sendspin/multitrack-go/pkg/protocol"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

var (
	errNotFound = errors.New("not found")
	errInvalid  = errors.New("invalid edit")
)

func errorStatus(err error) string {
	switch {
	case errors.Is(err, errNotFound), errors.Is(err, timeline.ErrNothingToUndo):
		return protocol.StatusNotFound
	case errors.Is(err, timeline.ErrConflict), errors.Is(err, timeline.ErrClipExists), errors.Is(err, timeline.ErrClipGone):
		return protocol.StatusConflict
	default:
		return protocol.StatusInvalid
	}
}

// checkRefs verifies a clip's track and audio file exist
func (s *Server) checkRefs(c timeline.Clip) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, ok := s.store.Track(c.TrackID); !ok {
		return fmt.Errorf("%w: unknown track %s", errInvalid, c.TrackID)
	}
	if _, ok := s.store.AudioFile(c.AudioFileID); !ok {
		return fmt.Errorf("%w: unknown audio file %s", errInvalid, c.AudioFileID)
	}
	return nil
}

func (s *Server) createClip(userID string, c timeline.Clip) error {
	s.edits.Lock()
	defer s.edits.Unlock()

	if err := s.checkRefs(c); err != nil {
		return err
	}
	if _, ok := s.store.Clip(c.ID); ok {
		return fmt.Errorf("%w: %s", timeline.ErrClipExists, c.ID)
	}
	if err := s.store.PutClip(c); err != nil {
		return err
	}
	s.history.Push(userID, timeline.ClipCreate{Clip: c.Clone()})
	return nil
}

func (s *Server) updateClip(userID string, c timeline.Clip) error {
	s.edits.Lock()
	defer s.edits.Unlock()

	before, ok := s.store.Clip(c.ID)
	if !ok {
		return fmt.Errorf("%w: clip %s", errNotFound, c.ID)
	}
	if err := s.checkRefs(c); err != nil {
		return err
	}
	if err := s.store.PutClip(c); err != nil {
		return err
	}
	s.history.Push(userID, timeline.ClipUpdate{Before: before, After: c.Clone()})
	return nil
}

func (s *Server) deleteClip(userID string, id timeline.ClipID) error {
	s.edits.Lock()
	defer s.edits.Unlock()

	before, ok := s.store.Clip(id)
	if !ok || !s.store.DeleteClip(id) {
		return fmt.Errorf("%w: clip %s", errNotFound, id)
	}
	s.history.Push(userID, timeline.ClipDelete{Clip: before})
	return nil
}

func (s *Server) updateTrack(t timeline.Track) error {
	s.edits.Lock()
	defer s.edits.Unlock()

	if _, ok := s.store.Track(t.ID); !ok {
		return fmt.Errorf("%w: track %s", errNotFound, t.ID)
	}
	return s.store.PutTrack(t)
}

func (s *Server) undo(userID string) error {
	s.edits.Lock()
	defer s.edits.Unlock()

	_, err := s.history.Undo(userID, s.store)
	return err
}

// onEvent broadcasts a committed mutation. It runs inside the mutating
// call, so under s.edits for client edits.
func (s *Server) onEvent(ev timeline.Event) {
	switch ev.Kind {
	case timeline.EventClipCreated, timeline.EventClipUpdated:
		c, ok := s.store.Clip(ev.ClipID)
		if !ok {
			return
		}
		msgType := protocol.TypeClipCreate
		if ev.Kind == timeline.EventClipUpdated {
			msgType = protocol.TypeClipUpdate
		}
		s.broadcast(msgType, c)

	case timeline.EventClipDeleted:
		s.broadcast(protocol.TypeClipDelete, protocol.ClipDelete{ID: ev.ClipID})

	case timeline.EventTrackUpdated:
		if t, ok := s.store.Track(ev.TrackID); ok {
			s.broadcast(protocol.TypeTrackUpdate, t)
		}

	case timeline.EventAudioFileCreated:
		if f, ok := s.store.AudioFile(ev.AudioFileID); ok {
			s.broadcast(protocol.TypeAudioFileCreate, served(f))
		}

	case timeline.EventAudioFileDeleted:
		s.broadcast(protocol.TypeAudioFileDelete, protocol.AudioFileDelete{
			AudioFile: timeline.AudioFile{ID: ev.AudioFileID},
		})

	case timeline.EventReset:
		s.broadcast(protocol.TypeServerReady, s.snapshot())
	}
}

// AddAudioFile publishes a new audio file, path relative to the project
func (s *Server) AddAudioFile(f timeline.AudioFile) error {
	s.edits.Lock()
	defer s.edits.Unlock()
	return s.store.PutAudioFile(f)
}

// DeleteAudioFile removes an audio file and every clip using it
func (s *Server) DeleteAudioFile(id timeline.AudioFileID) error {
	s.edits.Lock()
	defer s.edits.Unlock()

	if _, ok := s.store.AudioFile(id); !ok {
		return fmt.Errorf("%w: audio file %s", errNotFound, id)
	}
	s.store.DeleteAudioFile(id, s.store.ClipsForAudioFile(id))
	return nil
}
