// ABOUTME: Per-user undo history for clip edits
// ABOUTME: Typed actions with conflict detection against concurrent edits
package timeline

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// MaxHistory bounds the shared undo stack
const MaxHistory = 100

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrClipGone      = errors.New("clip no longer exists")
	ErrClipExists    = errors.New("clip already exists")
	ErrConflict      = errors.New("clip has been modified by someone else")
)

// ActionKind tags the variants of Action
type ActionKind int

const (
	ActionClipCreate ActionKind = iota + 1
	ActionClipDelete
	ActionClipUpdate
)

func (k ActionKind) String() string {
	switch k {
	case ActionClipCreate:
		return "CLIP_CREATE"
	case ActionClipDelete:
		return "CLIP_DELETE"
	case ActionClipUpdate:
		return "CLIP_UPDATE"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is an undoable edit. Implemented by ClipCreate, ClipDelete and ClipUpdate.
type Action interface {
	Kind() ActionKind
	undo(s *Store) error
}

// ClipCreate records a clip that was created
type ClipCreate struct {
	Clip Clip
}

func (ClipCreate) Kind() ActionKind { return ActionClipCreate }

func (a ClipCreate) undo(s *Store) error {
	if !s.DeleteClip(a.Clip.ID) {
		return fmt.Errorf("%w: %s was already deleted", ErrClipGone, a.Clip.ID)
	}
	return nil
}

// ClipDelete records a clip that was deleted, holding it for restoration
type ClipDelete struct {
	Clip Clip
}

func (ClipDelete) Kind() ActionKind { return ActionClipDelete }

func (a ClipDelete) undo(s *Store) error {
	if _, ok := s.Clip(a.Clip.ID); ok {
		return fmt.Errorf("%w: %s", ErrClipExists, a.Clip.ID)
	}
	return s.PutClip(a.Clip)
}

// ClipUpdate records the clip before and after an edit
type ClipUpdate struct {
	Before Clip
	After  Clip
}

func (ClipUpdate) Kind() ActionKind { return ActionClipUpdate }

func (a ClipUpdate) undo(s *Store) error {
	current, ok := s.Clip(a.After.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClipGone, a.After.ID)
	}

	restored := current
	for _, f := range clipFields {
		if f.equal(a.Before, a.After) {
			continue
		}
		if !f.equal(current, a.After) {
			return fmt.Errorf("%w: %s field %s", ErrConflict, a.After.ID, f.name)
		}
		f.copy(&restored, a.Before)
	}
	return s.PutClip(restored)
}

type clipField struct {
	name  string
	equal func(a, b Clip) bool
	copy  func(dst *Clip, src Clip)
}

func equalOptional(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

var clipFields = []clipField{
	{"track", func(a, b Clip) bool { return a.TrackID == b.TrackID }, func(d *Clip, s Clip) { d.TrackID = s.TrackID }},
	{"audio_file", func(a, b Clip) bool { return a.AudioFileID == b.AudioFileID }, func(d *Clip, s Clip) { d.AudioFileID = s.AudioFileID }},
	{"start_beat", func(a, b Clip) bool { return a.StartBeat == b.StartBeat }, func(d *Clip, s Clip) { d.StartBeat = s.StartBeat }},
	{"end_beat", func(a, b Clip) bool { return a.EndBeat == b.EndBeat }, func(d *Clip, s Clip) { d.EndBeat = s.EndBeat }},
	{"offset", func(a, b Clip) bool { return a.OffsetSeconds == b.OffsetSeconds }, func(d *Clip, s Clip) { d.OffsetSeconds = s.OffsetSeconds }},
	{"gain", func(a, b Clip) bool { return equalOptional(a.Gain, b.Gain) }, func(d *Clip, s Clip) { d.Gain = s.Clone().Gain }},
	{"gain_db", func(a, b Clip) bool { return equalOptional(a.GainDB, b.GainDB) }, func(d *Clip, s Clip) { d.GainDB = s.Clone().GainDB }},
}

type historyEntry struct {
	userID string
	action Action
	at     time.Time
}

// History is a bounded undo stack shared by all users
type History struct {
	mu      sync.Mutex
	entries []historyEntry
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{}
}

// Push records an action performed by userID
func (h *History) Push(userID string, action Action) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, historyEntry{userID: userID, action: action, at: time.Now()})
	if len(h.entries) > MaxHistory {
		h.entries = h.entries[len(h.entries)-MaxHistory:]
	}
}

// Len returns the number of recorded actions
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Undo reverts userID's most recent action against the store. The action is
// discarded only when the undo succeeds.
func (h *History) Undo(userID string, s *Store) (Action, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := -1
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].userID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNothingToUndo
	}

	action := h.entries[idx].action
	if err := action.undo(s); err != nil {
		return nil, fmt.Errorf("undo %s: %w", action.Kind(), err)
	}

	h.entries = append(h.entries[:idx], h.entries[idx+1:]...)
	return action, nil
}
