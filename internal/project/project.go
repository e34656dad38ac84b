// ABOUTME: YAML project files describing a complete arrangement
// ABOUTME: Loads tracks, audio files and clips into the timeline store and decodes buffers
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Sendspin/multitrack-go/pkg/audio/decode"
	"github.com/Sendspin/multitrack-go/pkg/audio/resample"
	"github.com/Sendspin/multitrack-go/pkg/engine"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// Loop is a loop range in beats
type Loop struct {
	StartBeat float64 `yaml:"start_beat"`
	EndBeat   float64 `yaml:"end_beat"`
}

// Project is an arrangement stored on disk
type Project struct {
	Name       string               `yaml:"name"`
	BPM        float64              `yaml:"bpm,omitempty"`
	TotalBeats float64              `yaml:"total_beats,omitempty"`
	Loop       *Loop                `yaml:"loop,omitempty"`
	Tracks     []timeline.Track     `yaml:"tracks"`
	AudioFiles []timeline.AudioFile `yaml:"audio_files"`
	Clips      []timeline.Clip      `yaml:"clips"`

	// dir resolves relative audio file paths
	dir string
}

// Load reads and validates a project file
func Load(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}
	defer f.Close()

	return Parse(f, filepath.Dir(path))
}

// Parse reads a project, resolving audio paths against dir
func Parse(r io.Reader, dir string) (*Project, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	p := &Project{dir: dir}
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that IDs are unique and clips reference known tracks and files
func (p *Project) Validate() error {
	tracks := make(map[timeline.TrackID]bool, len(p.Tracks))
	for _, t := range p.Tracks {
		if t.ID == "" {
			return errors.New("track with empty id")
		}
		if tracks[t.ID] {
			return fmt.Errorf("duplicate track %s", t.ID)
		}
		tracks[t.ID] = true
	}

	files := make(map[timeline.AudioFileID]bool, len(p.AudioFiles))
	for _, f := range p.AudioFiles {
		if f.ID == "" {
			return errors.New("audio file with empty id")
		}
		if files[f.ID] {
			return fmt.Errorf("duplicate audio file %s", f.ID)
		}
		files[f.ID] = true
	}

	clips := make(map[timeline.ClipID]bool, len(p.Clips))
	for _, c := range p.Clips {
		if err := c.Validate(); err != nil {
			return err
		}
		if clips[c.ID] {
			return fmt.Errorf("duplicate clip %s", c.ID)
		}
		clips[c.ID] = true
		if !tracks[c.TrackID] {
			return fmt.Errorf("clip %s references unknown track %s", c.ID, c.TrackID)
		}
		if !files[c.AudioFileID] {
			return fmt.Errorf("clip %s references unknown audio file %s", c.ID, c.AudioFileID)
		}
	}

	if p.Loop != nil && !(p.Loop.EndBeat > p.Loop.StartBeat) {
		return fmt.Errorf("empty loop [%v, %v)", p.Loop.StartBeat, p.Loop.EndBeat)
	}
	return nil
}

// Apply replaces the store's contents with the project's records
func (p *Project) Apply(store *timeline.Store) error {
	return store.Reset(p.Tracks, p.AudioFiles, p.Clips)
}

// Path resolves an audio file's path
func (p *Project) Path(f timeline.AudioFile) string {
	if f.Path == "" || filepath.IsAbs(f.Path) {
		return f.Path
	}
	return filepath.Join(p.dir, f.Path)
}

// LoadBuffers decodes every audio file, converts it to sampleRate and adds
// it to the store. Files that fail are skipped and reported together;
// clips on them stay silent.
func (p *Project) LoadBuffers(ctx context.Context, store *timeline.Store, sampleRate int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, f := range p.AudioFiles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			buf, err := decode.DecodeFile(p.Path(f))
			if err != nil {
				fail(fmt.Errorf("audio file %s: %w", f.ID, err))
				return nil
			}
			buf, err = resample.Buffer(buf, sampleRate)
			if err != nil {
				fail(fmt.Errorf("audio file %s: %w", f.ID, err))
				return nil
			}
			if err := store.PutBuffer(f.ID, buf); err != nil {
				fail(err)
				return nil
			}

			log.Printf("Loaded %s: %.2fs", f.ID, buf.Duration())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// EngineConfig applies the project's tempo and length to base
func (p *Project) EngineConfig(base engine.Config) engine.Config {
	if p.BPM > 0 {
		base.Tempo = timeline.Tempo{BPM: p.BPM}
	}
	if p.TotalBeats > 0 {
		base.TotalBeats = p.TotalBeats
	}
	return base
}

// ApplyLoop sets the project's loop range on eng, if it has one
func (p *Project) ApplyLoop(eng *engine.Engine) error {
	if p.Loop == nil {
		return nil
	}
	return eng.SetLoopInBeats(p.Loop.StartBeat, p.Loop.EndBeat, engine.LoopOptions{})
}
