// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates timeline source, scheduler, audio output, metrics and UI commands
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Sendspin/multitrack-go/internal/audiocache"
	"github.com/Sendspin/multitrack-go/internal/config"
	"github.com/Sendspin/multitrack-go/internal/discovery"
	"github.com/Sendspin/multitrack-go/internal/feed"
	"github.com/Sendspin/multitrack-go/internal/project"
	"github.com/Sendspin/multitrack-go/internal/ui"
	"github.com/Sendspin/multitrack-go/internal/version"
	"github.com/Sendspin/multitrack-go/pkg/audio/output"
	"github.com/Sendspin/multitrack-go/pkg/engine"
	"github.com/Sendspin/multitrack-go/pkg/mixer"
	"github.com/Sendspin/multitrack-go/pkg/protocol"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// ErrNoServer is returned when discovery finds no timeline server in time
var ErrNoServer = errors.New("no timeline server found")

// statusInterval paces UI status updates
const statusInterval = 100 * time.Millisecond

// Config holds player configuration
type Config struct {
	Settings *config.Settings

	// Name identifies this player to servers (default: hostname-multitrack)
	Name string

	// Output overrides the backend named in the settings
	Output output.Output

	// CacheDir holds downloaded server audio (default: user cache dir)
	CacheDir string

	// OnStatus receives periodic UI status
	OnStatus func(ui.StatusMsg)
}

// Player represents the main player application
type Player struct {
	config   Config
	settings *config.Settings

	graph  *mixer.Graph
	store  *timeline.Store
	engine *engine.Engine
	output output.Output

	registry *prometheus.Registry
	project  *project.Project
	feed     *feed.Feed
	server   string
}

// New builds the playback graph and loads the local project, if any. The
// output device is opened by Run.
func New(cfg Config) (*Player, error) {
	if cfg.Settings == nil {
		return nil, errors.New("player requires settings")
	}
	if cfg.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Name = hostname + "-multitrack"
	}
	s := cfg.Settings

	graph, err := mixer.NewGraph(s.Audio.SampleRate, s.Audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create mixer: %w", err)
	}

	p := &Player{
		config:   cfg,
		settings: s,
		graph:    graph,
		store:    timeline.NewStore(),
		output:   cfg.Output,
		registry: prometheus.NewRegistry(),
	}

	if p.output == nil {
		p.output, err = output.New(s.Audio.Backend)
		if err != nil {
			return nil, err
		}
	}
	p.output.SetVolume(s.Audio.Volume)

	engineConfig := s.EngineConfig()
	if s.Metrics.Enabled {
		metrics, err := engine.NewMetrics(p.registry)
		if err != nil {
			return nil, err
		}
		engineConfig.Metrics = metrics
	}

	if s.Project != "" {
		proj, err := project.Load(s.Project)
		if err != nil {
			return nil, err
		}
		p.project = proj
		engineConfig = proj.EngineConfig(engineConfig)
	}

	p.engine = engine.New(graph, p.store, engineConfig)

	if p.project != nil {
		if err := p.loadProject(); err != nil {
			p.engine.Close()
			return nil, err
		}
	}

	return p, nil
}

// loadProject decodes the project's audio and seeds the store and tracks.
// Files that fail to decode are logged; their clips stay silent.
func (p *Player) loadProject() error {
	proj := p.project
	if err := proj.LoadBuffers(context.Background(), p.store, p.graph.SampleRate()); err != nil {
		log.Printf("Some audio files failed to load: %v", err)
	}
	if err := proj.Apply(p.store); err != nil {
		return err
	}
	for _, t := range proj.Tracks {
		p.engine.RegisterTrack(t.ID, t.Gain())
	}
	if err := proj.ApplyLoop(p.engine); err != nil {
		return fmt.Errorf("invalid project loop: %w", err)
	}
	log.Printf("Loaded project %q: %d tracks, %d clips", proj.Name, len(proj.Tracks), len(proj.Clips))
	return nil
}

// Engine returns the playback scheduler
func (p *Player) Engine() *engine.Engine {
	return p.engine
}

// Store returns the local timeline
func (p *Player) Store() *timeline.Store {
	return p.store
}

// Run plays until ctx is done or a component fails
func (p *Player) Run(ctx context.Context) error {
	defer p.engine.Close()

	if p.project == nil {
		if err := p.connectFeed(ctx); err != nil {
			return err
		}
	}

	if err := p.output.Start(p.graph); err != nil {
		return fmt.Errorf("failed to start audio output: %w", err)
	}
	defer p.output.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.engine.Run(ctx)
	})

	if p.feed != nil {
		g.Go(func() error {
			return p.feed.Run(ctx)
		})
	}

	if p.settings.Metrics.Enabled {
		g.Go(func() error {
			return p.serveMetrics(ctx)
		})
	}

	if p.settings.AutoPlay {
		g.Go(func() error {
			p.autoPlay(ctx)
			return nil
		})
	}

	if p.config.OnStatus != nil {
		g.Go(func() error {
			p.statusLoop(ctx)
			return nil
		})
	}

	return g.Wait()
}

// autoPlay starts playback once the timeline is available
func (p *Player) autoPlay(ctx context.Context) {
	if p.feed != nil {
		select {
		case <-p.feed.Ready():
		case <-ctx.Done():
			return
		}
	}
	log.Printf("Starting playback")
	p.engine.Play()
}

// connectFeed resolves the server and prepares the timeline feed
func (p *Player) connectFeed(ctx context.Context) error {
	url := p.settings.Server
	if url == "" {
		server, err := p.discover(ctx)
		if err != nil {
			return err
		}
		url = server.URL()
		p.server = server.Name
	} else {
		p.server = url
	}

	cache, err := audiocache.New(p.config.CacheDir)
	if err != nil {
		return err
	}

	p.feed, err = feed.New(feed.Config{
		URL:  url,
		Name: p.config.Name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		SampleRate: p.graph.SampleRate(),
		Store:      p.store,
		Tracks:     p.engine,
		Cache:      cache,
		Timebase:   p.engine,
		OnError: func(e protocol.ServerError) {
			log.Printf("Server rejected edit: %s: %s", e.Status, e.Message)
		},
	})
	return err
}

// discover browses mDNS for the first timeline server
func (p *Player) discover(ctx context.Context) (*discovery.ServerInfo, error) {
	log.Printf("Starting server discovery...")
	disc := discovery.NewManager(discovery.Config{ServiceName: p.config.Name})
	disc.Browse()
	defer disc.Stop()

	timeout := p.settings.Discovery.Timeout
	select {
	case server := <-disc.Servers():
		log.Printf("Discovered server at %s", server.URL())
		return server, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %s", ErrNoServer, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// serveMetrics exposes the engine counters until ctx is done
func (p *Player) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: p.settings.Metrics.Listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Serving metrics on %s", p.settings.Metrics.Listen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Handle applies a UI command
func (p *Player) Handle(cmd ui.Command) {
	switch cmd.Kind {
	case ui.CmdPlay:
		p.engine.Play()
	case ui.CmdPause:
		p.engine.Pause()
	case ui.CmdSeek:
		p.engine.Seek(cmd.Value, engine.SeekOptions{SetAsRest: !p.engine.Playing()})
	case ui.CmdRewind:
		p.engine.Seek(0, engine.SeekOptions{SetAsRest: true})
	case ui.CmdToggleLoop:
		p.engine.ToggleLoop()
	case ui.CmdVolume:
		p.output.SetVolume(int(cmd.Value))
	case ui.CmdMute:
		p.output.SetMuted(cmd.Value != 0)
	}
}

// HandleCommands applies UI commands until ctx is done
func (p *Player) HandleCommands(ctx context.Context, controls *ui.Controls) {
	for {
		select {
		case cmd := <-controls.Commands:
			p.Handle(cmd)
		case <-ctx.Done():
			return
		}
	}
}

// Status snapshots the player for the UI
func (p *Player) Status() ui.StatusMsg {
	state := p.engine.State()
	stats := p.engine.Stats()
	tempo, beats := p.engine.Timebase()
	msg := ui.StatusMsg{
		BPM:      tempo.BPM,
		Duration: tempo.BeatsToSeconds(beats),
		State:    &state,
		Stats:    &stats,
	}

	if p.project != nil {
		msg.Project = p.project.Name
	}
	if p.feed != nil {
		connected := p.feed.Client().IsConnected()
		msg.Connected = &connected
		msg.ServerName = p.server
		if info := p.feed.Client().Server(); info.Name != "" {
			msg.ServerName = info.Name
		}
	}
	volume := p.output.Volume()
	muted := p.output.Muted()
	msg.Volume = &volume
	msg.Muted = &muted

	ids := p.engine.Tracks()
	msg.Tracks = make([]ui.TrackStatus, 0, len(ids))
	for _, id := range ids {
		levels := p.engine.TrackLevels(id)
		ts := ui.TrackStatus{
			ID:   string(id),
			Gain: p.engine.TrackGain(id),
			Peak: levels.Peak,
			RMS:  levels.RMS,
		}
		if t, ok := p.store.Track(id); ok {
			ts.Name = t.Name
		}
		msg.Tracks = append(msg.Tracks, ts)
	}
	return msg
}

func (p *Player) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.config.OnStatus(p.Status())
		case <-ctx.Done():
			return
		}
	}
}
