// ABOUTME: Application settings loaded from file, environment and flags
// ABOUTME: viper-backed with defaults, validated before use
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sendspin/multitrack-go/pkg/engine"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// EnvPrefix prefixes environment overrides, e.g. MULTITRACK_AUDIO_BACKEND
const EnvPrefix = "MULTITRACK"

// Settings is the full application configuration
type Settings struct {
	Debug   bool   `mapstructure:"debug"`
	LogFile string `mapstructure:"logfile"`
	NoTUI   bool   `mapstructure:"notui"`

	// AutoPlay starts playback once the timeline is loaded
	AutoPlay bool `mapstructure:"autoplay"`

	// Project is a YAML project file played locally
	Project string `mapstructure:"project"`

	// Server is a timeline server websocket URL; when empty and no project
	// is given, servers are discovered over mDNS
	Server string `mapstructure:"server"`

	Audio     AudioSettings     `mapstructure:"audio"`
	Engine    EngineSettings    `mapstructure:"engine"`
	Metrics   MetricsSettings   `mapstructure:"metrics"`
	Discovery DiscoverySettings `mapstructure:"discovery"`
}

// AudioSettings configures the output device
type AudioSettings struct {
	Backend    string `mapstructure:"backend"`
	SampleRate int    `mapstructure:"samplerate"`
	Channels   int    `mapstructure:"channels"`
	BitDepth   int    `mapstructure:"bitdepth"`
	Volume     int    `mapstructure:"volume"`
}

// EngineSettings configures the playback scheduler
type EngineSettings struct {
	BPM               float64       `mapstructure:"bpm"`
	TotalBeats        float64       `mapstructure:"totalbeats"`
	TickInterval      time.Duration `mapstructure:"tickinterval"`
	LookAheadFactor   float64       `mapstructure:"lookaheadfactor"`
	LeadIn            time.Duration `mapstructure:"leadin"`
	ReconcileThrottle time.Duration `mapstructure:"reconcilethrottle"`
	ElapsedPolicy     string        `mapstructure:"elapsedpolicy"`
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// DiscoverySettings configures mDNS browsing
type DiscoverySettings struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults sets default values for every setting
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("logfile", "multitrack.log")
	v.SetDefault("notui", false)
	v.SetDefault("autoplay", false)
	v.SetDefault("project", "")
	v.SetDefault("server", "")

	v.SetDefault("audio.backend", "oto")
	v.SetDefault("audio.samplerate", 48000)
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.bitdepth", 16)
	v.SetDefault("audio.volume", 100)

	v.SetDefault("engine.bpm", timeline.DefaultBPM)
	v.SetDefault("engine.totalbeats", 256)
	v.SetDefault("engine.tickinterval", 25*time.Millisecond)
	v.SetDefault("engine.lookaheadfactor", 3.0)
	v.SetDefault("engine.leadin", 50*time.Millisecond)
	v.SetDefault("engine.reconcilethrottle", 16*time.Millisecond)
	v.SetDefault("engine.elapsedpolicy", "drop")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")

	v.SetDefault("discovery.timeout", 10*time.Second)
}

// New returns a viper instance with defaults, search paths and environment
// overrides configured
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("multitrack")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "multitrack"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (path, or the first multitrack.yaml on the
// search path) and returns validated settings. A missing default config
// file is not an error.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return settings, nil
}

// Validate checks ranges and enumerations
func (s *Settings) Validate() error {
	switch strings.ToLower(s.Audio.Backend) {
	case "oto", "malgo":
	default:
		return fmt.Errorf("audio.backend must be oto or malgo, got %q", s.Audio.Backend)
	}
	if s.Audio.SampleRate < 8000 || s.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.samplerate out of range: %d", s.Audio.SampleRate)
	}
	if s.Audio.Channels < 1 || s.Audio.Channels > 8 {
		return fmt.Errorf("audio.channels out of range: %d", s.Audio.Channels)
	}
	if s.Audio.Volume < 0 || s.Audio.Volume > 100 {
		return fmt.Errorf("audio.volume must be 0-100, got %d", s.Audio.Volume)
	}
	if s.Engine.BPM <= 0 {
		return fmt.Errorf("engine.bpm must be positive, got %v", s.Engine.BPM)
	}
	if _, err := engine.ParseElapsedPolicy(s.Engine.ElapsedPolicy); err != nil {
		return fmt.Errorf("engine.elapsedpolicy: %w", err)
	}
	if s.Project != "" && s.Server != "" {
		return errors.New("project and server are mutually exclusive")
	}
	return nil
}

// EngineConfig converts the engine settings; zero values fall back to the
// engine defaults
func (s *Settings) EngineConfig() engine.Config {
	policy, _ := engine.ParseElapsedPolicy(s.Engine.ElapsedPolicy)
	return engine.Config{
		Tempo:             timeline.Tempo{BPM: s.Engine.BPM},
		TotalBeats:        s.Engine.TotalBeats,
		TickInterval:      s.Engine.TickInterval,
		LookAheadFactor:   s.Engine.LookAheadFactor,
		LeadIn:            s.Engine.LeadIn,
		ReconcileThrottle: s.Engine.ReconcileThrottle,
		ElapsedPolicy:     policy,
		Debug:             s.Debug,
	}
}
