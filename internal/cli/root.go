// ABOUTME: Command line interface for the multitrack player
// ABOUTME: cobra root command with flags bound to viper settings
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Sendspin/multitrack-go/internal/app"
	"github.com/Sendspin/multitrack-go/internal/config"
	"github.com/Sendspin/multitrack-go/internal/ui"
	"github.com/Sendspin/multitrack-go/internal/version"
)

// RootCommand creates and returns the root command
func RootCommand(v *viper.Viper) *cobra.Command {
	var configPath, name string

	rootCmd := &cobra.Command{
		Use:   "multitrack",
		Short: "Multitrack timeline player",
		Long: "Plays a multitrack arrangement from a local project file or a timeline server,\n" +
			"following live edits from collaborators.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return runPlayer(cmd.Context(), settings, name)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: multitrack.yaml on the search path)")
	rootCmd.Flags().StringVar(&name, "name", "", "Player friendly name (default: hostname-multitrack)")
	if err := setupFlags(rootCmd, v); err != nil {
		log.Fatalf("error setting up flags: %v", err)
	}

	rootCmd.AddCommand(versionCommand())
	return rootCmd
}

// setupFlags defines the player flags and binds each to its settings key
func setupFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	flags.StringP("project", "p", "", "Project file to play locally")
	flags.StringP("server", "s", "", "Timeline server websocket URL (skip mDNS)")
	flags.String("backend", "oto", "Audio backend (oto or malgo)")
	flags.Int("sample-rate", 48000, "Output sample rate")
	flags.Int("volume", 100, "Initial volume (0-100)")
	flags.String("log-file", "multitrack.log", "Log file path")
	flags.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	flags.Bool("play", false, "Start playback once the timeline is loaded")
	flags.String("elapsed-policy", "drop", "What to do with clips that elapse before they start (drop or log)")
	flags.Bool("metrics", false, "Serve Prometheus metrics")
	flags.String("metrics-listen", "127.0.0.1:9464", "Metrics listen address")
	flags.BoolP("debug", "d", false, "Enable debug output")

	bindings := map[string]string{
		"project":              "project",
		"server":               "server",
		"audio.backend":        "backend",
		"audio.samplerate":     "sample-rate",
		"audio.volume":         "volume",
		"logfile":              "log-file",
		"notui":                "no-tui",
		"autoplay":             "play",
		"engine.elapsedpolicy": "elapsed-policy",
		"metrics.enabled":      "metrics",
		"metrics.listen":       "metrics-listen",
		"debug":                "debug",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Product, version.Version)
		},
	}
}

// setupLogging sends logs to the log file, and also to stdout without the TUI
func setupLogging(settings *config.Settings) (io.Closer, error) {
	f, err := os.OpenFile(settings.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	if settings.NoTUI {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	} else {
		log.SetOutput(f)
	}
	return f, nil
}

func runPlayer(ctx context.Context, settings *config.Settings, name string) error {
	logFile, err := setupLogging(settings)
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if settings.NoTUI {
		log.Printf("Starting %s %s", version.Product, version.Version)
		log.Printf("TUI disabled - streaming logs")
	}

	var (
		prog     *tea.Program
		controls *ui.Controls
	)
	if !settings.NoTUI {
		controls = ui.NewControls()
		prog = ui.Run(controls)
	}

	player, err := app.New(app.Config{
		Settings: settings,
		Name:     name,
		OnStatus: func(msg ui.StatusMsg) {
			if prog != nil {
				prog.Send(msg)
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return player.Run(ctx)
	})

	if prog != nil {
		g.Go(func() error {
			_, err := prog.Run()
			return err
		})
		g.Go(func() error {
			player.HandleCommands(ctx, controls)
			return nil
		})
		g.Go(func() error {
			select {
			case <-controls.Quit:
				log.Printf("Received quit signal from TUI")
				cancel()
			case <-ctx.Done():
			}
			prog.Quit()
			return nil
		})
	}

	err = g.Wait()
	log.Printf("Player stopped")
	return err
}
