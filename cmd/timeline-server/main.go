// ABOUTME: Entry point for the timeline server
// ABOUTME: Serves a project file to collaborating players and editors
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sendspin/multitrack-go/internal/feedserver"
	"github.com/Sendspin/multitrack-go/internal/project"
	"github.com/Sendspin/multitrack-go/internal/ui"
)

type options struct {
	addr    string
	name    string
	logFile string
	debug   bool
	noMDNS  bool
	noTUI   bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:          "timeline-server <project.yaml>",
		Short:        "Serve a multitrack project for collaborative playback",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8930", "Listen address")
	cmd.Flags().StringVar(&opts.name, "name", "", "Server friendly name (default: project name)")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "timeline-server.log", "Log file path")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI, use streaming logs instead")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, opts options) error {
	f, err := os.OpenFile(opts.logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer f.Close()

	if opts.noTUI {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	} else {
		log.SetOutput(f)
	}

	proj, err := project.Load(path)
	if err != nil {
		return err
	}

	srv, err := feedserver.New(feedserver.Config{
		Addr:       opts.addr,
		Name:       opts.name,
		Project:    proj,
		EnableMDNS: !opts.noMDNS,
		Debug:      opts.debug,
	})
	if err != nil {
		return err
	}

	log.Printf("Serving project %q on %s", proj.Name, opts.addr)
	log.Printf("Logging to: %s", opts.logFile)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if !opts.noTUI {
		tui := ui.NewServerTUI()
		g.Go(func() error {
			defer cancel()
			return tui.Start(status(srv, proj, opts.addr))
		})
		g.Go(func() error {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			defer tui.Stop()
			for {
				select {
				case <-ticker.C:
					tui.Update(status(srv, proj, opts.addr))
				case <-tui.QuitChan():
					cancel()
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	err = g.Wait()
	log.Printf("Server stopped")
	return err
}

// status summarizes the server for the TUI
func status(srv *feedserver.Server, proj *project.Project, addr string) ui.ServerStatus {
	store := srv.Store()
	st := ui.ServerStatus{
		Name:       srv.Name(),
		Port:       port(addr),
		Project:    proj.Name,
		Tracks:     len(store.Tracks()),
		Clips:      len(store.Clips()),
		AudioFiles: len(store.AudioFiles()),
	}
	for _, c := range srv.Clients() {
		st.Clients = append(st.Clients, ui.ClientInfo{ID: c.ID, Name: c.Name})
	}
	return st
}

func port(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
