// ABOUTME: Headless scheduler drift check
// ABOUTME: Starves the scheduler against a simulated device clock and reports elapsed and late voices
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sendspin/multitrack-go/pkg/audio"
	"github.com/Sendspin/multitrack-go/pkg/audio/encode"
	"github.com/Sendspin/multitrack-go/pkg/engine"
	"github.com/Sendspin/multitrack-go/pkg/mixer"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

type options struct {
	policy   string
	bpm      float64
	clips    int
	rate     int
	duration time.Duration
	chunk    time.Duration
	stall    time.Duration
	every    int
	bounce   string
	debug    bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "drift-check",
		Short: "Simulate scheduler starvation and report how clips are handled",
		Long: "Renders a synthetic arrangement against a simulated device clock. Every few\n" +
			"chunks the clock jumps ahead without the scheduler running, so clips that\n" +
			"should have started are either dropped (elapsed) or started late with the\n" +
			"missed audio skipped.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.policy, "policy", "log", "Elapsed clip policy (drop or log)")
	flags.Float64Var(&opts.bpm, "bpm", 120, "Tempo")
	flags.IntVar(&opts.clips, "clips", 32, "Number of one-beat clips, one every beat")
	flags.IntVar(&opts.rate, "rate", 48000, "Simulated device sample rate")
	flags.DurationVar(&opts.duration, "duration", 10*time.Second, "Simulated playback time")
	flags.DurationVar(&opts.chunk, "chunk", 10*time.Millisecond, "Device render quantum")
	flags.DurationVar(&opts.stall, "stall", 300*time.Millisecond, "Clock jump per stall")
	flags.IntVar(&opts.every, "every", 50, "Stall every N chunks (0 disables)")
	flags.StringVar(&opts.bounce, "bounce", "", "Write the rendered mix to this WAV file")
	flags.BoolVar(&opts.debug, "debug", false, "Enable engine debug logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	policy, err := engine.ParseElapsedPolicy(opts.policy)
	if err != nil {
		return err
	}

	const channels = 2
	graph, err := mixer.NewGraph(opts.rate, channels)
	if err != nil {
		return err
	}

	tempo := timeline.Tempo{BPM: opts.bpm}
	store := timeline.NewStore()
	if err := store.PutBuffer("tone", sine(440, tempo.SecondsPerBeat(), opts.rate, channels)); err != nil {
		return err
	}
	if err := store.PutTrack(timeline.Track{ID: "tones", Name: "Tones"}); err != nil {
		return err
	}
	for i := 0; i < opts.clips; i++ {
		c := timeline.Clip{
			ID:          timeline.ClipID(fmt.Sprintf("tone-%02d", i)),
			TrackID:     "tones",
			AudioFileID: "tone",
			StartBeat:   float64(i),
			EndBeat:     float64(i) + 0.5,
		}
		if err := store.PutClip(c); err != nil {
			return err
		}
	}

	eng := engine.New(graph, store, engine.Config{
		Tempo:         tempo,
		TotalBeats:    float64(opts.clips),
		ElapsedPolicy: policy,
		Debug:         opts.debug,
	})
	defer eng.Close()
	eng.RegisterTrack("tones", 0.5)

	var enc *encode.WAVEncoder
	if opts.bounce != "" {
		f, err := os.Create(opts.bounce)
		if err != nil {
			return err
		}
		defer f.Close()
		enc, err = encode.NewWAV(f, audio.Format{Codec: "wav", SampleRate: opts.rate, Channels: channels, BitDepth: 16})
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	eng.Play()

	chunkFrames := int(opts.chunk.Seconds() * float64(opts.rate))
	stallFrames := int(opts.stall.Seconds() * float64(opts.rate))
	chunks := int(opts.duration / opts.chunk)

	log.Printf("Simulating %s at %d Hz: %d clips, %s stall every %d chunks, policy %s",
		opts.duration, opts.rate, opts.clips, opts.stall, opts.every, policy)

	ticker := time.NewTicker(opts.chunk)
	defer ticker.Stop()

loop:
	for i := 1; i <= chunks; i++ {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			break loop
		}

		frames := chunkFrames
		if opts.every > 0 && i%opts.every == 0 {
			frames += stallFrames
		}
		out := make([]float32, frames*channels)
		graph.Render(out)

		if enc != nil {
			if err := enc.Encode(out); err != nil {
				cancel()
				return err
			}
		}
	}

	cancel()
	if err := <-done; err != nil {
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return err
		}
		log.Printf("Wrote %s", opts.bounce)
	}

	report(eng.Stats())
	return nil
}

func report(s engine.Stats) {
	fmt.Printf("scheduled  %d\n", s.Scheduled)
	fmt.Printf("elapsed    %d (dropped before starting)\n", s.Elapsed)
	fmt.Printf("late       %d (started with missed audio skipped)\n", s.Late)
	fmt.Printf("stopped    %d\n", s.Stopped)
	fmt.Printf("wraps      %d\n", s.Wraps)
	fmt.Printf("reconciles %d\n", s.Reconciles)
}

// sine returns a tone with short fades so clip edges do not click
func sine(freq, seconds float64, rate, channels int) *audio.Buffer {
	frames := int(seconds * float64(rate))
	fade := rate / 200
	samples := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
		if i < fade {
			v *= float64(i) / float64(fade)
		} else if frames-i < fade {
			v *= float64(frames-i) / float64(fade)
		}
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = float32(v * 0.5)
		}
	}
	return &audio.Buffer{Samples: samples, SampleRate: rate, Channels: channels}
}
