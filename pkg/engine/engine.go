// ABOUTME: Real-time playback engine for the multi-track timeline
// ABOUTME: Owns configuration, playback state and the periodic task loop
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// ElapsedPolicy decides what happens to voices that fully elapsed before
// they could start
type ElapsedPolicy int

const (
	// ElapsedDrop discards elapsed voices silently
	ElapsedDrop ElapsedPolicy = iota
	// ElapsedLog discards elapsed voices and logs each one
	ElapsedLog
)

func (p ElapsedPolicy) String() string {
	switch p {
	case ElapsedDrop:
		return "drop"
	case ElapsedLog:
		return "log"
	default:
		return fmt.Sprintf("ElapsedPolicy(%d)", int(p))
	}
}

// ParseElapsedPolicy parses "drop" or "log"
func ParseElapsedPolicy(s string) (ElapsedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return ElapsedDrop, nil
	case "log":
		return ElapsedLog, nil
	default:
		return ElapsedDrop, fmt.Errorf("unknown elapsed policy %q", s)
	}
}

// Config holds engine configuration
type Config struct {
	// Tempo converts beats to song seconds (default: 120 BPM)
	Tempo timeline.Tempo

	// TotalBeats is the song length; playback wraps to 0 at the end (default: 256)
	TotalBeats float64

	// TickInterval is the scheduler period (default: 25ms)
	TickInterval time.Duration

	// UIInterval is the position refresh period (default: 8ms)
	UIInterval time.Duration

	// GainInterval is the gain riding pass period (default: 50ms)
	GainInterval time.Duration

	// ReconcileThrottle is the minimum spacing of reconciles (default: 16ms)
	ReconcileThrottle time.Duration

	// LookAheadFactor multiplies TickInterval into the look-ahead horizon (default: 3)
	LookAheadFactor float64

	// LeadIn delays the first voices of a new epoch (default: 50ms)
	LeadIn time.Duration

	// GainEpsilon is the smallest gain difference worth a ramp (default: 1e-4)
	GainEpsilon float64

	// GainTimeConstant is the gain ramp time constant (default: 10ms)
	GainTimeConstant time.Duration

	// MeterWindow is the per-track analyser window in samples (default: 2048)
	MeterWindow int

	// LoopQuantum is the beat grid loop ranges snap to (default: 1)
	LoopQuantum float64

	ElapsedPolicy ElapsedPolicy

	// Debug enables diagnostic logging
	Debug bool

	// Metrics receives counters when set
	Metrics *Metrics

	// OnStateChange is called after transport changes and on every UI tick
	// while playing. It runs without engine locks held.
	OnStateChange func(State)
}

// SeekOptions modifies Seek
type SeekOptions struct {
	// SetAsRest also moves the resting position Play starts from
	SetAsRest bool
}

// LoopOptions modifies SetLoopInBeats
type LoopOptions struct {
	// Quantize snaps the start down and the end up to LoopQuantum
	Quantize bool
}

// LoopRange is the loop region in beats
type LoopRange struct {
	StartBeat float64
	EndBeat   float64
	Set       bool
	Enabled   bool
}

// Active reports whether playback is currently looping
func (l LoopRange) Active() bool {
	return l.Set && l.Enabled
}

// State is the observable engine state
type State struct {
	Position  float64 // song seconds
	Playing   bool
	Loop      LoopRange
	Iteration int
	Voices    int
}

// Stats tracks engine counters
type Stats struct {
	Scheduled  int64
	Stopped    int64
	Elapsed    int64
	Late       int64
	Missing    int64
	Stale      int64
	Reconciles int64
	Wraps      int64
	GainRamps  int64
}

// Engine schedules timeline clips against a hardware clock
type Engine struct {
	config   Config
	device   Device
	timeline Timeline

	mu sync.Mutex

	// playback state
	playing           bool
	playbackStartTime float64 // hardware seconds
	startOffset       float64 // song seconds at playbackStartTime
	leadInUntil       float64 // hardware seconds; wrap does not move it
	currentTime       float64
	restPosition      float64
	nextScheduleTime  float64
	scanFloor         float64
	iteration         int
	epoch             uint64
	loop              LoopRange

	index  *timeline.Index
	tracks map[timeline.TrackID]*trackStage
	voices map[voiceKey]*voice
	nextID uint64

	stats Stats

	indexStale       atomic.Bool
	reconcilePending atomic.Bool
	gainDirty        atomic.Bool
	wake             chan struct{}
	ended            chan endedEvent
	limiter          *rate.Limiter
	unsubscribe      func()
	closeOnce        sync.Once
}

// New creates an engine reading tl and scheduling into device
func New(device Device, tl Timeline, config Config) *Engine {
	// Set defaults
	if config.Tempo.BPM <= 0 {
		config.Tempo.BPM = timeline.DefaultBPM
	}
	if config.TotalBeats <= 0 {
		config.TotalBeats = 256
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 25 * time.Millisecond
	}
	if config.UIInterval <= 0 {
		config.UIInterval = 8 * time.Millisecond
	}
	if config.GainInterval <= 0 {
		config.GainInterval = 50 * time.Millisecond
	}
	if config.ReconcileThrottle <= 0 {
		config.ReconcileThrottle = 16 * time.Millisecond
	}
	if config.LookAheadFactor <= 0 {
		config.LookAheadFactor = 3
	}
	if config.LeadIn <= 0 {
		config.LeadIn = 50 * time.Millisecond
	}
	if config.GainEpsilon <= 0 {
		config.GainEpsilon = 1e-4
	}
	if config.GainTimeConstant <= 0 {
		config.GainTimeConstant = 10 * time.Millisecond
	}
	if config.MeterWindow <= 0 {
		config.MeterWindow = 2048
	}
	if config.LoopQuantum <= 0 {
		config.LoopQuantum = 1
	}

	e := &Engine{
		config:   config,
		device:   device,
		timeline: tl,
		tracks:   make(map[timeline.TrackID]*trackStage),
		voices:   make(map[voiceKey]*voice),
		wake:     make(chan struct{}, 1),
		ended:    make(chan endedEvent, 256),
		limiter:  rate.NewLimiter(rate.Every(config.ReconcileThrottle), 1),
	}
	e.indexStale.Store(true)
	e.unsubscribe = tl.Subscribe(e.onTimelineEvent)
	return e
}

// Close stops all voices and detaches from the timeline
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.unsubscribe()

		e.mu.Lock()
		e.stopAll(reasonShutdown)
		e.playing = false
		st := e.stateLocked()
		e.mu.Unlock()
		e.emit(st)
	})
}

// Run drives the scheduler, position, reconcile and gain tasks until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	scheduler := time.NewTicker(e.config.TickInterval)
	defer scheduler.Stop()
	position := time.NewTicker(e.config.UIInterval)
	defer position.Stop()
	gains := time.NewTicker(e.config.GainInterval)
	defer gains.Stop()

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.stopAll(reasonShutdown)
			e.playing = false
			e.mu.Unlock()
			return nil

		case <-scheduler.C:
			e.tick()

		case <-position.C:
			e.refreshPosition()

		case <-gains.C:
			if e.gainDirty.Swap(false) {
				e.applyGains()
			}

		case ev := <-e.ended:
			e.mu.Lock()
			e.releaseEnded(ev)
			e.mu.Unlock()

		case <-e.wake:
			// anything not allowed now is picked up by the next tick
			if e.limiter.Allow() {
				e.reconcile()
			}
		}
	}
}

func (e *Engine) onTimelineEvent(ev timeline.Event) {
	e.indexStale.Store(true)
	e.reconcilePending.Store(true)
	switch ev.Kind {
	case timeline.EventClipUpdated, timeline.EventReset:
		e.gainDirty.Store(true)
	}

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) requestReconcile() {
	e.reconcilePending.Store(true)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// timelineIndex returns the sorted clip view, rebuilding it after mutations
func (e *Engine) timelineIndex() *timeline.Index {
	if e.index == nil || e.indexStale.Swap(false) {
		e.index = timeline.NewIndex(e.timeline.Snapshot())
	}
	return e.index
}

func (e *Engine) secondsPerBeat() float64 {
	return e.config.Tempo.SecondsPerBeat()
}

func (e *Engine) lookAhead() float64 {
	return e.config.TickInterval.Seconds() * e.config.LookAheadFactor
}

// State returns the observable state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	return State{
		Position:  e.displayTime(e.device.Now()),
		Playing:   e.playing,
		Loop:      e.loop,
		Iteration: e.iteration,
		Voices:    len(e.voices),
	}
}

func (e *Engine) emit(st State) {
	if e.config.OnStateChange != nil {
		e.config.OnStateChange(st)
	}
}

// Stats returns engine counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) debugf(format string, args ...any) {
	if e.config.Debug {
		log.Printf(format, args...)
	}
}
