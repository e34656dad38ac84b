// ABOUTME: Playback engine package
// ABOUTME: Maps a live-edited timeline onto voices scheduled against a hardware clock
// Package engine is the real-time playback scheduler of the multi-track editor.
//
// An Engine reads clips from a Timeline and schedules them as voices on a
// Device whose clock runs independently of wall time. While playing, song
// time is derived from the hardware clock as
//
//	songTime = startOffset + (hardwareNow - playbackStartTime)
//
// Every tick the scheduler queues clips that start inside a short look-ahead
// window, wrapping the mapping forward by whole laps at the loop (or song)
// end and queueing the head of the next lap ahead of time so the seam is
// gapless. Timeline mutations trigger a throttled reconcile that tears down
// voices whose clip changed; gain-only edits are ramped on the live voice.
//
// Voice completions arrive from the render path tagged with the epoch they
// were scheduled in. Every pause, seek or stop starts a new epoch, so stale
// completions are ignored rather than removing newer voices.
//
// Example:
//
//	graph, _ := mixer.NewGraph(48000, 2)
//	store := timeline.NewStore()
//	eng := engine.New(graph, store, engine.Config{})
//	eng.RegisterTrack("drums", 1)
//	go eng.Run(ctx)
//	eng.Play()
package engine
