// ABOUTME: Software mixing graph package
// ABOUTME: Gain tree, scheduled buffer sources and metering taps over a frame clock
// Package mixer implements a small software audio graph.
//
// A Graph owns a tree of Gain nodes rooted at Master. Sources are scheduled
// against the graph's hardware clock, which counts rendered frames, so the
// clock only advances while a device (or a test) pulls audio through Render
// or Read. Analysers tap a node's post-gain output for metering.
//
// Example:
//
//	g, _ := mixer.NewGraph(48000, 2)
//	track := g.NewGain(nil)
//	src, _ := g.Start(buf, track, g.Now()+0.05, 0, buf.Duration(), nil)
//	g.Resume()
//
//	out := make([]float32, 1024)
//	g.Render(out)
package mixer
