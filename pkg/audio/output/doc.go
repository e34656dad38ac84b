// ABOUTME: Audio output package for playing the mixed timeline
// ABOUTME: Provides Output interface with oto and malgo backends
// Package output connects a Renderer to audio hardware.
//
// Backends pull frames from the renderer at the device's pace, which makes
// the device the master clock for everything scheduled on the renderer.
// Both backends apply a software master volume.
//
// Example:
//
//	out, err := output.New("oto")
//	err = out.Start(graph)
//	defer out.Close()
package output
