// ABOUTME: Timeline package for the shared multi-track arrangement
// ABOUTME: Data model, tempo math, versioned store, sorted index and undo history
// Package timeline holds the shared arrangement that editors mutate and the
// playback engine reads.
//
// Store is the single owner of clip, track and audio file records and of
// decoded buffers. Every mutation bumps a version and notifies subscribers
// after it commits. Index is a sorted, immutable view over a Snapshot used
// for binary-searching clips by start beat. History records typed edit
// actions per user and undoes them with conflict detection.
package timeline
