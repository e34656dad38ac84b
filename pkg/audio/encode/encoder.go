// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for writing rendered audio to files
package encode

// Encoder writes interleaved float32 samples to an encoded stream
type Encoder interface {
	// Encode appends samples; the length must be a whole number of frames
	Encode(samples []float32) error

	// Close finalizes the stream
	Close() error
}
