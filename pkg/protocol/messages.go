// ABOUTME: Timeline feed message type definitions
// ABOUTME: Defines the envelope and payloads exchanged between timeline servers and players
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// Version is the feed protocol version
const Version = 1

// Message types
const (
	TypeClientHello     = "client/hello"
	TypeServerHello     = "server/hello"
	TypeClientGoodbye   = "client/goodbye"
	TypeServerReady     = "server:ready"
	TypeServerError     = "server:error"
	TypeClipCreate      = "clip:create"
	TypeClipUpdate      = "clip:update"
	TypeClipDelete      = "clip:delete"
	TypeClipUndo        = "clip:undo"
	TypeTrackUpdate     = "track:update"
	TypeAudioFileCreate = "audiofile:create"
	TypeAudioFileDelete = "audiofile:delete"
)

// Message is the top-level wrapper for all feed messages
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Envelope is a received message whose payload is decoded on demand
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", e.Type, err)
	}
	return nil
}

// ClientHello is sent by players to initiate the handshake
type ClientHello struct {
	ClientID   string      `json:"client_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerReady carries the complete timeline after the handshake
type ServerReady struct {
	Project    string               `json:"project"`
	BPM        float64              `json:"bpm"`
	TotalBeats float64              `json:"total_beats,omitempty"`
	Tracks     []timeline.Track     `json:"tracks"`
	AudioFiles []timeline.AudioFile `json:"audiofiles"`
	Clips      []timeline.Clip      `json:"clips"`
}

// ServerError reports a rejected request
type ServerError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Error statuses
const (
	StatusInvalid  = "INVALID"
	StatusConflict = "CONFLICT"
	StatusNotFound = "NOT_FOUND"
)

// ClipDelete names a deleted clip
type ClipDelete struct {
	ID timeline.ClipID `json:"id"`
}

// AudioFileDelete removes an audio file together with the clips using it
type AudioFileDelete struct {
	AudioFile    timeline.AudioFile `json:"audio_file"`
	DeletedClips []timeline.ClipID  `json:"deleted_clips"`
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"` // "shutdown", "restart", "user_request"
}
