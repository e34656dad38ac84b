// ABOUTME: WebSocket client for the timeline feed
// ABOUTME: Handles connection, handshake, edit submission and ordered message delivery
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

// ErrNotConnected is returned when sending on a closed client
var ErrNotConnected = errors.New("not connected")

// handshakeTimeout bounds the wait for server/hello
const handshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	// URL is the server's websocket address, e.g. ws://host:8930/timeline
	URL        string
	ClientID   string
	Name       string
	DeviceInfo DeviceInfo
}

// Client is a feed connection. Messages after the handshake are delivered
// on Messages in the order the server sent them.
type Client struct {
	config Config
	conn   *websocket.Conn
	server ServerHello

	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool

	// Messages is closed when the connection ends
	Messages chan Envelope
	done     chan struct{}
}

// NewClient creates a new feed client
func NewClient(config Config) *Client {
	return &Client{
		config:   config,
		Messages: make(chan Envelope, 256),
		done:     make(chan struct{}),
	}
}

// Connect dials the server and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	log.Printf("Connecting to %s", c.config.URL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		close(c.Messages)
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Version:    Version,
		DeviceInfo: &c.config.DeviceInfo,
	}
	if err := c.send(TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if env.Type != TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", env.Type)
	}
	var server ServerHello
	if err := env.Decode(&server); err != nil {
		return err
	}
	if server.Version != Version {
		return fmt.Errorf("unsupported protocol version %d", server.Version)
	}

	c.mu.Lock()
	c.server = server
	c.mu.Unlock()

	log.Printf("Handshake complete with %s", server.Name)
	return nil
}

// Server returns the server's hello
func (c *Client) Server() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// readMessages forwards incoming messages until the connection ends
func (c *Client) readMessages() {
	defer close(c.Messages)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			log.Printf("Unexpected WebSocket message type: %d", messageType)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Failed to parse JSON message: %v", err)
			continue
		}

		select {
		case c.Messages <- env:
		case <-c.done:
			return
		}
	}
}

// send writes one JSON message
func (c *Client) send(msgType string, payload any) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(Message{Type: msgType, Payload: payload})
}

// CreateClip submits a new clip
func (c *Client) CreateClip(clip timeline.Clip) error {
	return c.send(TypeClipCreate, clip)
}

// UpdateClip submits a changed clip
func (c *Client) UpdateClip(clip timeline.Clip) error {
	return c.send(TypeClipUpdate, clip)
}

// DeleteClip submits a clip deletion
func (c *Client) DeleteClip(id timeline.ClipID) error {
	return c.send(TypeClipDelete, ClipDelete{ID: id})
}

// UpdateTrack submits a track change such as a new gain
func (c *Client) UpdateTrack(track timeline.Track) error {
	return c.send(TypeTrackUpdate, track)
}

// Undo asks the server to revert this client's most recent edit
func (c *Client) Undo() error {
	return c.send(TypeClipUndo, struct{}{})
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.send(TypeClientGoodbye, ClientGoodbye{Reason: reason})
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		close(c.done)
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
