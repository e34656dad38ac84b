// ABOUTME: Timeline feed server for collaborative editing sessions
// ABOUTME: Serves a project's timeline and audio files, applies client edits and broadcasts them
package feedserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Sendspin/multitrack-go/internal/discovery"
	"github.com/Sendspin/multitrack-go/internal/project"
	"github.com/Sendspin/multitrack-go/pkg/protocol"
	"github.com/Sendspin/multitrack-go/pkg/timeline"
)

const (
	sendBuffer    = 256
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Config configures a timeline server
type Config struct {
	// Addr to listen on (default: ":8930")
	Addr string

	// Name of the server for identification
	Name string

	// Path of the websocket endpoint (default: "/timeline")
	Path string

	// Project whose timeline is served (required)
	Project *project.Project

	// EnableMDNS advertises the server on the local network
	EnableMDNS bool

	Debug bool
}

// Server hosts one shared timeline
type Server struct {
	config   Config
	serverID string
	store    *timeline.Store
	history  *timeline.History
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	// edits serializes mutations so broadcasts follow commit order
	edits sync.Mutex

	clients   map[string]*client
	clientsMu sync.RWMutex

	unsubscribe func()
	wg          sync.WaitGroup
}

// client is a connected player or editor
type client struct {
	ID       string
	Name     string
	Conn     *websocket.Conn
	sendChan chan any
	closed   chan struct{}
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.closed)
		c.Conn.Close()
	})
}

// ClientInfo describes a connected client
type ClientInfo struct {
	ID   string
	Name string
}

// New creates a server for config.Project
func New(config Config) (*Server, error) {
	if config.Project == nil {
		return nil, errors.New("project is required")
	}
	if config.Addr == "" {
		config.Addr = ":8930"
	}
	if config.Name == "" {
		config.Name = config.Project.Name
	}
	if config.Name == "" {
		config.Name = "Multitrack Timeline"
	}
	if config.Path == "" {
		config.Path = "/timeline"
	}

	store := timeline.NewStore()
	if err := config.Project.Apply(store); err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		store:    store,
		history:  timeline.NewHistory(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
	}
	s.unsubscribe = store.Subscribe(s.onEvent)

	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	s.mux.HandleFunc("GET /audio/{file}", s.handleAudio)
	return s, nil
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Name returns the advertised server name
func (s *Server) Name() string {
	return s.config.Name
}

// Store returns the served timeline
func (s *Server) Store() *timeline.Store {
	return s.store
}

// Run serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Printf("Timeline server %s (ID: %s) listening on %s%s", s.config.Name, s.serverID, ln.Addr(), s.config.Path)

	if s.config.EnableMDNS {
		mdns := discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        ln.Addr().(*net.TCPAddr).Port,
			Path:        s.config.Path,
		})
		if err := mdns.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		}
		defer mdns.Stop()
	}

	httpServer := &http.Server{Handler: s.mux}
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("Server shutting down...")
	case err := <-errChan:
		s.Close()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.Close()
	log.Printf("Server stopped cleanly")
	return nil
}

// Close disconnects every client and waits for their goroutines
func (s *Server) Close() {
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.close()
	}
	s.clientsMu.RUnlock()
	s.wg.Wait()
}

// Clients returns information about all connected clients
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, ClientInfo{ID: c.ID, Name: c.Name})
	}
	return clients
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	log.Printf("New WebSocket connection from %s", r.RemoteAddr)

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(conn)
}

// handleConnection runs a client from handshake to disconnect
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(writeDeadline))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		log.Printf("Error reading hello: %v", err)
		return
	}
	conn.SetReadDeadline(time.Time{})
	if env.Type != protocol.TypeClientHello {
		log.Printf("Expected client/hello, got %s", env.Type)
		return
	}
	var hello protocol.ClientHello
	if err := env.Decode(&hello); err != nil {
		log.Printf("Error parsing client hello: %v", err)
		return
	}
	if hello.ClientID == "" {
		hello.ClientID = uuid.New().String()
	}
	log.Printf("Client hello: %s (ID: %s)", hello.Name, hello.ClientID)

	c := &client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan any, sendBuffer),
		closed:   make(chan struct{}),
	}

	// the snapshot and registration happen under the edit lock so no
	// edit falls between them
	s.edits.Lock()
	s.clientsMu.Lock()
	if _, exists := s.clients[c.ID]; exists {
		s.clientsMu.Unlock()
		s.edits.Unlock()
		log.Printf("Client ID %s already connected, rejecting duplicate", c.ID)
		return
	}
	s.clients[c.ID] = c
	s.clientsMu.Unlock()

	s.sendMessage(c, protocol.TypeServerHello, protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.Version,
	})
	s.sendMessage(c, protocol.TypeServerReady, s.snapshot())
	s.edits.Unlock()

	defer func() {
		s.removeClient(c)
		log.Printf("Client disconnected: %s", c.Name)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		s.handleClientMessage(c, data)
	}
}

// clientWriter sends queued messages to the client
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case msg := <-c.sendChan:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// handleClientMessage applies one edit request
func (s *Server) handleClientMessage(c *client, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}

	var err error
	switch env.Type {
	case protocol.TypeClipCreate:
		var clip timeline.Clip
		if err = env.Decode(&clip); err == nil {
			err = s.createClip(c.ID, clip)
		}
	case protocol.TypeClipUpdate:
		var clip timeline.Clip
		if err = env.Decode(&clip); err == nil {
			err = s.updateClip(c.ID, clip)
		}
	case protocol.TypeClipDelete:
		var del protocol.ClipDelete
		if err = env.Decode(&del); err == nil {
			err = s.deleteClip(c.ID, del.ID)
		}
	case protocol.TypeTrackUpdate:
		var t timeline.Track
		if err = env.Decode(&t); err == nil {
			err = s.updateTrack(t)
		}
	case protocol.TypeClipUndo:
		err = s.undo(c.ID)
	case protocol.TypeClientGoodbye:
		var goodbye protocol.ClientGoodbye
		env.Decode(&goodbye)
		log.Printf("Client %s goodbye: %s", c.Name, goodbye.Reason)
	default:
		if s.config.Debug {
			log.Printf("Unknown message type: %s", env.Type)
		}
	}

	if err != nil {
		if s.config.Debug {
			log.Printf("Rejected %s from %s: %v", env.Type, c.Name, err)
		}
		s.sendMessage(c, protocol.TypeServerError, protocol.ServerError{
			Status:  errorStatus(err),
			Message: err.Error(),
		})
	}
}

// removeClient unregisters a client and stops its writer
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	if s.clients[c.ID] == c {
		delete(s.clients, c.ID)
	}
	s.clientsMu.Unlock()
	c.close()
}

// sendMessage queues a message, dropping the client if it cannot keep up
func (s *Server) sendMessage(c *client, msgType string, payload any) {
	select {
	case c.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
	case <-c.closed:
	default:
		log.Printf("Client %s send buffer full, disconnecting", c.Name)
		c.close()
	}
}

// broadcast queues a message for every client
func (s *Server) broadcast(msgType string, payload any) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.sendMessage(c, msgType, payload)
	}
}

// snapshot builds server:ready for the current timeline
func (s *Server) snapshot() protocol.ServerReady {
	files := s.store.AudioFiles()
	for i := range files {
		files[i] = served(files[i])
	}
	return protocol.ServerReady{
		Project:    s.config.Project.Name,
		BPM:        s.config.Project.BPM,
		TotalBeats: s.config.Project.TotalBeats,
		Tracks:     s.store.Tracks(),
		AudioFiles: files,
		Clips:      s.store.Clips(),
	}
}

// served rewrites an audio file's path to its download URL path
func served(f timeline.AudioFile) timeline.AudioFile {
	f.Path = "/audio/" + url.PathEscape(string(f.ID)) + strings.ToLower(filepath.Ext(f.Path))
	return f
}

// handleAudio serves an audio file by ID, ignoring the extension
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	id := timeline.AudioFileID(strings.TrimSuffix(name, filepath.Ext(name)))

	f, ok := s.store.AudioFile(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.config.Project.Path(f))
}
