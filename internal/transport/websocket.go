// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"beatloop/internal/looper"

	"github.com/gorilla/websocket"
)

const (
	clientQueue  = 64
	writeTimeout = 2 * time.Second
	submitWait   = 2 * time.Second
)

// Reply answers one inbound control message.
type Reply struct {
	Kind    string `json:"kind"` // "ack" or "error"
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan any
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub serves /ws for event broadcast and text control commands, and
// /snapshot for a JSON copy of the looper state.
type Hub struct {
	addr      string
	upgrader  websocket.Upgrader
	commands  CommandHandler
	snapshots SnapshotSource

	clientsMu sync.Mutex
	clients   map[*client]struct{}
	closed    bool

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewHub creates a hub. commands and snapshots may be nil.
func NewHub(addr string, commands CommandHandler, snapshots SnapshotSource) *Hub {
	return &Hub{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // control surfaces run from file:// and localhost pages
			},
		},
		commands:  commands,
		snapshots: snapshots,
		clients:   make(map[*client]struct{}),
	}
}

// Bind sets the control and snapshot targets. Call it before Start.
func (h *Hub) Bind(commands CommandHandler, snapshots SnapshotSource) {
	h.commands = commands
	h.snapshots = snapshots
}

// Handler exposes the hub's routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/snapshot", h.handleSnapshot)
	return mux
}

// Start listens on the configured address and serves in the background.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}
	h.listener = ln
	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("websocket hub listening on %s", ln.Addr())
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("websocket server error: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address once started.
func (h *Hub) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan any, clientQueue)}
	h.clientsMu.Lock()
	if h.closed {
		h.clientsMu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.wg.Add(2)
	h.clientsMu.Unlock()
	logger.Infof("client connected from %s, total: %d", conn.RemoteAddr(), total)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// writeLoop is the only goroutine writing to the connection.
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			logger.Warnf("error sending to client: %v", err)
			h.remove(c)
			// drain so broadcasters never block on a dead client
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
}

// readLoop treats every text message as one control command line.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		line := strings.TrimSpace(string(data))
		if line == "" {
			continue
		}
		h.enqueue(c, h.execute(line))
	}
}

func (h *Hub) execute(line string) Reply {
	cmd, err := looper.ParseCommand(line)
	if err != nil {
		return Reply{Kind: "error", Command: line, Error: err.Error()}
	}
	if h.commands == nil {
		return Reply{Kind: "error", Command: cmd.String(), Error: "control input disabled"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), submitWait)
	defer cancel()
	if err := h.commands.Submit(ctx, cmd); err != nil {
		return Reply{Kind: "error", Command: cmd.String(), Error: err.Error()}
	}
	return Reply{Kind: "ack", Command: cmd.String()}
}

func (h *Hub) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		http.Error(w, "snapshots unavailable", http.StatusServiceUnavailable)
		return
	}
	s, err := h.snapshots.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *Hub) remove(c *client) {
	h.clientsMu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.clientsMu.Unlock()
	if ok {
		c.close()
		logger.Infof("client disconnected, total: %d", total)
	}
}

// enqueue drops the message when the client's queue is full.
func (h *Hub) enqueue(c *client, msg any) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Send broadcasts data to all connected WebSocket clients. Slow clients miss
// messages rather than stall the sender.
func (h *Hub) Send(data any) error {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
	return nil
}

// Close disconnects every client and shuts down the server.
func (h *Hub) Close() error {
	logger.Infof("closing websocket hub")

	h.clientsMu.Lock()
	h.closed = true
	for c := range h.clients {
		c.close()
		c.conn.Close()
		delete(h.clients, c)
	}
	h.clientsMu.Unlock()

	var err error
	if h.server != nil {
		err = h.server.Close()
	}
	h.wg.Wait()
	return err
}

// Ensure Hub satisfies the interface
var _ Transport = (*Hub)(nil)
