package hotupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/extplan/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 256
)

// ErrHubClosed is returned by Broadcast after Shutdown.
var ErrHubClosed = errors.New("hot-update hub is shut down")

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected hot-update clients and fans messages out to them.
//
// A single goroutine owns registration, unregistration and broadcasting, so
// a client's send channel is only ever closed by that goroutine.
type Hub struct {
	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	originPatterns []string
	logger         logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
}

// NewHub creates a hub and starts its event loop. Origin patterns follow
// websocket.AcceptOptions; with none given every origin is accepted, which
// extension pages need since their origin is the extension ID.
func NewHub(logger logging.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:        make(map[*websocket.Conn]*client),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *client, 32),
		unregister:     make(chan *websocket.Conn, 32),
		originPatterns: originPatterns,
		logger:         logger.WithComponent("hotupdate"),
		ctx:            ctx,
		cancel:         cancel,
	}
	go h.run()
	return h
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusServiceRestart, "server shutting down")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clientsMutex.Lock()
			h.clients[c.conn] = c
			total := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(h.ctx, "client connected", "clients", total)

		case conn := <-h.unregister:
			h.remove(conn)

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			var slow []*websocket.Conn
			for conn, c := range h.clients {
				select {
				case c.send <- message:
				default:
					slow = append(slow, conn)
				}
			}
			h.clientsMutex.RUnlock()

			for _, conn := range slow {
				h.remove(conn)
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	total := len(h.clients)
	h.clientsMutex.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug(h.ctx, "client disconnected", "clients", total)
	}
}

// readPump drains client frames until the connection ends. Clients have
// nothing to say beyond control frames.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.ctx.Done():
		}
	}()

	for {
		_, data, err := c.conn.Read(h.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "websocket read ended", "error", err.Error())
			}
			return
		}
		h.logger.Debug(h.ctx, "ignoring client message", "bytes", len(data))
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(h.ctx, "websocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding hot-update message: %w", err)
	}

	if h.isShutdown.Load() {
		return ErrHubClosed
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	default:
		return errors.New("hot-update broadcast queue is full")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and stops the hub. It is safe to call
// more than once.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.isShutdown.Store(true)
		h.cancel()

		h.clientsMutex.Lock()
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for conn := range h.clients {
			conns = append(conns, conn)
		}
		h.clients = make(map[*websocket.Conn]*client)
		h.clientsMutex.Unlock()

		for _, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
		h.logger.Debug(ctx, "hub shut down", "closed", len(conns))
	})
	return nil
}

// Endpoint splits a hot-update URL into the listen address and the HTTP path
// the hub is mounted on.
func Endpoint(rawURL string) (addr, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing hot-update url: %w", err)
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("hot-update url %q has no host", rawURL)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "wss", "https":
			port = "443"
		default:
			port = "80"
		}
	}

	path = u.Path
	if path == "" {
		path = "/"
	}
	return net.JoinHostPort(u.Hostname(), port), path, nil
}

// ListenAndServe serves the hub at the address and path named by rawURL
// until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, rawURL string) error {
	addr, path, err := Endpoint(rawURL)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(path, h)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info(ctx, "hot-update hub listening", "addr", addr, "path", path)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
