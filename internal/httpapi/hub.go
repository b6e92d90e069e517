package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"capturerig/director/internal/auth"
	"capturerig/director/internal/events"
	"capturerig/director/internal/logging"
)

// ChangeSource feeds the hub. events.Stream satisfies it.
type ChangeSource interface {
	Watch(ctx context.Context, buffer int) (<-chan events.Change, *events.Subscription)
	Last() (events.Change, bool)
}

// HubOptions configures a Hub.
type HubOptions struct {
	Source         ChangeSource
	Logger         *logging.Logger
	AllowedOrigins []string
	MaxClients     int
	MaxPayload     int64
	PingInterval   time.Duration
	Buffer         int
	// Signer gates connections behind viewer tokens when set.
	Signer *auth.Signer
}

// Hub streams viewpoint changes to websocket clients. Every client watches the
// change stream directly; a slow client drops changes instead of stalling the tick.
type Hub struct {
	source       ChangeSource
	log          *logging.Logger
	upgrader     websocket.Upgrader
	maxClients   int
	maxPayload   int64
	pingInterval time.Duration
	buffer       int
	signer       *auth.Signer

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn    *websocket.Conn
	id      string
	subject string
}

// NewHub builds a hub reading from opts.Source.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = 1 << 16
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	hub := &Hub{
		source:       opts.Source,
		log:          logger.With(logging.String("component", "feed")),
		maxClients:   opts.MaxClients,
		maxPayload:   opts.MaxPayload,
		pingInterval: opts.PingInterval,
		buffer:       opts.Buffer,
		signer:       opts.Signer,
		clients:      make(map[*hubClient]struct{}),
	}
	hub.upgrader = websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)}
	return hub
}

// Clients reports the number of connected feed clients.
func (h *Hub) Clients() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams changes until the peer leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	reqLogger := h.log.With(logging.String("remote_addr", r.RemoteAddr))
	subject := ""
	if h.signer != nil {
		token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
		if token == "" {
			token = bearerToken(r)
		}
		if token == "" {
			token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
		}
		claims, err := h.signer.Verify(token)
		if err != nil {
			reqLogger.Warn("feed connection rejected", logging.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		subject = claims.Subject
	}
	if h.maxClients > 0 && h.Clients() >= h.maxClients {
		reqLogger.Warn("feed connection rejected: client limit reached", logging.Int("max_clients", h.maxClients))
		http.Error(w, "too many feed clients", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		reqLogger.Warn("feed upgrade failed", logging.Error(err))
		return
	}

	client := &hubClient{conn: conn, id: r.RemoteAddr, subject: subject}
	ctx, cancel := context.WithCancel(context.Background())
	changes, sub := h.source.Watch(ctx, h.buffer)
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	reqLogger.Info("feed client connected", logging.String("subject", subject))

	//1.- The reader only tracks liveness; clients never push commands over the feed.
	go func() {
		defer cancel()
		conn.SetReadLimit(h.maxPayload)
		_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go h.writePump(client, changes, sub, cancel, reqLogger)
}

func (h *Hub) writePump(client *hubClient, changes <-chan events.Change, sub *events.Subscription, cancel context.CancelFunc, logger *logging.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		cancel()
		sub.Unsubscribe()
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		client.conn.Close()
		logger.Info("feed client disconnected")
	}()

	//2.- Late joiners receive the current viewpoint before live changes.
	var sent uint64
	if last, ok := h.source.Last(); ok {
		if !h.send(client, last, logger) {
			return
		}
		sent = last.Sequence
	}
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				_ = client.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
			if change.Sequence <= sent {
				continue
			}
			if !h.send(client, change, logger) {
				return
			}
			sent = change.Sequence
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.pingInterval)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(client *hubClient, change events.Change, logger *logging.Logger) bool {
	payload, err := change.MarshalJSON()
	if err != nil {
		logger.Error("encode change failed", logging.Error(err))
		return true
	}
	_ = client.conn.SetWriteDeadline(time.Now().Add(h.pingInterval))
	if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logger.Debug("feed write failed", logging.Error(err))
		return false
	}
	return true
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(strings.TrimRight(r.Header.Get("Origin"), "/"))
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
