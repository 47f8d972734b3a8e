package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/dispatch"
	"github.com/nixxel-company-limited/escpos-print-bridge/job"
	"github.com/nixxel-company-limited/escpos-print-bridge/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20
)

// Envelope is a request sent by the web UI.
type Envelope struct {
	ID      string               `json:"id"`
	Kind    dispatch.RequestKind `json:"kind"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

// Reply answers one Envelope. Exactly one of Result, Config or Error is set.
type Reply struct {
	ID     string           `json:"id"`
	Result *job.Result      `json:"result,omitempty"`
	Config *config.Snapshot `json:"config,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// RequestHandler is the dispatcher as seen by the transport.
type RequestHandler interface {
	Handle(ctx context.Context, kind dispatch.RequestKind, payload json.RawMessage) dispatch.Response
}

// WSHandler upgrades HTTP requests to websocket connections and serves
// envelopes on them. Requests on one connection run concurrently; replies
// are matched by id.
type WSHandler struct {
	handler  RequestHandler
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewWSHandler creates a handler. requestsPerSecond <= 0 disables rate
// limiting.
func NewWSHandler(h RequestHandler, requestsPerSecond float64, logger *slog.Logger) *WSHandler {
	limit := rate.Inf
	burst := 0
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond*2))
	}
	return &WSHandler{
		handler: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The bridge listens on localhost for the kiosk UI, which may be
			// served from file:// or a dev server on another port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limit:  limit,
		burst:  burst,
		logger: logging.Or(logger).With("component", "ws"),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.logger.Debug("client connected", "remote", r.RemoteAddr)

	c := &wsConn{
		conn:    conn,
		limiter: rate.NewLimiter(h.limit, h.burst),
		done:    make(chan struct{}),
	}
	go c.pingLoop()
	h.readLoop(r.Context(), c)
	h.logger.Debug("client disconnected", "remote", r.RemoteAddr)
}

func (h *WSHandler) readLoop(ctx context.Context, c *wsConn) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Print jobs outlive the connection: a closed tab must not abort a
	// receipt halfway through.
	jobCtx := context.WithoutCancel(ctx)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("unexpected close", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.reply(Reply{Error: "malformed request: " + err.Error()})
			continue
		}
		if !c.limiter.Allow() {
			h.logger.Warn("request rate limit exceeded", "id", env.ID, "kind", string(env.Kind))
			c.reply(Reply{ID: env.ID, Error: "rate limit exceeded"})
			continue
		}

		wg.Add(1)
		go func(env Envelope) {
			defer wg.Done()
			resp := h.handler.Handle(jobCtx, env.Kind, env.Payload)
			c.reply(Reply{ID: env.ID, Result: resp.Result, Config: resp.Config})
		}(env)
	}
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	conn    *websocket.Conn
	limiter *rate.Limiter
	mu      sync.Mutex
	done    chan struct{}
}

func (c *wsConn) reply(r Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteJSON(r)
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// NewMux serves the websocket endpoint on /ws and a liveness probe on
// /healthz.
func NewMux(ws *WSHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
