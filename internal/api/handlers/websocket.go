package handlers

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/netscope/internal/api/middleware"
	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/netprobe"
	"github.com/anstrom/netscope/internal/portscan"
	"github.com/anstrom/netscope/internal/report"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
)

// Stream message types.
const (
	MessageHost   = "host"
	MessagePort   = "port"
	MessageReport = "report"
	MessageError  = "error"
)

// WebSocketMessage represents a WebSocket message structure.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// StreamHandler runs a discovery sweep or port scan over a websocket,
// pushing each finding as it arrives and the full report at the end.
type StreamHandler struct {
	scanner  *ScannerHandler
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewStreamHandler creates a stream handler sharing the engines and
// defaults of scanner.
func NewStreamHandler(scanner *ScannerHandler, cors config.CORSConfig, logger *logging.Logger) *StreamHandler {
	return &StreamHandler{
		scanner: scanner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cors),
		},
		logger: logger.WithFields("handler", "websocket"),
	}
}

// streamJob is a validated request ready to run on an open connection.
type streamJob func(ctx context.Context, s *stream) (interface{}, error)

// Serve handles GET /api/scanner/ws?kind=network|ports.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	job, err := h.parseJob(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &stream{conn: conn, requestID: middleware.GetRequestID(r)}
	go s.readPump(cancel)
	go s.pingLoop(ctx)

	doc, err := job(ctx, s)
	if err != nil {
		h.logger.Warn("Streamed job failed", "request_id", s.requestID, "error", err)
		_ = s.send(MessageError, report.Error(err))
	} else {
		_ = s.send(MessageReport, doc)
	}
	s.close()
}

func (h *StreamHandler) parseJob(r *http.Request) (streamJob, error) {
	q := r.URL.Query()

	switch kind := q.Get("kind"); kind {
	case report.KindNetwork:
		low, err := optionalOctet(q.Get("low"), "low")
		if err != nil {
			return nil, err
		}
		high, err := optionalOctet(q.Get("high"), "high")
		if err != nil {
			return nil, err
		}
		base, lo, hi := h.scanner.resolveSweep(q.Get("base"), low, high)
		if _, err := discovery.ParseSubnetBase(base); err != nil {
			return nil, err
		}
		if err := discovery.ValidateRange(lo, hi); err != nil {
			return nil, err
		}

		return func(ctx context.Context, s *stream) (interface{}, error) {
			hosts, err := h.scanner.discovery.Stream(ctx, base, lo, hi, func(host discovery.HostResult) {
				_ = s.send(MessageHost, host)
			})
			if err != nil {
				return nil, err
			}
			return report.Discovery(netprobe.LocalIPv4(), hosts), nil
		}, nil

	case report.KindPorts:
		target := q.Get("target")
		if target == "" {
			return nil, errors.ErrValidation("Target IP is required")
		}
		if err := portscan.ValidateTarget(target); err != nil {
			return nil, err
		}
		var ports []int
		if spec := q.Get("ports"); spec != "" {
			parsed, err := portscan.ParsePorts(spec)
			if err != nil {
				return nil, err
			}
			ports = parsed
		}

		return func(ctx context.Context, s *stream) (interface{}, error) {
			found, err := h.scanner.scanner.Stream(ctx, target, ports, func(p portscan.PortResult) {
				_ = s.send(MessagePort, p)
			})
			if err != nil {
				return nil, err
			}
			return report.Ports(target, found), nil
		}, nil

	case "":
		return nil, errors.ErrValidation("kind is required")
	default:
		return nil, errors.ErrValidation("Unknown kind " + strconv.Quote(kind))
	}
}

func optionalOctet(value, name string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.ErrValidation("Invalid value for " + name)
	}
	return &n, nil
}

// originChecker allows any origin when CORS is open, and otherwise only
// the configured origins.
func originChecker(cors config.CORSConfig) func(*http.Request) bool {
	allowed := make(map[string]bool, len(cors.AllowedOrigins))
	for _, o := range cors.AllowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

// stream serializes writes to one websocket connection.
type stream struct {
	conn      *websocket.Conn
	requestID string
	mu        sync.Mutex
}

func (s *stream) send(msgType string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(WebSocketMessage{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		RequestID: s.requestID,
	})
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// readPump drains client frames and cancels the job once the peer goes away.
func (s *stream) readPump(cancel context.CancelFunc) {
	defer cancel()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
