package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkarlin/vwap-settler/internal/model"
	"github.com/mkarlin/vwap-settler/internal/stream"
)

var (
	// ErrStreamClosed is returned when connecting a stream that was closed.
	ErrStreamClosed = errors.New("stream already closed")

	// ErrStreamStale is emitted when no heartbeat arrives within the timeout.
	ErrStreamStale = errors.New("stream connection stale")
)

// StreamConfig holds websocket match-stream settings.
type StreamConfig struct {
	URL          string
	ProductIDs   []string
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

// Stream subscribes to the exchange's websocket "matches" channel and pushes
// converted trades into a ring buffer drained by the cycle loop. The stream
// is a lossy accelerator: anything dropped here is recovered by the next
// REST fetch, so failures only reduce freshness, never correctness.
type Stream struct {
	cfg    StreamConfig
	out    *stream.Ring[model.Trade]
	logger *slog.Logger

	conn *websocket.Conn

	errs chan error
	done chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	lastPongAt time.Time
	closed     bool
}

// NewStream creates a match stream writing into out.
func NewStream(cfg StreamConfig, out *stream.Ring[model.Trade], logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 90 * time.Second
	}
	return &Stream{
		cfg:    cfg,
		out:    out,
		logger: logger,
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the websocket, subscribes to the matches channel for the
// configured products, and starts the read and heartbeat loops.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}

	sub, err := json.Marshal(subscribeRequest{
		Type:       "subscribe",
		ProductIDs: s.cfg.ProductIDs,
		Channels:   []string{"matches"},
	})
	if err != nil {
		conn.Close()
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastPongAt = time.Now()
	s.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.lastPongAt = time.Now()
		s.mu.Unlock()
		return nil
	})

	go s.readLoop()
	go s.heartbeatLoop()

	s.logger.Debug("match stream connected",
		"url", s.cfg.URL,
		"products", s.cfg.ProductIDs,
	)

	return nil
}

// Close gracefully shuts the stream down.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	conn := s.conn
	s.mu.Unlock()

	close(s.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}

// Errors returns the stream's error channel. A received error means the
// stream is dead; the caller decides whether to reconnect.
func (s *Stream) Errors() <-chan error {
	return s.errs
}

// IsConnected reports the current connection state.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// readLoop decodes match messages and pushes them into the ring.
func (s *Stream) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		receivedAt := time.Now().UTC()

		if err != nil {
			select {
			case <-s.done:
			default:
				select {
				case s.errs <- err:
				default:
				}
			}
			return
		}

		var msg matchMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("undecodable stream message", "err", err)
			continue
		}
		if msg.Type != "match" && msg.Type != "last_match" {
			continue
		}

		raw := rawTrade{
			TradeID: msg.TradeID,
			Price:   msg.Price,
			Size:    msg.Size,
			Time:    msg.Time,
			Side:    msg.Side,
		}
		trade, err := raw.toModel(msg.ProductID, receivedAt)
		if err != nil {
			s.logger.Warn("dropping malformed stream trade",
				"product", msg.ProductID,
				"trade_id", msg.TradeID,
				"err", err,
			)
			continue
		}

		s.out.Push(trade)
	}
}

// heartbeatLoop pings the server and flags stale connections.
func (s *Stream) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			lastPong := s.lastPongAt
			s.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(s.cfg.WriteTimeout)
				s.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline)
				s.writeMu.Unlock()
				if err != nil {
					s.logger.Debug("failed to send ping", "err", err)
				}
			}

			if time.Since(lastPong) > s.cfg.PingTimeout {
				s.logger.Warn("no pong received, stream stale",
					"last_pong", lastPong,
					"timeout", s.cfg.PingTimeout,
				)
				select {
				case s.errs <- ErrStreamStale:
				default:
				}
				return
			}
		}
	}
}
