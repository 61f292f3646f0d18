// Package live subscribes to the roster backend's WebSocket channel of
// record changes.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Tiliavir/rosterctl/internal/logging"
	"github.com/Tiliavir/rosterctl/internal/metrics"
	"github.com/Tiliavir/rosterctl/internal/model"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 32 * time.Second
	pingInterval      = 30 * time.Second
	readTimeout       = 2 * pingInterval
)

// Handler receives each decoded event. It runs on the listener goroutine.
type Handler func(model.ActivityEvent)

// TokenFunc returns the bearer token used when (re)connecting. It may be nil.
type TokenFunc func() (string, error)

// Subscriber maintains a WebSocket connection and delivers events until it
// is closed or its context is cancelled.
type Subscriber struct {
	url     string
	token   TokenFunc
	handler Handler

	conn   *websocket.Conn
	connMu sync.Mutex

	// minDelay is the first reconnect wait; tests shorten it.
	minDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber creates a subscriber for url. Call Start to connect.
func NewSubscriber(url string, token TokenFunc, handler Handler) *Subscriber {
	return &Subscriber{
		url:      url,
		token:    token,
		handler:  handler,
		minDelay: minReconnectDelay,
	}
}

// Start dials the endpoint once and, on success, keeps listening in the
// background, reconnecting with exponential backoff when the connection
// drops.
func (s *Subscriber) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	if err := s.connect(ctx); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.wg.Add(2)
	go s.listen(ctx)
	go s.pingLoop(ctx)
	return nil
}

// Close unsubscribes and waits for the background goroutines to exit.
func (s *Subscriber) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConnection()
	s.wg.Wait()
}

func (s *Subscriber) connect(ctx context.Context) error {
	header := http.Header{}
	if s.token != nil {
		tok, err := s.token()
		if err != nil {
			return err
		}
		if tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	logging.Info().Str("url", s.url).Msg("live channel connected")
	return nil
}

func (s *Subscriber) current() *websocket.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Subscriber) closeConnection() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Subscriber) listen(ctx context.Context) {
	defer s.wg.Done()
	delay := s.minDelay

	for ctx.Err() == nil {
		conn := s.current()
		if conn == nil {
			logging.Info().Dur("delay", delay).Msg("live channel lost, reconnecting")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay = min(delay*2, maxReconnectDelay)
			metrics.LiveReconnects.Inc()
			if err := s.connect(ctx); err != nil {
				logging.Warn().Err(err).Msg("live channel reconnect failed")
				continue
			}
			delay = s.minDelay
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Msg("live channel closed by server")
			} else if !errors.Is(err, websocket.ErrCloseSent) {
				logging.Warn().Err(err).Msg("live channel read error")
			}
			s.dropConnection(conn)
			continue
		}

		var ev model.ActivityEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logging.Warn().Err(err).Msg("ignoring malformed live event")
			continue
		}
		s.handler(ev)
	}
}

// dropConnection forgets conn if it is still the current connection.
func (s *Subscriber) dropConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == conn {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Subscriber) pingLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					logging.Debug().Err(err).Msg("live channel ping failed")
				}
			}
			s.connMu.Unlock()
		}
	}
}
