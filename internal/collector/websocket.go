package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nicuwatch/nicuwatch/internal/router"
	"github.com/rs/zerolog"
)

const defaultDialTimeout = 10 * time.Second

// WebsocketSource reads {"event": name, "data": payload} text frames from a
// websocket and reconnects with exponential backoff when the connection drops.
type WebsocketSource struct {
	url     string
	dialer  *websocket.Dialer
	backoff Backoff
	logger  zerolog.Logger
	health  *healthTracker
}

// NewWebsocketSource creates a websocket source for url
func NewWebsocketSource(url string, logger zerolog.Logger) *WebsocketSource {
	return &WebsocketSource{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultDialTimeout,
			ReadBufferSize:   16384,
			WriteBufferSize:  4096,
		},
		backoff: Backoff{Min: defaultBackoffMin, Max: defaultBackoffMax},
		logger:  logger.With().Str("component", "websocket-source").Str("url", url).Logger(),
		health:  newHealthTracker("websocket"),
	}
}

// Name returns the source type
func (s *WebsocketSource) Name() string { return "websocket" }

// Health returns the current health status
func (s *WebsocketSource) Health() Health { return s.health.snapshot() }

// Run connects, reads events into sink, and reconnects until ctx is cancelled.
func (s *WebsocketSource) Run(ctx context.Context, sink Sink) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			wait := s.backoff.Duration(attempt)
			s.health.failed(err, true)
			s.logger.Warn().
				Err(err).
				Dur("backoff", wait).
				Int("attempt", attempt).
				Msg("Websocket connection failed, retrying")
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}

		attempt = 0
		s.health.connected()
		s.logger.Info().Msg("Websocket connected")
		sink.SetConnected(true)

		err = s.readLoop(ctx, conn, sink)
		sink.SetConnected(false)
		if ctx.Err() != nil {
			s.health.failed(nil, false)
			return nil
		}

		s.health.failed(err, true)
		s.logger.Warn().
			Err(err).
			Dur("retry_in", s.backoff.Min).
			Msg("Websocket connection lost, will reconnect")
		if !sleepCtx(ctx, s.backoff.Min) {
			return nil
		}
	}
}

func (s *WebsocketSource) readLoop(ctx context.Context, conn *websocket.Conn, sink Sink) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var ev router.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
			s.logger.Debug().Err(err).Int("bytes", len(data)).Msg("Skipping unrecognised frame")
			continue
		}
		s.health.event()
		sink.Handle(ev)
	}
}
