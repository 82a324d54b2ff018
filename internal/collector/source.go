// Package collector connects to the external event channels that feed a
// monitored unit: a websocket, an MQTT broker, a Redis stream or the
// built-in simulator.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/nicuwatch/nicuwatch/internal/router"
	"github.com/rs/zerolog"
)

const (
	defaultBackoffMin = 2 * time.Second
	defaultBackoffMax = 120 * time.Second
)

// ErrUnknownSource is returned for an unsupported source type.
var ErrUnknownSource = errors.New("unknown source type")

// Sink receives events and connection state from a source.
type Sink interface {
	Handle(ev router.Event)
	SetConnected(connected bool)
}

// Source delivers events to a sink until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
	Health() Health
}

// Health tracks the connection state of a source
type Health struct {
	Source         string    `json:"source"`
	Connected      bool      `json:"connected"`
	ConnectedSince time.Time `json:"connected_since"`
	LastEvent      time.Time `json:"last_event"`
	LastError      string    `json:"last_error,omitempty"`
	ReconnectCount int       `json:"reconnect_count"`
	EventCount     int64     `json:"event_count"`
}

// Backoff holds reconnect backoff configuration
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// Duration returns the wait before reconnect attempt number attempt.
func (b Backoff) Duration(attempt int) time.Duration {
	if attempt <= 0 {
		return b.Min
	}
	if attempt > 16 {
		attempt = 16
	}
	backoff := b.Min << attempt
	if backoff > b.Max || backoff <= 0 {
		backoff = b.Max
	}
	jitter := time.Duration(0)
	if b.Min > 0 {
		jitter = time.Duration(rand.Int63n(int64(b.Min)))
	}
	return backoff + jitter
}

// New builds the source described by cfg.
func New(cfg config.SourceConfig, logger zerolog.Logger) (Source, error) {
	switch cfg.Type {
	case config.SourceWebsocket:
		return NewWebsocketSource(cfg.URL, logger), nil
	case config.SourceMQTT:
		return NewMQTTSource(cfg.MQTT, logger), nil
	case config.SourceRedis:
		return NewRedisSource(cfg.Redis, logger), nil
	case config.SourceSimulate:
		return NewSimulator(cfg.Simulate, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Type)
}

type healthTracker struct {
	mu sync.RWMutex
	h  Health
}

func newHealthTracker(source string) *healthTracker {
	return &healthTracker{h: Health{Source: source}}
}

func (t *healthTracker) connected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.h.Connected {
		t.h.ConnectedSince = time.Now()
	}
	t.h.Connected = true
	t.h.LastError = ""
}

func (t *healthTracker) failed(err error, reconnect bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h.Connected = false
	if err != nil {
		t.h.LastError = err.Error()
	}
	if reconnect {
		t.h.ReconnectCount++
	}
}

func (t *healthTracker) event() {
	t.mu.Lock()
	t.h.LastEvent = time.Now()
	t.h.EventCount++
	t.mu.Unlock()
}

func (t *healthTracker) snapshot() Health {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.h
}

// rawPayload turns a transport payload into JSON. Bytes that are not valid
// JSON are delivered as a JSON string.
func rawPayload(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(append([]byte(nil), b...))
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}

// sleepCtx waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
