package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/nicuwatch/nicuwatch/internal/router"
	"github.com/rs/zerolog"
)

// RedisSource tails a Redis stream whose entries carry "event" and "data" fields.
type RedisSource struct {
	client  *redis.Client
	stream  string
	startID string
	block   time.Duration
	backoff Backoff
	logger  zerolog.Logger
	health  *healthTracker
}

// NewRedisSource creates a Redis stream source
func NewRedisSource(cfg config.RedisConfig, logger zerolog.Logger) *RedisSource {
	opts := &redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	}
	if cfg.PasswordEnv != "" {
		opts.Password = os.Getenv(cfg.PasswordEnv)
	}
	return newRedisSource(redis.NewClient(opts), cfg, logger)
}

func newRedisSource(client *redis.Client, cfg config.RedisConfig, logger zerolog.Logger) *RedisSource {
	startID := cfg.StartID
	if startID == "" {
		startID = "$"
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	return &RedisSource{
		client:  client,
		stream:  cfg.Stream,
		startID: startID,
		block:   block,
		backoff: Backoff{Min: defaultBackoffMin, Max: defaultBackoffMax},
		logger:  logger.With().Str("component", "redis-source").Str("stream", cfg.Stream).Logger(),
		health:  newHealthTracker("redis"),
	}
}

// Name returns the source type
func (s *RedisSource) Name() string { return "redis" }

// Health returns the current health status
func (s *RedisSource) Health() Health { return s.health.snapshot() }

// Run reads the stream from the configured start ID until ctx is cancelled.
func (s *RedisSource) Run(ctx context.Context, sink Sink) error {
	defer s.client.Close()

	lastID := s.startID
	attempt := 0
	connected := false
	setConnected := func(c bool) {
		if c != connected {
			connected = c
			sink.SetConnected(c)
		}
	}
	defer setConnected(false)

	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.stream, lastID},
			Count:   100,
			Block:   s.block,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			wait := s.backoff.Duration(attempt)
			s.health.failed(err, true)
			setConnected(false)
			s.logger.Warn().
				Err(err).
				Dur("backoff", wait).
				Int("attempt", attempt).
				Msg("Redis stream read failed, retrying")
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}

		attempt = 0
		s.health.connected()
		setConnected(true)

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				ev, ok := streamEvent(msg.Values)
				if !ok {
					s.logger.Debug().Str("id", msg.ID).Msg("Skipping stream entry without event name")
					continue
				}
				s.health.event()
				sink.Handle(ev)
			}
		}
	}
}

func streamEvent(values map[string]interface{}) (router.Event, bool) {
	name, _ := values["event"].(string)
	if name == "" {
		return router.Event{}, false
	}
	ev := router.Event{Name: name}
	switch data := values["data"].(type) {
	case string:
		ev.Payload = rawPayload([]byte(data))
	case nil:
	default:
		ev.Payload = rawPayload([]byte(fmt.Sprint(data)))
	}
	return ev, true
}
