package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Options tunes a Dispatcher. Zero values select defaults.
type Options struct {
	Unit       string
	Cooldown   time.Duration
	CacheSize  int
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
	Now        func() time.Time
}

// Dispatcher sends pushes fire-and-forget, suppressing repeats of the same
// fingerprint within the cooldown window and capping the overall push rate.
type Dispatcher struct {
	pusher   Pusher
	logger   zerolog.Logger
	unit     string
	timeout  time.Duration
	now      func() time.Time
	cooldown *CooldownRegistry
	limiter  *rate.Limiter

	mu       sync.Mutex
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering through pusher
func NewDispatcher(pusher Pusher, opts Options, logger zerolog.Logger) (*Dispatcher, error) {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	registry, err := NewCooldownRegistry(opts.Cooldown, opts.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		pusher:   pusher,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		unit:     opts.Unit,
		timeout:  opts.Timeout,
		now:      opts.Now,
		cooldown: registry,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
	}, nil
}

// Send requests a push and reports whether one was started. It never blocks
// on the network and never reports delivery failures to the caller.
func (d *Dispatcher) Send(title, message string, priority int, group string) bool {
	key := Fingerprint(title, message, group)

	d.mu.Lock()
	now := d.now()
	if d.cooldown.Active(key, now) {
		d.mu.Unlock()
		d.logger.Debug().Str("fingerprint", key).Msg("Push suppressed by cooldown")
		metrics.Pushes.WithLabelValues(d.unit, metrics.OutcomeCooldown).Inc()
		return false
	}
	if !d.limiter.AllowN(now, 1) {
		d.mu.Unlock()
		d.logger.Warn().Str("fingerprint", key).Msg("Push rate limit exceeded, dropping notification")
		metrics.Pushes.WithLabelValues(d.unit, metrics.OutcomeRateLimited).Inc()
		return false
	}
	d.cooldown.Record(key, now)
	d.inflight.Add(1)
	d.mu.Unlock()

	go d.deliver(Push{Title: title, Message: message, Priority: priority, Group: group})
	return true
}

func (d *Dispatcher) deliver(p Push) {
	defer d.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.pusher.Push(ctx, p); err != nil {
		ev := d.logger.Warn().Err(err).Str("title", p.Title).Int("priority", p.Priority)
		var perr *ProviderError
		if errors.As(err, &perr) {
			ev = ev.Int("status", perr.StatusCode).Str("body", perr.Body)
		}
		ev.Msg("Push notification failed")
		metrics.Pushes.WithLabelValues(d.unit, metrics.OutcomeFailed).Inc()
		return
	}

	d.logger.Info().
		Str("title", p.Title).
		Int("priority", p.Priority).
		Str("group", p.Group).
		Msg("Push notification sent")
	metrics.Pushes.WithLabelValues(d.unit, metrics.OutcomeSent).Inc()
}

// Wait blocks until in-flight pushes finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrackedFingerprints returns the cooldown registry size.
func (d *Dispatcher) TrackedFingerprints() int {
	return d.cooldown.Len()
}
