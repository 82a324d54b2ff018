package notifier

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCooldown is how long an identical notification stays suppressed.
const DefaultCooldown = 60 * time.Second

// CooldownRegistry remembers when each notification fingerprint was last sent.
// It is bounded: once full, the least recently touched fingerprint is evicted.
type CooldownRegistry struct {
	window time.Duration
	sent   *lru.Cache[string, time.Time]
}

// NewCooldownRegistry creates a registry holding at most size fingerprints.
func NewCooldownRegistry(window time.Duration, size int) (*CooldownRegistry, error) {
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("cooldown cache: %w", err)
	}
	return &CooldownRegistry{window: window, sent: cache}, nil
}

// Fingerprint identifies "the same notification" for cooldown purposes.
func Fingerprint(title, message, group string) string {
	return title + "|" + message + "|" + group
}

// Active reports whether key was sent within the window ending at now.
func (c *CooldownRegistry) Active(key string, now time.Time) bool {
	last, ok := c.sent.Peek(key)
	return ok && last.After(now.Add(-c.window))
}

// Record marks key as sent at now.
func (c *CooldownRegistry) Record(key string, now time.Time) {
	c.sent.Add(key, now)
}

// Len returns the number of tracked fingerprints.
func (c *CooldownRegistry) Len() int {
	return c.sent.Len()
}
