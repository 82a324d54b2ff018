package alerter

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryingMonitor_CooldownWindow(t *testing.T) {
	e, sender, clock := newTestEngine(t)
	m := NewCryingMonitor(e, clock.Now, zerolog.Nop())

	_, fired := m.Observe(75)
	assert.True(t, fired)
	assert.Equal(t, StateCooldownActive, m.State())

	clock.Advance(4 * time.Second)
	_, fired = m.Observe(80)
	assert.False(t, fired)
	clock.Advance(5 * time.Second)
	_, fired = m.Observe(90)
	assert.False(t, fired)

	clock.Advance(52 * time.Second) // 61s after the first sample
	alert, fired := m.Observe(85)
	require.True(t, fired)
	assert.Equal(t, "High intensity crying detected (85%)", alert.Description)

	_, total := e.Counts()
	assert.Equal(t, 2, total)
	assert.Len(t, sender.Calls(), 2)
}

func TestCryingMonitor_Threshold(t *testing.T) {
	e, _, clock := newTestEngine(t)
	m := NewCryingMonitor(e, clock.Now, zerolog.Nop())

	for _, v := range []float64{0, 45, 70} {
		_, fired := m.Observe(v)
		assert.False(t, fired, "sample %v", v)
	}
	assert.Equal(t, StateBelowThreshold, m.State())

	alert, fired := m.Observe(70.6)
	require.True(t, fired)
	assert.Equal(t, "High intensity crying detected (71%)", alert.Description)
}

func TestCryingMonitor_CooldownEndsAfterWindow(t *testing.T) {
	e, _, clock := newTestEngine(t)
	m := NewCryingMonitor(e, clock.Now, zerolog.Nop())

	m.Observe(99)
	clock.Advance(CryingCooldown)
	_, fired := m.Observe(99)
	assert.False(t, fired, "cooldown is inclusive of its boundary")

	clock.Advance(time.Millisecond)
	_, fired = m.Observe(99)
	assert.True(t, fired)
}
