package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCapturesZerologLines(t *testing.T) {
	buf := NewBuffer(10)
	logger := zerolog.New(buf).With().Timestamp().Logger()

	logger.Warn().Str("component", "dispatcher").Str("unit", "nicu-1").Msg("Push failed")
	logger.Info().Msg("Pipeline started")

	entries := buf.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "Push failed", entries[0].Message)
	assert.Equal(t, "dispatcher", entries[0].Component)
	assert.Equal(t, "nicu-1", entries[0].Unit)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, "info", entries[1].Level)
}

func TestBufferWrapsAround(t *testing.T) {
	buf := NewBuffer(3)
	for i := 0; i < 5; i++ {
		_, err := fmt.Fprintf(buf, `{"level":"info","message":"line %d"}`+"\n", i)
		require.NoError(t, err)
	}

	entries := buf.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "line 2", entries[0].Message)
	assert.Equal(t, "line 4", entries[2].Message)

	buf.Clear()
	assert.Empty(t, buf.Entries())
}

func TestBufferRecent(t *testing.T) {
	buf := NewBuffer(0)
	levels := []string{"info", "warn", "info", "error", "warn"}
	for i, lvl := range levels {
		fmt.Fprintf(buf, `{"level":%q,"message":"m%d"}`, lvl, i)
	}

	recent := buf.Recent(2, "")
	require.Len(t, recent, 2)
	assert.Equal(t, "m3", recent[0].Message)

	warns := buf.Recent(0, "warn")
	require.Len(t, warns, 2)
	assert.Equal(t, "m1", warns[0].Message)
	assert.Equal(t, "m4", warns[1].Message)
}

func TestBufferPlainText(t *testing.T) {
	buf := NewBuffer(2)
	buf.Write([]byte("not json\n"))

	entries := buf.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "not json", entries[0].Message)
}

func TestNewLoggerLevel(t *testing.T) {
	var out bytes.Buffer
	logger := New("warn", &out)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")

	assert.Equal(t, zerolog.InfoLevel, New("bogus").GetLevel())
}
