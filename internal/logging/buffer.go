// Package logging builds the process logger and keeps recent entries in
// memory for the /api/logs endpoint.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBufferSize is the number of entries retained by NewBuffer(0).
const DefaultBufferSize = 500

// Entry is one captured log line
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// Buffer is a thread-safe ring buffer of log entries. It implements io.Writer
// so it can sit behind a zerolog multi-writer.
type Buffer struct {
	entries []Entry
	size    int
	head    int
	count   int
	now     func() time.Time
	mu      sync.RWMutex
}

// NewBuffer creates a buffer holding the last size entries
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
		now:     time.Now,
	}
}

// Write implements io.Writer for capturing log output
func (b *Buffer) Write(p []byte) (int, error) {
	entry := parseEntry(p, b.now())

	b.mu.Lock()
	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()

	return len(p), nil
}

// Entries returns all retained entries, oldest first
func (b *Buffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Entry, b.count)
	start := 0
	if b.count == b.size {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.size]
	}
	return result
}

// Recent returns the most recent n entries, optionally restricted to level.
func (b *Buffer) Recent(n int, level string) []Entry {
	entries := b.Entries()
	if level != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// Clear drops all entries
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

func parseEntry(p []byte, now time.Time) Entry {
	raw := strings.TrimRight(string(p), "\n")
	entry := Entry{Timestamp: now, Level: "info", Message: raw, Raw: raw}

	var fields struct {
		Level     string    `json:"level"`
		Message   string    `json:"message"`
		Time      json.RawMessage `json:"time"`
		Component string    `json:"component"`
		Unit      string    `json:"unit"`
	}
	if err := json.Unmarshal(p, &fields); err != nil {
		return entry
	}
	if fields.Level != "" {
		entry.Level = fields.Level
	}
	if fields.Message != "" {
		entry.Message = fields.Message
	}
	if ts, ok := parseTime(fields.Time); ok {
		entry.Timestamp = ts
	}
	entry.Component = fields.Component
	entry.Unit = fields.Unit
	return entry
}

// parseTime accepts RFC 3339 strings and Unix seconds, the two zerolog
// time formats in use.
func parseTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var ts time.Time
	if err := json.Unmarshal(raw, &ts); err == nil {
		return ts, true
	}
	var unix int64
	if err := json.Unmarshal(raw, &unix); err == nil {
		return time.Unix(unix, 0), true
	}
	return time.Time{}, false
}

// New builds the root logger. Output goes to stdout and every extra writer.
// An unknown level falls back to info.
func New(level string, extra ...io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	writers := append([]io.Writer{os.Stdout}, extra...)
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
