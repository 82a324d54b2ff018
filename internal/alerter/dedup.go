package alerter

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSeenCacheSize bounds each seen set.
const DefaultSeenCacheSize = 4096

// SeenSet is a bounded "have we seen this key" filter. Keys stay remembered
// until capacity forces out the least recently seen one.
type SeenSet struct {
	keys *lru.Cache[string, struct{}]
}

// NewSeenSet creates a set holding at most size keys.
func NewSeenSet(size int) (*SeenSet, error) {
	if size <= 0 {
		size = DefaultSeenCacheSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("seen set: %w", err)
	}
	return &SeenSet{keys: cache}, nil
}

// Add records key and reports whether it was new.
func (s *SeenSet) Add(key string) bool {
	if _, ok := s.keys.Get(key); ok {
		return false
	}
	s.keys.Add(key, struct{}{})
	return true
}

// Contains reports whether key has been seen.
func (s *SeenSet) Contains(key string) bool {
	return s.keys.Contains(key)
}

// Len returns the number of remembered keys.
func (s *SeenSet) Len() int {
	return s.keys.Len()
}

func emergencyKey(message string) string {
	return "EMG:" + message
}
