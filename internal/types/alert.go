package types

import "time"

// Kind classifies what raised an alert.
type Kind string

const (
	KindEmergency Kind = "emergency"
	KindWarning   Kind = "warning"
	KindInfo      Kind = "info"
)

// Priority is assigned once, at creation, from the alert kind.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Alert is a caregiver-facing alert record. Only Acknowledged changes after creation.
type Alert struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	Acknowledged bool      `json:"acknowledged"`
	Priority     Priority  `json:"priority"`
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindEmergency, KindWarning, KindInfo:
		return Kind(s), true
	}
	return "", false
}

// PriorityFor returns the priority policy for a kind.
func PriorityFor(k Kind) Priority {
	switch k {
	case KindEmergency:
		return PriorityHigh
	case KindWarning:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// SeverityRank orders kinds for picking the most pressing alert.
func SeverityRank(k Kind) int {
	switch k {
	case KindEmergency:
		return 3
	case KindWarning:
		return 2
	default:
		return 1
	}
}

// PushPriority maps a kind to the push provider's priority scale
// (0 normal, 1 high, 2 critical).
func PushPriority(k Kind) int {
	switch k {
	case KindEmergency, KindWarning:
		return 2
	default:
		return 1
	}
}
