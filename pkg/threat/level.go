// Package threat defines the result model shared by every analysis layer:
// threat levels, per-layer analysis results, contributing factors, and the
// terminal ScanResult produced by the detection engine.
package threat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is the ordered severity scale used across all scorers. Unknown is the
// fallback for layers that could not produce a verdict; it never satisfies an
// AtLeast comparison, so an Unknown result can never trigger an early exit.
type Level int

const (
	Unknown Level = iota
	Low
	Medium
	High
	Critical
)

var levelNames = map[Level]string{
	Unknown:  "UNKNOWN",
	Low:      "LOW",
	Medium:   "MEDIUM",
	High:     "HIGH",
	Critical: "CRITICAL",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseLevel maps a level name (case-insensitive) back to a Level.
// Unrecognized names come back as Unknown, never as an error, so a corrupted
// cache entry degrades instead of failing a read.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return Low
	case "MEDIUM":
		return Medium
	case "HIGH":
		return High
	case "CRITICAL":
		return Critical
	default:
		return Unknown
	}
}

// AtLeast reports whether l is at or above min on the severity scale.
// Unknown compares below everything, including Low.
func (l Level) AtLeast(min Level) bool {
	if l == Unknown {
		return false
	}
	return l >= min
}

// MarshalJSON encodes levels as their names so persisted entries and API
// responses stay readable.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("threat level: %w", err)
	}
	*l = ParseLevel(s)
	return nil
}
