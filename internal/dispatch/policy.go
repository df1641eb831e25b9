package dispatch

import (
	"fmt"
	"strings"
)

// Mode is the caller-selected delivery of per-element failures.
type Mode int

const (
	// ThrowOnFirstError returns every value, or the lowest-index element error.
	ThrowOnFirstError Mode = iota
	// CollectAsResults returns one Outcome per element.
	CollectAsResults
	// StreamViaCallbacks invokes a success or error callback per element.
	StreamViaCallbacks
)

var modeNames = []string{"throw", "collect", "stream"}

func (m Mode) String() string {
	if int(m) >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the short names used by the server and CLI
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "throw", "throwonfirsterror":
		return ThrowOnFirstError, nil
	case "", "collect", "collectasresults", "results":
		return CollectAsResults, nil
	case "stream", "streamviacallbacks", "callbacks":
		return StreamViaCallbacks, nil
	default:
		return 0, fmt.Errorf("unknown error policy %q", s)
	}
}
