package task

import (
	"strconv"
	"strings"
	"time"
)

// Simulated wait scaling. Estimated durations model realistic staggering in
// tests, not scheduling guarantees, so real-world units map to milliseconds
// and the total is capped.
const (
	defaultMaxSimulatedWait = 100 * time.Millisecond
	approvalSimulatedWait   = 5 * time.Millisecond
	fallbackSimulatedWait   = 5 * time.Millisecond
)

var unitScale = map[string]time.Duration{
	"second": 1 * time.Millisecond,
	"minute": 2 * time.Millisecond,
	"hour":   5 * time.Millisecond,
	"day":    10 * time.Millisecond,
}

// simulatedWait maps an "N unit" duration string (e.g. "2 days", "30
// minutes") to a deterministic, capped wait. Unparseable estimates get a
// small fixed wait.
func simulatedWait(estimate string, cap time.Duration) time.Duration {
	if cap <= 0 {
		cap = defaultMaxSimulatedWait
	}

	fields := strings.Fields(strings.ToLower(strings.TrimSpace(estimate)))
	if len(fields) != 2 {
		return min(fallbackSimulatedWait, cap)
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return min(fallbackSimulatedWait, cap)
	}

	unit := strings.TrimSuffix(fields[1], "s")
	scale, ok := unitScale[unit]
	if !ok {
		return min(fallbackSimulatedWait, cap)
	}

	return min(time.Duration(n)*scale, cap)
}
