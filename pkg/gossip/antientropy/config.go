package antientropy

import "time"

// Config tunes the anti-entropy pull loop (spec §4.6), grounded on
// original_source/config/database_messaging.rs.
type Config struct {
	// ActionsSize is the max number of change-log rows requested per
	// HeaderMessaging round.
	ActionsSize int
	// Period is the base interval between pull rounds.
	Period time.Duration
	// PeriodDeviation adds up to this much additional random jitter to
	// Period on every round.
	PeriodDeviation time.Duration
}

// DefaultConfig returns the anti-entropy defaults used when a node starts
// without an explicit override.
func DefaultConfig() Config {
	return Config{
		ActionsSize:     100,
		Period:          5 * time.Second,
		PeriodDeviation: 1 * time.Second,
	}
}
