package sampling

import "time"

// Config tunes the peer-sampling service (spec §4.4, §4.5), grounded on
// original_source/config/peer_sampling.rs. ViewSize, HealingFactor and
// SwappingFactor are the c/H/S parameters spec §4.4's Merge procedure
// takes directly.
type Config struct {
	// ViewSize (c) bounds how many peers a node remembers.
	ViewSize int
	// HealingFactor (H) is how many of the oldest overflow peers Merge
	// discards first.
	HealingFactor int
	// SwappingFactor (S) is how many of the remaining overflow peers Merge
	// discards from the front next.
	SwappingFactor int
	// Push enables sending the local view buffer along with an outgoing
	// sampling request; when false the request carries no peers. Responses
	// are governed by Pull.
	Push bool
	// Pull enables responding to an incoming sampling request with a local
	// view buffer; when false no reply is sent at all.
	Pull bool
	// Period is the base interval between sampling rounds.
	Period time.Duration
	// PeriodDeviation adds up to this much additional random jitter to
	// Period on every round, so peers don't fall into lockstep.
	PeriodDeviation time.Duration
}

// DefaultConfig returns the peer-sampling defaults used when a node starts
// without an explicit override.
func DefaultConfig() Config {
	return Config{
		ViewSize:        30,
		HealingFactor:   3,
		SwappingFactor:  6,
		Push:            true,
		Pull:            true,
		Period:          10 * time.Second,
		PeriodDeviation: 2 * time.Second,
	}
}
