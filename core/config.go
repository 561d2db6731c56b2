package core

import "time"

// Config carries the two tunables the specification recognizes: the
// proposer's delay before assembling a block at a new height, and the
// base round timeout (scaled by 2^round). This mirrors
// original_source/bft/src/consensus/config.rs's Config{request_time,
// block_period}, expressed as time.Duration instead of raw
// milliseconds.
type Config struct {
	RequestTime time.Duration
	BlockPeriod time.Duration
}

// NewConfig builds a Config from its two fields, matching the Rust
// source's Config::new constructor shape.
func NewConfig(requestTime, blockPeriod time.Duration) Config {
	return Config{RequestTime: requestTime, BlockPeriod: blockPeriod}
}

// DefaultConfig returns reasonable defaults for local development and
// tests.
func DefaultConfig() Config {
	return Config{
		RequestTime: 2 * time.Second,
		BlockPeriod: 10 * time.Second,
	}
}

// maxRoundTimeout ceilings the exponential backoff below. A round
// timer this long has long since stopped being useful for liveness;
// it exists only so the multiplication below can never overflow
// time.Duration's int64 nanoseconds and wrap negative, which would
// make time.NewTimer fire immediately and turn backoff into a
// round-change storm.
const maxRoundTimeout = time.Hour

// roundTimeout computes block_period * 2^round, the exponential
// round-timer backoff described in §4.4/§8, clamped to
// maxRoundTimeout.
func roundTimeout(base time.Duration, round uint64) time.Duration {
	if base <= 0 {
		return maxRoundTimeout
	}

	if round > 62 {
		round = 62
	}

	shift := uint64(1) << round

	if shift > uint64(maxRoundTimeout/base) {
		return maxRoundTimeout
	}

	return base * time.Duration(shift)
}
