// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile implements the poll/verify/retry engine that drives
// external state (Helm releases, cluster objects, HTTP services) toward a
// declared target. One Target describes one piece of desired external state
// together with the means to probe and achieve it; the Driver runs the loop;
// the Sequencer runs an ordered list of Targets.
package reconcile

import (
	"context"
	"time"
)

// Observation is the result of one read-only probe of external state.
type Observation struct {
	// Summary is a short human-readable description of what was observed,
	// surfaced in the Outcome when a Target fails.
	Summary string
	// Raw optionally carries the probed value for the Verify and Bad
	// predicates to inspect.
	Raw any
}

// Target declares one piece of desired external state.
//
// Probe must be read-only; all mutation happens through Action and Recover.
// Action must be idempotent: the Driver may issue it again after a transient
// failure or after a recovery cycle.
type Target struct {
	// Name identifies the Target in logs and outcomes.
	Name string

	// Probe reads the current external state.
	Probe func(ctx context.Context) (Observation, error)

	// Action is the idempotent reconcile action. May be nil for
	// verify-only Targets.
	Action func(ctx context.Context) error

	// Verify reports whether the observation satisfies the Target.
	Verify func(obs Observation) bool

	// Bad reports whether the observation shows a known-bad terminal
	// sub-state (failed release, crash-looping pod). Optional.
	Bad func(obs Observation) bool

	// Recover tears down the partial result before the Action is
	// re-issued. Only called when Bad reported true. Optional.
	Recover func(ctx context.Context) error

	// Timeout bounds one attempt's elapsed time. The budget is reset
	// once per detected bad state, up to MaxRecoveries times.
	Timeout time.Duration

	// Interval is the poll interval. Defaults to DefaultInterval.
	Interval time.Duration

	// MaxRecoveries caps teardown+retry cycles per drive. Zero means
	// DefaultMaxRecoveries. Use NoRecovery to forbid recovery entirely.
	MaxRecoveries int

	// Soft marks the Target as non-fatal: the Sequencer logs a warning
	// on failure and advances instead of aborting.
	Soft bool
}

const (
	DefaultInterval      = 5 * time.Second
	DefaultTimeout       = 10 * time.Minute
	DefaultMaxRecoveries = 3

	// NoRecovery disables teardown+retry cycles for a Target.
	NoRecovery = -1
)

func (t Target) interval() time.Duration {
	if t.Interval <= 0 {
		return DefaultInterval
	}
	return t.Interval
}

func (t Target) timeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

func (t Target) maxRecoveries() int {
	switch {
	case t.MaxRecoveries == NoRecovery:
		return 0
	case t.MaxRecoveries == 0:
		return DefaultMaxRecoveries
	default:
		return t.MaxRecoveries
	}
}

// State is the terminal state of driving a Target.
type State string

const (
	StateReady    State = "ready"
	StateTimedOut State = "timed-out"
	StateFailed   State = "failed"
)

// Attempt records one probe iteration. Attempts are ephemeral and only kept
// for the current drive; the last few are surfaced on failure.
type Attempt struct {
	At        time.Time
	Observed  string
	Satisfied bool
}

// Outcome is the terminal result of driving a Target.
type Outcome struct {
	State      State
	Reason     string
	Last       Observation
	Attempts   int
	Recoveries int
	Elapsed    time.Duration
}

// Ready reports whether the Target settled successfully.
func (o Outcome) Ready() bool { return o.State == StateReady }
