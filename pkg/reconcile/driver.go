// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// DriverOption configures a Driver.
type DriverOption func(d *Driver)

// WithLogger sets the logger for the Driver.
func WithLogger(l logr.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = l
	}
}

// WithClock sets the clock used for sleeping and elapsed-time accounting.
// Tests inject a fake clock here.
func WithClock(c clock.Clock) DriverOption {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithRecoveryBackoff sets the pacing between teardown+retry cycles.
func WithRecoveryBackoff(initial, max time.Duration) DriverOption {
	return func(d *Driver) {
		d.recoveryInitial = initial
		d.recoveryMax = max
	}
}

// Driver runs the reconcile loop for a single Target at a time.
type Driver struct {
	logger          logr.Logger
	clock           clock.Clock
	recoveryInitial time.Duration
	recoveryMax     time.Duration
}

// NewDriver creates a Driver with a real clock and a discarding logger.
func NewDriver(opts ...DriverOption) *Driver {
	d := &Driver{
		logger:          logr.Discard(),
		clock:           clock.RealClock{},
		recoveryInitial: 2 * time.Second,
		recoveryMax:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Drive runs target's reconcile loop until its verification predicate is
// satisfied, its time budget runs out, or recovery is exhausted.
//
// The loop probes first, so an already-satisfied Target returns Ready without
// the reconcile action being issued at all. The action runs on the first
// unsatisfied iteration and again only after a transient failure signal: the
// previous action errored, or the probe observed a known-bad sub-state. A bad
// sub-state triggers at most one
// teardown+retry cycle per occurrence and resets the elapsed-time budget
// exactly once per occurrence, capped by the Target's MaxRecoveries so a
// persistently bad state cannot loop forever.
func (d *Driver) Drive(ctx context.Context, t Target) Outcome {
	log := d.logger.WithValues("target", t.Name)

	start := d.clock.Now()
	deadline := start.Add(t.timeout())
	needAction := t.Action != nil

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.recoveryInitial
	bo.MaxInterval = d.recoveryMax
	bo.MaxElapsedTime = 0

	var (
		last       Observation
		attempts   int
		recoveries int
	)

	outcome := func(state State, reason string) Outcome {
		return Outcome{
			State:      state,
			Reason:     reason,
			Last:       last,
			Attempts:   attempts,
			Recoveries: recoveries,
			Elapsed:    d.clock.Now().Sub(start),
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return outcome(StateFailed, fmt.Sprintf("canceled: %v", err))
		}

		obs, probeErr := t.Probe(ctx)
		attempts++
		if probeErr != nil {
			// Probe errors are treated as "not yet ready", not as bad state.
			log.V(1).Info("probe failed", "error", probeErr.Error())
			last = Observation{Summary: fmt.Sprintf("probe failed: %v", probeErr)}
		} else {
			last = obs

			// Probing before acting keeps the fast path idempotent: an
			// already-satisfied Target returns without any action issued.
			if t.Verify(obs) {
				log.Info("target ready", "attempts", attempts, "elapsed", d.clock.Now().Sub(start).String())
				return outcome(StateReady, "")
			}

			if t.Bad != nil && t.Bad(obs) {
				if recoveries >= t.maxRecoveries() {
					return outcome(StateFailed, fmt.Sprintf("bad state persisted after %d recoveries: %s", recoveries, obs.Summary))
				}
				recoveries++
				log.Info("bad state detected, tearing down and retrying",
					"observed", obs.Summary, "recovery", recoveries)
				if t.Recover != nil {
					if err := t.Recover(ctx); err != nil {
						log.Error(err, "recovery teardown failed")
					}
				}
				needAction = t.Action != nil
				// Reset the elapsed-time budget for this sub-attempt.
				deadline = d.clock.Now().Add(t.timeout())
				d.clock.Sleep(bo.NextBackOff())
				continue
			}
		}

		if !d.clock.Now().Before(deadline) {
			return outcome(StateTimedOut, fmt.Sprintf("not ready within %s, last observed: %s", t.timeout(), last.Summary))
		}

		if needAction {
			log.V(1).Info("issuing reconcile action")
			if err := t.Action(ctx); err != nil {
				// Transient failure signal: keep needAction set so the
				// action is re-issued on the next tick.
				log.Error(err, "reconcile action failed, will retry")
				last = Observation{Summary: fmt.Sprintf("action failed: %v", err)}
			} else {
				needAction = false
			}
		}

		log.V(1).Info("not ready, polling again", "observed", last.Summary, "attempt", attempts)
		d.clock.Sleep(t.interval())
	}
}
