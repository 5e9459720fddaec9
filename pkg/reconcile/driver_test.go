// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

// newTestDriver returns a driver on a fake clock. FakeClock.Sleep steps the
// clock and returns immediately, so drives run synchronously in tests.
func newTestDriver() (*Driver, *clocktesting.FakeClock) {
	fc := clocktesting.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d := NewDriver(WithClock(fc), WithRecoveryBackoff(time.Second, time.Second))
	return d, fc
}

func readyObs() Observation { return Observation{Summary: "ready"} }

func TestDriveFastPathSkipsAction(t *testing.T) {
	t.Parallel()

	d, _ := newTestDriver()
	actions := 0

	outcome := d.Drive(context.Background(), Target{
		Name:   "already-ready",
		Probe:  func(ctx context.Context) (Observation, error) { return readyObs(), nil },
		Action: func(ctx context.Context) error { actions++; return nil },
		Verify: func(obs Observation) bool { return obs.Summary == "ready" },
	})

	assert.Equal(t, StateReady, outcome.State)
	assert.Equal(t, 0, actions, "action must not be issued when the probe is already satisfied")
	assert.Equal(t, 1, outcome.Attempts)
}

func TestDriveInstallsThenPolls(t *testing.T) {
	t.Parallel()

	d, _ := newTestDriver()
	actions := 0
	installed := false

	outcome := d.Drive(context.Background(), Target{
		Name: "install-then-ready",
		Probe: func(ctx context.Context) (Observation, error) {
			if installed {
				return readyObs(), nil
			}
			return Observation{Summary: "absent"}, nil
		},
		Action: func(ctx context.Context) error {
			actions++
			installed = true
			return nil
		},
		Verify:  func(obs Observation) bool { return obs.Summary == "ready" },
		Timeout: time.Minute,
	})

	assert.Equal(t, StateReady, outcome.State)
	assert.Equal(t, 1, actions)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestDriveTimeoutWindow(t *testing.T) {
	t.Parallel()

	const (
		timeout  = 30 * time.Second
		interval = 7 * time.Second
	)

	d, _ := newTestDriver()

	outcome := d.Drive(context.Background(), Target{
		Name:     "never-ready",
		Probe:    func(ctx context.Context) (Observation, error) { return Observation{Summary: "pending"}, nil },
		Verify:   func(obs Observation) bool { return false },
		Timeout:  timeout,
		Interval: interval,
	})

	assert.Equal(t, StateTimedOut, outcome.State)
	assert.GreaterOrEqual(t, outcome.Elapsed, timeout)
	assert.Less(t, outcome.Elapsed, timeout+interval)
	assert.Contains(t, outcome.Reason, "pending")
}

func TestDriveActionErrorIsRetried(t *testing.T) {
	t.Parallel()

	d, _ := newTestDriver()
	actions := 0
	ok := false

	outcome := d.Drive(context.Background(), Target{
		Name: "flaky-action",
		Probe: func(ctx context.Context) (Observation, error) {
			if ok {
				return readyObs(), nil
			}
			return Observation{Summary: "absent"}, nil
		},
		Action: func(ctx context.Context) error {
			actions++
			if actions == 1 {
				return errors.New("transient install failure")
			}
			ok = true
			return nil
		},
		Verify:  func(obs Observation) bool { return obs.Summary == "ready" },
		Timeout: time.Minute,
	})

	assert.Equal(t, StateReady, outcome.State)
	assert.Equal(t, 2, actions)
}

func TestDriveRecoversFromBadStateOnce(t *testing.T) {
	t.Parallel()

	d, _ := newTestDriver()
	var (
		actions  int
		recovers int
		state    = "absent"
	)

	outcome := d.Drive(context.Background(), Target{
		Name: "crash-then-ready",
		Probe: func(ctx context.Context) (Observation, error) {
			return Observation{Summary: state}, nil
		},
		Action: func(ctx context.Context) error {
			actions++
			if actions == 1 {
				state = "CrashLoopBackOff"
			} else {
				state = "ready"
			}
			return nil
		},
		Verify:  func(obs Observation) bool { return obs.Summary == "ready" },
		Bad:     func(obs Observation) bool { return obs.Summary == "CrashLoopBackOff" },
		Recover: func(ctx context.Context) error { recovers++; state = "absent"; return nil },
		Timeout: time.Minute,
	})

	require.Equal(t, StateReady, outcome.State)
	assert.Equal(t, 1, recovers, "one bad state must trigger exactly one teardown")
	assert.Equal(t, 2, actions, "action re-issued once after recovery")
	assert.Equal(t, 1, outcome.Recoveries)
}

func TestDriveBadStateResetsBudget(t *testing.T) {
	t.Parallel()

	const (
		timeout  = 20 * time.Second
		interval = 5 * time.Second
	)

	d, fc := newTestDriver()
	start := fc.Now()
	bad := false

	outcome := d.Drive(context.Background(), Target{
		Name: "crash-then-stuck",
		Probe: func(ctx context.Context) (Observation, error) {
			// One bad observation just before the original deadline,
			// then permanently pending.
			if !bad && fc.Now().Sub(start) >= 15*time.Second {
				bad = true
				return Observation{Summary: "failed"}, nil
			}
			return Observation{Summary: "pending"}, nil
		},
		Action:   func(ctx context.Context) error { return nil },
		Verify:   func(obs Observation) bool { return false },
		Bad:      func(obs Observation) bool { return obs.Summary == "failed" },
		Timeout:  timeout,
		Interval: interval,
	})

	assert.Equal(t, StateTimedOut, outcome.State)
	assert.Equal(t, 1, outcome.Recoveries)
	// The reset must have extended the run past the original deadline.
	assert.Greater(t, outcome.Elapsed, timeout+15*time.Second)
}

func TestDrivePersistentBadStateHitsRecoveryCap(t *testing.T) {
	t.Parallel()

	d, _ := newTestDriver()
	recovers := 0

	outcome := d.Drive(context.Background(), Target{
		Name:  "always-crashing",
		Probe: func(ctx context.Context) (Observation, error) { return Observation{Summary: "CrashLoopBackOff"}, nil },
		Action: func(ctx context.Context) error {
			return nil
		},
		Verify:        func(obs Observation) bool { return false },
		Bad:           func(obs Observation) bool { return true },
		Recover:       func(ctx context.Context) error { recovers++; return nil },
		Timeout:       time.Minute,
		MaxRecoveries: 2,
	})

	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, 2, recovers, "recovery must stop at the cap, not loop forever")
	assert.Equal(t, 2, outcome.Recoveries)
	assert.Contains(t, outcome.Reason, "bad state persisted")
}

func TestDriveCanceledContext(t *testing.T) {
	t.Parallel()

	d, _ := newTestDriver()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := d.Drive(ctx, Target{
		Name:   "canceled",
		Probe:  func(ctx context.Context) (Observation, error) { return Observation{}, nil },
		Verify: func(obs Observation) bool { return true },
	})

	assert.Equal(t, StateFailed, outcome.State)
	assert.Contains(t, outcome.Reason, "canceled")
}

func TestDriveProbeErrorCountsAsNotReady(t *testing.T) {
	t.Parallel()

	d, _ := newTestDriver()
	calls := 0

	outcome := d.Drive(context.Background(), Target{
		Name: "probe-recovers",
		Probe: func(ctx context.Context) (Observation, error) {
			calls++
			if calls < 3 {
				return Observation{}, errors.New("connection refused")
			}
			return readyObs(), nil
		},
		Verify:   func(obs Observation) bool { return obs.Summary == "ready" },
		Timeout:  time.Minute,
		Interval: time.Second,
	})

	assert.Equal(t, StateReady, outcome.State)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestTargetDefaults(t *testing.T) {
	t.Parallel()

	var t0 Target
	assert.Equal(t, DefaultInterval, t0.interval())
	assert.Equal(t, DefaultTimeout, t0.timeout())
	assert.Equal(t, DefaultMaxRecoveries, t0.maxRecoveries())

	t1 := Target{MaxRecoveries: NoRecovery}
	assert.Equal(t, 0, t1.maxRecoveries())
}
