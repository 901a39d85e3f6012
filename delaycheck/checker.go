// Package delaycheck is the per-process custodian of the [min_delay,
// max_delay] window that every synapse's delay must fall within. It is the
// data-structural guarantee that makes the scheduler's slice length safe
// (I1-I4).
package delaycheck

import (
	"github.com/sarchlab/spikesim/statusdict"
	"github.com/sarchlab/spikesim/timegrid"
)

// Checker admits or rejects every new synapse delay and tracks the active
// [min, max] window in steps.
type Checker struct {
	grid *timegrid.Grid

	minSteps timegrid.Step
	maxSteps timegrid.Step

	userPinnedExtrema bool
	extremaFrozen     bool // true once any connection has been admitted
	simulateHasRun    bool

	defaultAdmitted map[int64]bool // model id -> default delay already validated
}

// New creates a Checker with unpinned extrema: min and max both start at the
// grid's minimum step until the first delay is admitted, which replaces
// both; later delays widen the window.
func New(grid *timegrid.Grid) *Checker {
	return &Checker{
		grid:            grid,
		minSteps:        grid.MinStep(),
		maxSteps:        grid.MinStep(),
		defaultAdmitted: make(map[int64]bool),
	}
}

// GetMin returns the active minimum delay, in steps.
func (c *Checker) GetMin() timegrid.Step {
	return c.minSteps
}

// GetMax returns the active maximum delay, in steps.
func (c *Checker) GetMax() timegrid.Step {
	return c.maxSteps
}

// UserPinned reports whether SetExtrema fixed the window explicitly.
func (c *Checker) UserPinned() bool {
	return c.userPinnedExtrema
}

// MarkSimulated records that simulate() has run at least once; after this,
// Admit may no longer widen the window (I4).
func (c *Checker) MarkSimulated() {
	c.simulateHasRun = true
}

// Admit validates a candidate delay expressed in steps, widening the active
// window if the user has not pinned it and no simulation has run yet.
// Fails with BadDelay if the delay is finer than the resolution, or if it
// would widen the window after simulate() has run.
func (c *Checker) Admit(delaySteps timegrid.Step) error {
	if delaySteps < c.grid.MinStep() {
		return statusdict.New(statusdict.KindBadDelay, "delay",
			"delay is finer than the simulation resolution")
	}

	if c.userPinnedExtrema {
		if delaySteps < c.minSteps || delaySteps > c.maxSteps {
			return statusdict.New(statusdict.KindBadDelay, "delay",
				"delay outside user-pinned [min_delay, max_delay]")
		}

		c.extremaFrozen = true

		return nil
	}

	if !c.extremaFrozen && !c.simulateHasRun {
		// The first admitted delay defines the window.
		c.minSteps = delaySteps
		c.maxSteps = delaySteps
		c.extremaFrozen = true

		return nil
	}

	widensMin := delaySteps < c.minSteps
	widensMax := delaySteps > c.maxSteps

	if c.simulateHasRun && (widensMin || widensMax) {
		return statusdict.New(statusdict.KindBadDelay, "delay",
			"delay would widen [min_delay, max_delay] after simulate() has run")
	}

	if widensMin {
		c.minSteps = delaySteps
	}
	if widensMax {
		c.maxSteps = delaySteps
	}

	c.extremaFrozen = true

	return nil
}

// AdmitPair validates two delays stored by a single connection model (e.g.
// a dual-delay gap-junction synapse), admitting both or neither.
func (c *Checker) AdmitPair(d1, d2 timegrid.Step) error {
	saved := *c

	if err := c.Admit(d1); err != nil {
		return err
	}

	if err := c.Admit(d2); err != nil {
		*c = saved
		return err
	}

	return nil
}

// AdmitDefault validates a model's default delay exactly once; subsequent
// connections built from the same model without an explicit delay reuse the
// already-validated value instead of re-admitting it. Mirrors the reference
// simulator's used_default_delay lazy check.
func (c *Checker) AdmitDefault(modelID int64, delaySteps timegrid.Step) error {
	if c.defaultAdmitted[modelID] {
		return nil
	}

	if err := c.Admit(delaySteps); err != nil {
		return err
	}

	c.defaultAdmitted[modelID] = true

	return nil
}

// SetExtrema pins [min, max], expressed in milliseconds. Fails if any
// connection has already been admitted, if either value is below the
// resolution, or if the caller only supplies one bound.
func (c *Checker) SetExtrema(minMS, maxMS float64, bothGiven bool) error {
	if c.extremaFrozen {
		return statusdict.New(statusdict.KindBadDelay, "min_delay",
			"cannot set delay extrema once a connection exists")
	}

	if !bothGiven {
		return statusdict.New(statusdict.KindBadDelay, "min_delay",
			"min_delay and max_delay must be set together")
	}

	minSteps, ok := c.grid.MSToDelaySteps(minMS)
	if !ok || minSteps < c.grid.MinStep() {
		return statusdict.New(statusdict.KindBadDelay, "min_delay",
			"min_delay below resolution")
	}

	maxSteps, ok := c.grid.MSToDelaySteps(maxMS)
	if !ok || maxSteps < c.grid.MinStep() {
		return statusdict.New(statusdict.KindBadDelay, "max_delay",
			"max_delay below resolution")
	}

	if maxSteps < minSteps {
		return statusdict.New(statusdict.KindBadDelay, "max_delay",
			"max_delay must not be smaller than min_delay")
	}

	c.minSteps = minSteps
	c.maxSteps = maxSteps
	c.userPinnedExtrema = true

	return nil
}
