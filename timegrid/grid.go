// Package timegrid represents absolute simulation time as integer tics at a
// configurable resolution, and converts between step counts and physical
// milliseconds.
package timegrid

import (
	"log"
	"math"
)

// Tics is a count of the smallest representable unit of simulation time.
type Tics int64

// Step is a count of resolution-sized steps since simulation start.
type Step int64

// Grid fixes the relationship between tics, resolution (tics per step) and
// wall-clock milliseconds. A Grid is immutable once nodes exist in the
// network it times; see kernel.Kernel.SetStatus for the enforcement of that
// rule (I3).
type Grid struct {
	ticsPerMS      float64
	resolutionTics int64
}

// DefaultTicsPerMS matches the reference simulator's default representation:
// one tic per microsecond.
const DefaultTicsPerMS = 1000.0

// New creates a Grid with the given tics-per-millisecond base and resolution,
// expressed in milliseconds. Panics if either value is non-positive or if
// the resolution is not representable as a whole number of tics.
func New(ticsPerMS, resolutionMS float64) *Grid {
	if ticsPerMS <= 0 {
		log.Panic("tics_per_ms must be positive")
	}
	if resolutionMS <= 0 {
		log.Panic("resolution must be positive")
	}

	resolutionTics := int64(math.Round(resolutionMS * ticsPerMS))
	if resolutionTics < 1 {
		log.Panic("resolution is finer than one tic")
	}

	return &Grid{
		ticsPerMS:      ticsPerMS,
		resolutionTics: resolutionTics,
	}
}

// TicsPerStep returns the number of tics in one resolution step.
func (g *Grid) TicsPerStep() Tics {
	return Tics(g.resolutionTics)
}

// TicsPerMS returns the configured tics-per-millisecond base.
func (g *Grid) TicsPerMS() float64 {
	return g.ticsPerMS
}

// ResolutionMS returns the step size in milliseconds.
func (g *Grid) ResolutionMS() float64 {
	return float64(g.resolutionTics) / g.ticsPerMS
}

// StepToMS converts a step count to milliseconds.
func (g *Grid) StepToMS(step Step) float64 {
	return float64(step) * g.ResolutionMS()
}

// MSToStep converts milliseconds to the nearest step, rounding to the
// nearest representable tic first.
func (g *Grid) MSToStep(ms float64) Step {
	tics := g.MSToTics(ms)
	return Step(math.Round(float64(tics) / float64(g.resolutionTics)))
}

// MSToTics converts milliseconds to tics, rounding to the nearest tic.
func (g *Grid) MSToTics(ms float64) Tics {
	return Tics(math.Round(ms * g.ticsPerMS))
}

// TicsToMS converts a tic count back to milliseconds.
func (g *Grid) TicsToMS(t Tics) float64 {
	return float64(t) / g.ticsPerMS
}

// MSToDelaySteps converts a delay in milliseconds to a whole number of
// steps, failing if the delay is not an integer multiple of the resolution.
func (g *Grid) MSToDelaySteps(ms float64) (Step, bool) {
	tics := g.MSToTics(ms)
	if int64(tics)%g.resolutionTics != 0 {
		return 0, false
	}

	return Step(int64(tics) / g.resolutionTics), true
}

// MinStep returns the smallest representable positive step count, always 1.
func (g *Grid) MinStep() Step {
	return 1
}

// SameResolution reports whether two grids share the same tics-per-step and
// tics-per-ms base, the condition under which times drawn from either grid
// may be compared directly.
func (g *Grid) SameResolution(other *Grid) bool {
	return g.ticsPerMS == other.ticsPerMS &&
		g.resolutionTics == other.resolutionTics
}
