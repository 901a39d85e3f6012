// Package ringbuf implements the target-side accumulators that materialize
// delayed delivery: fixed-length circular buffers indexed modulo
// min_delay+max_delay, cleared on read.
package ringbuf

import "sort"

// RingBuffer accumulates weighted contributions arriving at a target step,
// addressed through a precomputed modulo table so that add/get are O(1):
// the offset is reduced modulo the buffer length, then looked up in the
// table.
type RingBuffer struct {
	bins   []float64
	moduli []int // moduli[i] is the bin index for the step offset i, 0 <= i < len(bins)
}

// New creates a RingBuffer sized minDelay+maxDelay steps, per I5.
func New(minDelaySteps, maxDelaySteps int) *RingBuffer {
	size := minDelaySteps + maxDelaySteps
	if size <= 0 {
		size = 1
	}

	rb := &RingBuffer{
		bins:   make([]float64, size),
		moduli: make([]int, size),
	}
	for i := range rb.moduli {
		rb.moduli[i] = i
	}

	return rb
}

// Size returns the number of addressable bins.
func (rb *RingBuffer) Size() int {
	return len(rb.bins)
}

// Add accumulates value into the bin addressed by targetStep, relative to
// the buffer's current slice origin.
func (rb *RingBuffer) Add(targetStepOffset int, value float64) {
	idx := rb.moduli[rb.wrap(targetStepOffset)]
	rb.bins[idx] += value
}

// Get reads and clears the bin addressed by originStepOffset.
func (rb *RingBuffer) Get(originStepOffset int) float64 {
	idx := rb.moduli[rb.wrap(originStepOffset)]
	v := rb.bins[idx]
	rb.bins[idx] = 0

	return v
}

// Peek reads the bin addressed by originStepOffset without clearing it.
func (rb *RingBuffer) Peek(originStepOffset int) float64 {
	idx := rb.moduli[rb.wrap(originStepOffset)]
	return rb.bins[idx]
}

func (rb *RingBuffer) wrap(offset int) int {
	n := len(rb.moduli)
	m := offset % n
	if m < 0 {
		m += n
	}

	return m
}

// AdvanceSlice rotates the modulo table left by minDelaySteps positions,
// the operation performed once per slice so that step-offset addressing
// stays valid as absolute time advances.
func (rb *RingBuffer) AdvanceSlice(minDelaySteps int) {
	n := len(rb.moduli)
	if n == 0 {
		return
	}

	shift := minDelaySteps % n
	if shift == 0 {
		return
	}

	rotated := make([]int, n)
	for i := 0; i < n; i++ {
		rotated[i] = rb.moduli[(i+shift)%n]
	}

	rb.moduli = rotated
}

// SpikeEvent is a pseudo-event held by a SliceRingBuffer: a weight paired
// with a sub-step offset, used for off-grid (precise) spike delivery and
// for markers such as end-of-refractoriness.
type SpikeEvent struct {
	Weight float64
	Offset float64 // sub-step offset within the bin, 0 <= Offset < 1
}

// SliceRingBuffer uses slice-granular (rather than step-granular) bin
// addressing through its slice-moduli table: one bin per minDelaySteps steps, sized
// ceil((min+max)/min).
type SliceRingBuffer struct {
	bins        [][]SpikeEvent
	sliceModuli []int
	minDelay    int
}

// NewSlice creates a SliceRingBuffer for off-grid delivery.
func NewSlice(minDelaySteps, maxDelaySteps int) *SliceRingBuffer {
	if minDelaySteps <= 0 {
		minDelaySteps = 1
	}

	size := (minDelaySteps + maxDelaySteps + minDelaySteps - 1) / minDelaySteps
	if size <= 0 {
		size = 1
	}

	srb := &SliceRingBuffer{
		bins:        make([][]SpikeEvent, size),
		sliceModuli: make([]int, size),
		minDelay:    minDelaySteps,
	}
	for i := range srb.sliceModuli {
		srb.sliceModuli[i] = i
	}

	return srb
}

// Add inserts a pseudo-event into the slice addressed by sliceOffset,
// keeping the bin's contents sorted by sub-step offset so that off-grid
// events dispatch in time order.
func (srb *SliceRingBuffer) Add(sliceOffset int, evt SpikeEvent) {
	idx := srb.wrap(sliceOffset)
	bin := append(srb.bins[idx], evt)
	sort.Slice(bin, func(i, j int) bool { return bin[i].Offset < bin[j].Offset })
	srb.bins[idx] = bin
}

// Take reads and clears the slice addressed by originSliceOffset, returning
// its events in offset order.
func (srb *SliceRingBuffer) Take(originSliceOffset int) []SpikeEvent {
	idx := srb.wrap(originSliceOffset)
	evts := srb.bins[idx]
	srb.bins[idx] = nil

	return evts
}

func (srb *SliceRingBuffer) wrap(offset int) int {
	n := len(srb.sliceModuli)
	m := offset % n
	if m < 0 {
		m += n
	}

	return srb.sliceModuli[m]
}

// AdvanceSlice rotates the slice-moduli table left by one position, the
// slice-granular analogue of RingBuffer.AdvanceSlice.
func (srb *SliceRingBuffer) AdvanceSlice() {
	n := len(srb.sliceModuli)
	if n <= 1 {
		return
	}

	rotated := make([]int, n)
	for i := 0; i < n; i++ {
		rotated[i] = srb.sliceModuli[(i+1)%n]
	}

	srb.sliceModuli = rotated
}
