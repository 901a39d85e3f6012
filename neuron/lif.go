package neuron

import (
	"github.com/sarchlab/spikesim/ringbuf"
	"github.com/sarchlab/spikesim/statusdict"
	"github.com/sarchlab/spikesim/synapse"
	"github.com/sarchlab/spikesim/timegrid"
)

// LIF is a minimal leaky integrate-and-fire model, the concrete node type
// spikesim-demo (and this package's own end-to-end tests) instantiate to
// exercise the Update/Handle half of the Node contract Base leaves open.
// Base and Proxy only carry the identity/bookkeeping fields every node
// shares (§4.1); a real model, spiking or not, embeds Base and supplies its
// own dynamics the way this one does. There is no plain integrate-and-fire
// model file under original_source/ to translate directly (only the rate
// model lin_rate_mult.cpp/h and the off-grid precise/ variants exist in this
// tree), so LIF's dynamics are grounded on spec.md §4.1's own description of
// a Node's Update/Handle contract rather than on a specific reference file
// (see DESIGN.md).
//
// Inbound contributions are accumulated into a ringbuf.RingBuffer, addressed
// by the step offset relative to the buffer's current slice origin (I5):
// Handle stores a spike at its DeliveryStep's offset from the node's last
// Update call, and Update drains exactly the bins for the lags it is asked
// to advance across, so a contribution surfaces at exactly one step and
// nowhere else.
type LIF struct {
	Base

	tauMS       float64
	restingMS   float64
	thresholdMS float64
	resetMS     float64

	membrane float64

	buf         *ringbuf.RingBuffer
	minDelay    int
	sliceOrigin timegrid.Step
	primed      bool

	grid *timegrid.Grid
}

// NewLIF creates a LIF node sized for a delay window of
// [minDelaySteps, minDelaySteps+maxDelaySteps) steps, per ringbuf.New. tauMS
// is the membrane time constant; threshold and reset are given in the same
// units as accumulated weight.
func NewLIF(
	gid uint64, modelID, thread, vp int, sink SpikeSink,
	grid *timegrid.Grid, minDelaySteps, maxDelaySteps int,
	tauMS, threshold, reset float64,
) *LIF {
	return &LIF{
		Base:        NewBase(gid, modelID, thread, vp, true, false, false, sink),
		tauMS:       tauMS,
		thresholdMS: threshold,
		resetMS:     reset,
		buf:         ringbuf.New(minDelaySteps, maxDelaySteps),
		minDelay:    minDelaySteps,
		grid:        grid,
	}
}

// Handle accumulates evt's weight into the ring buffer at the offset its
// DeliveryStep sits at relative to this node's current slice origin. The
// offset is only meaningful once Update has run at least once (which pins
// sliceOrigin); spikes delivered before that are accumulated relative to
// origin zero, matching a freshly calibrated network's t=0 slice.
func (n *LIF) Handle(evt synapse.Event) error {
	offset := int(evt.DeliveryStep() - int64(n.sliceOrigin))
	n.buf.Add(offset, evt.Weight())

	return nil
}

// Update advances the membrane potential across [from, to), draining the
// ring buffer bin for each lag in that range and firing when the membrane
// crosses threshold. origin identifies the slice this call belongs to; on
// the first lag of a new slice the ring buffer is rotated forward by
// minDelay so relative-offset addressing established by Handle stays valid
// (ringbuf.RingBuffer.AdvanceSlice).
func (n *LIF) Update(origin timegrid.Step, from, to timegrid.Step) {
	if from == 0 {
		if n.primed && origin != n.sliceOrigin {
			n.buf.AdvanceSlice(n.minDelay)
		}
		n.sliceOrigin = origin
		n.primed = true
	}

	resMS := 0.1
	if n.grid != nil {
		resMS = n.grid.ResolutionMS()
	}

	for lag := from; lag < to; lag++ {
		input := n.buf.Get(int(lag))

		n.membrane += (n.restingMS - n.membrane) * (resMS / n.decayConstant()) + input

		if n.membrane >= n.thresholdMS {
			n.membrane = n.resetMS
			n.EmitSpike(int(lag), 0)
		}
	}
}

func (n *LIF) decayConstant() float64 {
	if n.tauMS <= 0 {
		return 1
	}

	return n.tauMS
}

// InitState resets the membrane potential to its resting value.
func (n *LIF) InitState() {
	n.membrane = n.restingMS
}

// GetStatus reports LIF's parameters alongside Base's identity fields.
func (n *LIF) GetStatus() statusdict.Dict {
	status := n.Base.GetStatus()
	status["tau_m"] = n.tauMS
	status["V_th"] = n.thresholdMS
	status["V_reset"] = n.resetMS
	status["V_m"] = n.membrane

	return status
}

// SetStatus applies LIF's own parameters after delegating the shared "frozen"
// key to Base.SetStatus.
func (n *LIF) SetStatus(dict statusdict.Dict) error {
	if err := n.Base.SetStatus(dict); err != nil {
		return err
	}

	if v, ok := dict.GetFloat("tau_m"); ok {
		n.tauMS = v
	}
	if v, ok := dict.GetFloat("V_th"); ok {
		n.thresholdMS = v
	}
	if v, ok := dict.GetFloat("V_reset"); ok {
		n.resetMS = v
	}

	return nil
}
