package neuron

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spikesim/synapse"
	"github.com/sarchlab/spikesim/timegrid"
)

var _ = Describe("LIF end-to-end delivery through the ring buffer", func() {
	It("delivers a spike's contribution only at exactly origin+delay, not one step early or late (S1)", func() {
		grid := timegrid.New(timegrid.DefaultTicsPerMS, 0.1)
		sink := &recordingSink{}
		node := NewLIF(2, 1, 0, 0, sink, grid, 1, 15, 1000.0, 0.5, 0.0)
		node.InitState()

		node.Update(0, 0, 1) // primes the ring buffer's slice origin at step 0

		syn := synapse.NewStatic(5, 1.0, 0)
		evt := synapse.EventBuilder{}.WithOriginStep(0).Build()
		Expect(syn.Send(evt, 0, 0, nil)).To(Succeed())
		Expect(node.Handle(evt)).To(Succeed())

		for step := 1; step <= 6; step++ {
			node.Update(timegrid.Step(step), 0, 1)

			if step >= 5 {
				Expect(sink.calls).To(Equal(1))
			} else {
				Expect(sink.calls).To(Equal(0))
			}
		}
	})

	It("keeps two in-flight contributions from aliasing across a ring buffer wrap (S2)", func() {
		grid := timegrid.New(timegrid.DefaultTicsPerMS, 0.1)
		sink := &recordingSink{}
		node := NewLIF(3, 1, 0, 0, sink, grid, 1, 10, 1000.0, 0.5, 0.0)
		node.InitState()

		node.Update(0, 0, 1)

		delay := 10

		first := synapse.EventBuilder{}.WithOriginStep(0).Build()
		Expect(synapse.NewStatic(delay, 1.0, 0).Send(first, 0, 0, nil)).To(Succeed())
		Expect(node.Handle(first)).To(Succeed())

		for step := 1; step <= 4; step++ {
			node.Update(timegrid.Step(step), 0, 1)
			Expect(sink.calls).To(Equal(0))
		}

		// Forced while the first spike is still in flight; must occupy a
		// distinct bin and not disturb the first spike's contribution.
		second := synapse.EventBuilder{}.WithOriginStep(4).Build()
		Expect(synapse.NewStatic(delay, 1.0, 0).Send(second, 0, 0, nil)).To(Succeed())
		Expect(node.Handle(second)).To(Succeed())

		for step := 5; step <= 9; step++ {
			node.Update(timegrid.Step(step), 0, 1)
			Expect(sink.calls).To(Equal(0))
		}

		node.Update(10, 0, 1)
		Expect(sink.calls).To(Equal(1))

		for step := 11; step <= 13; step++ {
			node.Update(timegrid.Step(step), 0, 1)
			Expect(sink.calls).To(Equal(1))
		}

		node.Update(14, 0, 1)
		Expect(sink.calls).To(Equal(2))
	})
})
