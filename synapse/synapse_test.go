package synapse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Capability", func() {
	It("should report Has for bits present in the set", func() {
		caps := DeliversPrimarySpike | HasDelay
		Expect(caps.Has(DeliversPrimarySpike)).To(BeTrue())
		Expect(caps.Has(HasDelay)).To(BeTrue())
		Expect(caps.Has(DeliversSecondary)).To(BeFalse())
		Expect(caps.Has(RequiresSymmetric)).To(BeFalse())
	})
})

var _ = Describe("EventBuilder", func() {
	It("should build an Event carrying every set field", func() {
		evt := EventBuilder{}.
			WithSourceGID(7).
			WithWeight(1.5).
			WithPort(2).
			WithDeliveryStep(100).
			WithOffset(0.25).
			Build()

		Expect(evt.SourceGID()).To(Equal(uint64(7)))
		Expect(evt.Weight()).To(Equal(1.5))
		Expect(evt.Port()).To(Equal(2))
		Expect(evt.DeliveryStep()).To(Equal(int64(100)))
		Expect(evt.Offset()).To(Equal(0.25))
	})

	It("should not mutate the builder receiver across With* calls", func() {
		base := EventBuilder{}.WithWeight(1.0)
		withPort := base.WithPort(3)

		Expect(base.Build().Port()).To(Equal(0))
		Expect(withPort.Build().Port()).To(Equal(3))
	})
})

var _ = Describe("Base", func() {
	It("should report the constructed delay, weight, port and capabilities", func() {
		b := NewBase(5, 2.0, 1, DeliversPrimarySpike)

		Expect(b.Delay()).To(Equal(5))
		Expect(b.Weight()).To(Equal(2.0))
		Expect(b.Port()).To(Equal(1))
		Expect(b.Capabilities()).To(Equal(DeliversPrimarySpike))
	})

	It("should apply weight and port overrides via SetStatus", func() {
		b := NewBase(1, 1.0, 0, 0)
		Expect(b.SetStatus(map[string]interface{}{
			"weight": 3.5,
			"port":   2,
		})).To(Succeed())

		Expect(b.Weight()).To(Equal(3.5))
		Expect(b.Port()).To(Equal(2))
	})

	It("should leave fields untouched when SetStatus keys are absent", func() {
		b := NewBase(1, 1.0, 0, 0)
		Expect(b.SetStatus(map[string]interface{}{})).To(Succeed())

		Expect(b.Weight()).To(Equal(1.0))
	})

	It("should report its status as a dict", func() {
		b := NewBase(4, 2.5, 1, 0)
		status := b.GetStatus()

		Expect(status["delay"]).To(Equal(4))
		Expect(status["weight"]).To(Equal(2.5))
		Expect(status["port"]).To(Equal(1))
	})
})

var _ = Describe("StaticSynapse", func() {
	It("should stamp its own weight and port onto the event it sends", func() {
		s := NewStatic(3, 4.0, 2)
		evt := EventBuilder{}.WithWeight(0).WithPort(0).Build()

		Expect(s.Send(evt, 0, 0, nil)).To(Succeed())
		Expect(evt.Weight()).To(Equal(4.0))
		Expect(evt.Port()).To(Equal(2))
	})

	It("should report the primary-spike and delay capabilities", func() {
		s := NewStatic(1, 1.0, 0)
		Expect(s.Capabilities().Has(DeliversPrimarySpike)).To(BeTrue())
		Expect(s.Capabilities().Has(HasDelay)).To(BeTrue())
	})

	It("should deliver a spike emitted at step s only at step s+delay (I5)", func() {
		s := NewStatic(3, 1.0, 0)
		evt := EventBuilder{}.WithOriginStep(10).Build()

		Expect(s.Send(evt, 0, 0, nil)).To(Succeed())

		Expect(evt.DeliveryStep()).To(Equal(int64(13)))
		Expect(evt.DeliveryStep()).NotTo(Equal(int64(12)))
		Expect(evt.DeliveryStep()).NotTo(Equal(int64(14)))
	})
})
