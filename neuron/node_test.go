package neuron

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingSink struct {
	source uint64
	lag    int
	offset float64
	calls  int
}

func (r *recordingSink) SendSpike(source uint64, lag int, offset float64) {
	r.source = source
	r.lag = lag
	r.offset = offset
	r.calls++
}

var _ = Describe("Proxy", func() {
	It("should report itself as frozen with no local state", func() {
		p := NewProxy(9, 2)

		Expect(p.GID()).To(Equal(uint64(9)))
		Expect(p.ModelID()).To(Equal(2))
		Expect(p.Thread()).To(Equal(-1))
		Expect(p.Frozen()).To(BeTrue())
		Expect(p.HasProxies()).To(BeTrue())
		Expect(p.LocalReceiver()).To(BeFalse())
	})

	It("should be a no-op for Handle and Update", func() {
		p := NewProxy(1, 0)
		Expect(p.Handle(nil)).To(Succeed())
		Expect(func() { p.Update(0, 0, 1) }).NotTo(Panic())
	})
})

var _ = Describe("Base", func() {
	It("should report the fields it was constructed with", func() {
		sink := &recordingSink{}
		b := NewBase(5, 1, 2, 3, true, false, false, sink)

		Expect(b.GID()).To(Equal(uint64(5)))
		Expect(b.ModelID()).To(Equal(1))
		Expect(b.Thread()).To(Equal(2))
		Expect(b.VP()).To(Equal(3))
		Expect(b.HasProxies()).To(BeTrue())
		Expect(b.Frozen()).To(BeFalse())
	})

	It("should toggle frozen via SetFrozen", func() {
		b := NewBase(1, 0, 0, 0, false, false, false, nil)
		b.SetFrozen(true)
		Expect(b.Frozen()).To(BeTrue())
	})

	It("should forward EmitSpike to the configured sink", func() {
		sink := &recordingSink{}
		b := NewBase(7, 0, 0, 0, false, false, false, sink)

		b.EmitSpike(3, 0.5)

		Expect(sink.calls).To(Equal(1))
		Expect(sink.source).To(Equal(uint64(7)))
		Expect(sink.lag).To(Equal(3))
		Expect(sink.offset).To(Equal(0.5))
	})

	It("should silently drop EmitSpike when no sink is set", func() {
		b := NewBase(7, 0, 0, 0, false, false, false, nil)
		Expect(func() { b.EmitSpike(0, 0) }).NotTo(Panic())
	})

	It("should rebind its sink via SetSink", func() {
		first := &recordingSink{}
		second := &recordingSink{}
		b := NewBase(1, 0, 0, 0, false, false, false, first)

		b.SetSink(second)
		b.EmitSpike(1, 0)

		Expect(first.calls).To(Equal(0))
		Expect(second.calls).To(Equal(1))
	})

	It("should apply the frozen key via SetStatus", func() {
		b := NewBase(1, 0, 0, 0, false, false, false, nil)
		Expect(b.SetStatus(map[string]interface{}{"frozen": true})).To(Succeed())
		Expect(b.Frozen()).To(BeTrue())
	})

	It("should report identity fields via GetStatus", func() {
		b := NewBase(3, 4, 5, 6, false, false, false, nil)
		status := b.GetStatus()

		Expect(status["global_id"]).To(Equal(uint64(3)))
		Expect(status["model"]).To(Equal(4))
		Expect(status["thread"]).To(Equal(5))
		Expect(status["vp"]).To(Equal(6))
	})
})
