package targettable

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Table", func() {
	var table *Table

	BeforeEach(func() {
		table = New(2)
	})

	It("should track primary and secondary routes separately", func() {
		primary := NewTarget(0, 1, 0, 10, false)
		secondary := NewTarget(0, 1, 0, 20, false)

		table.AddPrimary(0, 5, primary)
		table.AddSecondary(0, 5, secondary)

		Expect(table.Targets(0, 5)).To(Equal([]Target{primary}))
		Expect(table.SecondaryTargets(0, 5)).To(Equal([]Target{secondary}))
	})

	It("should accumulate multiple targets for the same neuron", func() {
		a := NewTarget(0, 0, 0, 1, false)
		b := NewTarget(1, 0, 0, 2, false)

		table.AddPrimary(0, 3, a)
		table.AddPrimary(0, 3, b)

		Expect(table.Targets(0, 3)).To(Equal([]Target{a, b}))
	})

	It("should report the number of owning threads", func() {
		Expect(table.NumThreads()).To(Equal(2))
	})

	It("should return an empty slice for a neuron with no routes", func() {
		Expect(table.Targets(1, 42)).To(BeEmpty())
	})
})

var _ = Describe("BuildSecondaryBufferLayout", func() {
	It("should assign increasing offsets within a rank and dedup by source", func() {
		sizes := []EventSize{
			{SourceGID: 1, Rank: 0, Bytes: 8},
			{SourceGID: 2, Rank: 0, Bytes: 16},
			{SourceGID: 1, Rank: 0, Bytes: 8}, // duplicate, seen on another thread
			{SourceGID: 3, Rank: 1, Bytes: 4},
		}

		layout := BuildSecondaryBufferLayout(sizes, 64)

		Expect(layout.ChunkSize).To(Equal(64))
		Expect(layout.Offsets).To(HaveLen(3))
		Expect(layout.Offsets[1]).To(Equal(0))
		Expect(layout.Offsets[2]).To(Equal(8))
		Expect(layout.Offsets[3]).To(Equal(0))
	})

	It("should return an empty layout for no sizes", func() {
		layout := BuildSecondaryBufferLayout(nil, 32)
		Expect(layout.Offsets).To(BeEmpty())
		Expect(layout.ChunkSize).To(Equal(32))
	})
})
