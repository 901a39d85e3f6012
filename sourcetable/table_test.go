package sourcetable

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type subsequentCall struct {
	tid, synIndex, lcid int
	hasSubsequent        bool
}

var _ = ginkgo.Describe("Table", func() {
	ginkgo.It("should assign sequential lcids on Add", func() {
		table := New(1)

		Expect(table.Add(0, 0, 100, true)).To(Equal(0))
		Expect(table.Add(0, 0, 200, true)).To(Equal(1))
		Expect(table.Len(0, 0)).To(Equal(2))
	})

	ginkgo.It("should emit a single TargetData for a contiguous same-source run", func() {
		table := New(1)
		table.Add(0, 0, 42, true)
		table.Add(0, 0, 42, true)
		table.Add(0, 0, 42, true)

		var calls []subsequentCall
		setSubsequent := func(tid, synIndex, lcid int, hasSubsequent bool) {
			calls = append(calls, subsequentCall{tid, synIndex, lcid, hasSubsequent})
		}
		rankOf := func(uint64) int { return 0 }

		td, ok := table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeTrue())
		Expect(td.SourceGID).To(Equal(uint64(42)))
		Expect(td.Target.Lcid()).To(Equal(0))

		Expect(calls).To(HaveLen(3))
		Expect(calls[0]).To(Equal(subsequentCall{0, 0, 2, false}))
		Expect(calls[1]).To(Equal(subsequentCall{0, 0, 1, true}))
		Expect(calls[2]).To(Equal(subsequentCall{0, 0, 0, true}))

		_, ok = table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should emit one TargetData per distinct source", func() {
		table := New(1)
		table.Add(0, 0, 1, true)
		table.Add(0, 0, 2, true)

		rankOf := func(uint64) int { return 0 }
		setSubsequent := func(tid, synIndex, lcid int, hasSubsequent bool) {}

		td1, ok := table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeTrue())
		Expect(td1.SourceGID).To(Equal(uint64(2)))

		td2, ok := table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeTrue())
		Expect(td2.SourceGID).To(Equal(uint64(1)))

		_, ok = table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should skip disabled entries", func() {
		table := New(1)
		table.Add(0, 0, 1, true)
		lcid := table.Add(0, 0, 2, true)
		table.MarkDisabled(0, 0, lcid)

		rankOf := func(uint64) int { return 0 }
		setSubsequent := func(tid, synIndex, lcid int, hasSubsequent bool) {}

		td, ok := table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeTrue())
		Expect(td.SourceGID).To(Equal(uint64(1)))

		_, ok = table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should only route sources whose rank falls within the requested range", func() {
		table := New(1)
		table.Add(0, 0, 1, true) // rank 0
		table.Add(0, 0, 2, true) // rank 1

		rankOf := func(gid uint64) int {
			if gid == 1 {
				return 0
			}
			return 1
		}
		setSubsequent := func(tid, synIndex, lcid int, hasSubsequent bool) {}

		td, ok := table.NextTargetData(0, rankOf, 0, 1, 2, setSubsequent)
		Expect(ok).To(BeTrue())
		Expect(td.SourceGID).To(Equal(uint64(2)))

		_, ok = table.NextTargetData(0, rankOf, 0, 1, 2, setSubsequent)
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should allow ResetCursor to re-scan from the tail", func() {
		table := New(1)
		table.Add(0, 0, 1, true)

		rankOf := func(uint64) int { return 0 }
		setSubsequent := func(tid, synIndex, lcid int, hasSubsequent bool) {}

		_, ok := table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeTrue())

		_, ok = table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeFalse())

		table.ResetCursor(0)
		// The entry is now marked processed, so a fresh scan still finds nothing.
		_, ok = table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should report the highest unprocessed lcid and Clean beyond it", func() {
		table := New(1)
		table.Add(0, 0, 1, true)
		table.Add(0, 0, 2, true)
		table.Add(0, 0, 3, true)

		rankOf := func(uint64) int { return 0 }
		setSubsequent := func(tid, synIndex, lcid int, hasSubsequent bool) {}

		// Only process the tail entry (lcid 2), leaving 0 and 1 unprocessed.
		_, ok := table.NextTargetData(0, rankOf, 0, 0, 1, setSubsequent)
		Expect(ok).To(BeTrue())

		Expect(table.MaxUnprocessedPosition(0)).To(Equal(1))

		table.Clean(1)
		Expect(table.Len(0, 0)).To(Equal(2))
	})

	ginkgo.It("should clear all entries when Clean is given a negative bound", func() {
		table := New(1)
		table.Add(0, 0, 1, true)

		table.Clean(-1)
		Expect(table.Len(0, 0)).To(Equal(0))
	})
})
