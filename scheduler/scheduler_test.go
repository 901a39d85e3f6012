package scheduler

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/spikesim/connstore"
	"github.com/sarchlab/spikesim/delivery"
	"github.com/sarchlab/spikesim/neuron"
	"github.com/sarchlab/spikesim/statusdict"
	"github.com/sarchlab/spikesim/synapse"
	"github.com/sarchlab/spikesim/targettable"
	"github.com/sarchlab/spikesim/timegrid"
	"github.com/sarchlab/spikesim/transport"
)

type fakeNode struct {
	gid    uint64
	frozen bool

	updateCalls  int
	initBufCalls int
	calibCalls   int

	onUpdate func()
}

func (n *fakeNode) GID() uint64      { return n.gid }
func (n *fakeNode) ModelID() int     { return 0 }
func (n *fakeNode) Thread() int      { return 0 }
func (n *fakeNode) VP() int          { return 0 }
func (n *fakeNode) HasProxies() bool { return false }
func (n *fakeNode) LocalReceiver() bool { return false }
func (n *fakeNode) IsOffGrid() bool     { return false }
func (n *fakeNode) Frozen() bool        { return n.frozen }
func (n *fakeNode) SetFrozen(f bool)    { n.frozen = f }
func (n *fakeNode) Update(origin, from, to timegrid.Step) {
	n.updateCalls++
	if n.onUpdate != nil {
		n.onUpdate()
	}
}
func (n *fakeNode) Handle(evt synapse.Event) error         { return nil }
func (n *fakeNode) InitState()                             {}
func (n *fakeNode) InitBuffers()                            { n.initBufCalls++ }
func (n *fakeNode) Calibrate()                               { n.calibCalls++ }
func (n *fakeNode) Finalize()                               {}
func (n *fakeNode) GetStatus() statusdict.Dict              { return statusdict.Dict{} }
func (n *fakeNode) SetStatus(statusdict.Dict) error         { return nil }

func newFixtureScheduler(node *fakeNode) *Scheduler {
	grid := timegrid.New(1000.0, 0.1)
	store := connstore.New(1)
	table := targettable.New(1)
	d := delivery.New(transport.NewLocal(), table, store)

	threads := []ThreadNodes{
		{Tid: 0, Nodes: []neuron.Node{node}, LocalID: map[uint64]int{node.gid: 0}},
	}

	return New(grid, d, threads)
}

var _ = Describe("Scheduler", func() {
	It("should start in the Fresh state", func() {
		node := &fakeNode{gid: 1}
		s := newFixtureScheduler(node)
		Expect(s.State()).To(Equal(Fresh))
	})

	It("should run InitBuffers/Calibrate on Prepare and transition to Prepared", func() {
		node := &fakeNode{gid: 1}
		s := newFixtureScheduler(node)

		Expect(s.Prepare(1, 1)).To(Succeed())
		Expect(s.State()).To(Equal(Prepared))
		Expect(node.initBufCalls).To(Equal(1))
		Expect(node.calibCalls).To(Equal(1))
	})

	It("should reject Simulate before Prepare", func() {
		node := &fakeNode{gid: 1}
		s := newFixtureScheduler(node)

		err := s.Simulate(1)
		Expect(err).To(HaveOccurred())
	})

	It("should update every unfrozen node once per step and advance the clock", func() {
		node := &fakeNode{gid: 1}
		s := newFixtureScheduler(node)
		Expect(s.Prepare(1, 1)).To(Succeed())

		Expect(s.Simulate(2)).To(Succeed())

		Expect(node.updateCalls).To(Equal(2))
		Expect(s.Clock()).To(BeNumerically("==", 2))
		Expect(s.State()).To(Equal(Finalized))
	})

	It("should skip frozen nodes", func() {
		node := &fakeNode{gid: 1, frozen: true}
		s := newFixtureScheduler(node)
		Expect(s.Prepare(1, 1)).To(Succeed())

		Expect(s.Simulate(1)).To(Succeed())
		Expect(node.updateCalls).To(Equal(0))
	})

	It("should surface a panic inside Update as an error", func() {
		node := &fakeNode{gid: 1}
		node.onUpdate = func() { panic("boom") }
		s := newFixtureScheduler(node)
		Expect(s.Prepare(1, 1)).To(Succeed())

		err := s.Simulate(1)
		Expect(err).To(HaveOccurred())
		Expect(s.State()).To(Equal(Finalized))
	})

	It("should stop advancing once Terminate is called", func() {
		node := &fakeNode{gid: 1}
		s := newFixtureScheduler(node)
		Expect(s.Prepare(1, 1)).To(Succeed())

		s.Terminate()
		Expect(s.Simulate(5)).To(Succeed())
		Expect(node.updateCalls).To(Equal(0))
	})

	It("should route SendSpike to the owning thread's pending queue and ignore unknown sources", func() {
		node := &fakeNode{gid: 1}
		s := newFixtureScheduler(node)

		s.SendSpike(1, 0, 0)
		s.SendSpike(999, 0, 0) // unknown source, dropped

		Expect(s.pending[0]).To(HaveLen(1))
		Expect(s.pending[0][0].LocalID).To(Equal(0))
	})
})
