// Package scheduler drives the thread-parallel, barrier-synchronized main
// loop (§4.8): per-thread node.update -> barrier -> master
// gather_events (which also applies the received spikes)/advance_time,
// built the way
// sim.ParallelEngine fans work out across goroutines with a
// sync.WaitGroup and reconvenes at a shared boundary.
package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/spikesim/delivery"
	"github.com/sarchlab/spikesim/neuron"
	"github.com/sarchlab/spikesim/timegrid"
)

// State is one of the scheduler's four lifecycle states (§4.8).
type State int

const (
	Fresh State = iota
	Prepared
	Running
	Finalized
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "Fresh"
	case Prepared:
		return "Prepared"
	case Running:
		return "Running"
	case Finalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// ThreadNodes is the set of unfrozen nodes a thread updates each sub-slice,
// supplied by the kernel from neuron.Registry at Prepare time.
type ThreadNodes struct {
	Tid   int
	Nodes []neuron.Node
	// LocalID maps a node's GID to its dense per-thread local id, the key
	// TargetTable and delivery.LocalSpike route by.
	LocalID map[uint64]int
}

// Scheduler owns the state machine and the parallel update loop.
type Scheduler struct {
	grid     *timegrid.Grid
	delivery *delivery.EventDelivery

	state State
	clock timegrid.Step

	minDelay timegrid.Step
	maxDelay timegrid.Step

	threads []ThreadNodes

	terminate atomic.Bool

	mu         sync.Mutex
	pending    [][]delivery.LocalSpike // pending[tid]
	threadErrs []error

	gidTid     map[uint64]int
	gidLocalID map[uint64]int
}

// New creates a Fresh Scheduler over the given grid, delivery boundary and
// per-thread node sets.
func New(grid *timegrid.Grid, d *delivery.EventDelivery, threads []ThreadNodes) *Scheduler {
	s := &Scheduler{
		grid:       grid,
		delivery:   d,
		threads:    threads,
		pending:    make([][]delivery.LocalSpike, len(threads)),
		gidTid:     make(map[uint64]int),
		gidLocalID: make(map[uint64]int),
	}

	for _, t := range threads {
		for gid, localID := range t.LocalID {
			s.gidTid[gid] = t.Tid
			s.gidLocalID[gid] = localID
		}
	}

	return s
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State { return s.state }

// SendSpike implements neuron.SpikeSink: a node calls this (through
// Base.EmitSpike) from inside its Update to report an emitted spike,
// queued for the next gather_events. Spikes from GIDs this scheduler does
// not own (should not happen for correctly-wired nodes) are dropped.
func (s *Scheduler) SendSpike(source uint64, lag int, offset float64) {
	tid, ok := s.gidTid[source]
	if !ok {
		return
	}
	localID := s.gidLocalID[source]

	s.mu.Lock()
	s.pending[tid] = append(s.pending[tid], delivery.LocalSpike{
		Tid: tid, LocalID: localID, Lag: lag, Offset: offset,
	})
	s.mu.Unlock()
}

// Prepare runs the Fresh->Prepared transition: init_buffers/calibrate on
// every local node and compute the delay window (min/max already admitted
// by delaycheck.Checker are read directly; no further all-reduce is
// performed here since that lives in the caller's kernel composition, which
// owns the Transport used for the reduce).
func (s *Scheduler) Prepare(minDelay, maxDelay timegrid.Step) error {
	if s.state != Fresh && s.state != Finalized {
		return fmt.Errorf("scheduler: Prepare called from state %s", s.state)
	}

	s.minDelay = minDelay
	s.maxDelay = maxDelay

	for _, t := range s.threads {
		for _, n := range t.Nodes {
			n.InitBuffers()
			n.Calibrate()
		}
	}

	s.state = Prepared
	return nil
}

// Terminate requests that the running loop exit at the next slice boundary
// (§4.8 "Cancellation"), preserving state so Simulate can resume later.
func (s *Scheduler) Terminate() {
	s.terminate.Store(true)
}

// Simulate advances the simulation by duration (in grid steps), entering
// Running and returning to Finalized when the requested duration elapses,
// termination is requested, or a thread reports an error.
func (s *Scheduler) Simulate(duration timegrid.Step) error {
	if s.state != Prepared {
		return fmt.Errorf("scheduler: Simulate called from state %s", s.state)
	}

	s.state = Running
	defer func() { s.state = Finalized }()

	target := s.clock + duration
	fromStep := timegrid.Step(0)

	for s.clock < target && !s.terminate.Load() {
		toStep := fromStep + 1
		if toStep > s.minDelay {
			toStep = s.minDelay
		}

		if err := s.runSlice(fromStep, toStep); err != nil {
			return err
		}

		if toStep == s.minDelay {
			if err := s.gatherAndAdvance(); err != nil {
				return err
			}

			fromStep = 0
		} else {
			fromStep = toStep
		}
	}

	return nil
}

// runSlice runs one thread-parallel update round over [fromStep, toStep),
// mirroring ParallelEngine.runRound's fan-out/WaitGroup pattern (§4.8's
// "for tid in threads parallel" line).
func (s *Scheduler) runSlice(fromStep, toStep timegrid.Step) error {
	s.threadErrs = make([]error, len(s.threads))

	var wg sync.WaitGroup
	wg.Add(len(s.threads))

	for i := range s.threads {
		go func(tid int) {
			defer wg.Done()
			s.threadErrs[tid] = s.runThreadUpdate(tid, fromStep, toStep)
		}(i)
	}

	wg.Wait() // barrier

	for _, err := range s.threadErrs {
		if err != nil {
			return err
		}
	}

	return nil
}

// runThreadUpdate updates every unfrozen local node of thread tid; inbound
// spikes are applied earlier, by gatherAndAdvance through
// EventDelivery.Gather. Panics from a node's Update are recovered and
// surfaced as an error, matching §4.9's "captured per-thread, rethrown on
// the master" failure semantics.
func (s *Scheduler) runThreadUpdate(tid int, fromStep, toStep timegrid.Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: thread %d panicked: %v", tid, r)
		}
	}()

	for _, n := range s.threads[tid].Nodes {
		if n.Frozen() {
			continue
		}

		n.Update(s.clock, fromStep, toStep)
	}

	return nil
}

// gatherAndAdvance is the master phase: collocate + all-to-all deliver of
// every pending spike, then advance the clock (§4.8's "master:" block).
func (s *Scheduler) gatherAndAdvance() error {
	s.mu.Lock()
	batch := make([]delivery.LocalSpike, 0)
	for tid := range s.pending {
		batch = append(batch, s.pending[tid]...)
		s.pending[tid] = nil
	}
	s.mu.Unlock()

	if err := s.delivery.Gather(s.clock, batch); err != nil {
		return fmt.Errorf("scheduler: gather_events: %w", err)
	}

	s.clock += s.minDelay

	return nil
}

// Clock returns the scheduler's current absolute step.
func (s *Scheduler) Clock() timegrid.Step { return s.clock }
