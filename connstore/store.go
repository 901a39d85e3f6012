// Package connstore is the per-thread, per-source compact storage of
// outgoing synapses (§4.4): the post-synaptic table of connections indexed
// by source, organized by synapse-type id, from which Send walks a
// source-contiguous run without per-element dispatch.
package connstore

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/sarchlab/spikesim/statusdict"
	"github.com/sarchlab/spikesim/synapse"
)

// InvalidSynIndex is returned by GetSynID for a source connected through
// more than one synapse type (a HetConnector source), matching the
// reference simulator's sentinel.
const InvalidSynIndex = -1

// Target is the minimal contract a connection's destination must satisfy:
// exactly the subset of neuron.Node that connstore needs, kept as a small
// trait-like interface so this package never imports neuron (§9,
// "Cyclic dependencies").
type Target interface {
	GID() uint64
	Handle(evt synapse.Event) error
}

// Slot is one stored connection: a synapse object plus its target and the
// has-subsequent-same-source flag that makes runs of same-source
// connections deliverable in a tight loop (I6).
type Slot struct {
	Target                  Target
	Syn                     synapse.Synapse
	SourceGID               uint64
	HasSubsequentSameSource bool
}

// row is one (tid, synIndex) vector: the arena-backed, bump-allocated
// storage for every connection of one synapse type on one thread.
// Growing beyond the current slab replaces the backing array wholesale
// (the reference simulator's suicide-and-resurrect pattern) so that the
// only way to free connections is a bulk arena reset, never a
// per-connection free.
type row struct {
	slots []Slot
}

func newRow(reserve int) *row {
	return &row{slots: make([]Slot, 0, reserve)}
}

func (r *row) add(s Slot) int {
	r.slots = append(r.slots, s)
	return len(r.slots) - 1
}

func (r *row) bytes() int64 {
	return int64(cap(r.slots)) * int64(sizeofSlot)
}

// sizeofSlot is a conservative estimate used only for diagnostic size
// reporting, not for any addressing decision.
const sizeofSlot = 64

// Store is the per-process connection arena: a slice of per-thread
// mappings from synapse-type index to row.
type Store struct {
	rows [][]*row // rows[tid][synIndex]

	// lastSource[tid][synIndex] is the source GID of the most recently
	// added slot in that row, used to detect and flag contiguous runs
	// as callers Add connections (I6).
	lastSource []map[int]uint64

	// synIndexOfSource[tid] maps a source GID to the single synIndex it
	// uses, when homogeneous; a source that has used more than one
	// synIndex is recorded in heterogeneous instead and removed here.
	synIndexOfSource []map[uint64]int
	heterogeneous    []map[uint64]map[int]bool
}

// New creates an empty Store sized for numThreads owning threads.
func New(numThreads int) *Store {
	s := &Store{
		rows:             make([][]*row, numThreads),
		lastSource:       make([]map[int]uint64, numThreads),
		synIndexOfSource: make([]map[uint64]int, numThreads),
		heterogeneous:    make([]map[uint64]map[int]bool, numThreads),
	}
	for i := 0; i < numThreads; i++ {
		s.lastSource[i] = make(map[int]uint64)
		s.synIndexOfSource[i] = make(map[uint64]int)
		s.heterogeneous[i] = make(map[uint64]map[int]bool)
	}

	return s
}

// Reserve pre-allocates capacity for count additional connections of
// synIndex on thread tid, from a build-phase size estimate, avoiding
// repeated slab growth during the actual build.
func (s *Store) Reserve(tid, synIndex, count int) {
	r := s.row(tid, synIndex)
	if cap(r.slots)-len(r.slots) < count {
		grown := make([]Slot, len(r.slots), len(r.slots)+count)
		copy(grown, r.slots)
		r.slots = grown
	}
}

func (s *Store) row(tid, synIndex int) *row {
	for len(s.rows[tid]) <= synIndex {
		s.rows[tid] = append(s.rows[tid], nil)
	}

	if s.rows[tid][synIndex] == nil {
		s.rows[tid][synIndex] = newRow(0)
	}

	return s.rows[tid][synIndex]
}

// Add appends a connection, preserving I6: if the previous slot added to
// this (tid, synIndex) row has the same source GID, its
// HasSubsequentSameSource flag is set. Callers (ConnectionBuilder) must add
// connections grouped by source for this detection to produce full runs;
// out-of-order adds still function correctly, just without run-merging
// across the interruption.
func (s *Store) Add(tid, synIndex int, sourceGID uint64, target Target, syn synapse.Synapse) (lcid int) {
	r := s.row(tid, synIndex)

	if last, ok := s.lastSource[tid][synIndex]; ok && last == sourceGID && len(r.slots) > 0 {
		r.slots[len(r.slots)-1].HasSubsequentSameSource = true
	}

	lcid = r.add(Slot{Target: target, Syn: syn, SourceGID: sourceGID})
	s.lastSource[tid][synIndex] = sourceGID

	s.trackSourceType(tid, sourceGID, synIndex)

	return lcid
}

func (s *Store) trackSourceType(tid int, sourceGID uint64, synIndex int) {
	if het, ok := s.heterogeneous[tid][sourceGID]; ok {
		het[synIndex] = true
		return
	}

	existing, seen := s.synIndexOfSource[tid][sourceGID]
	if !seen {
		s.synIndexOfSource[tid][sourceGID] = synIndex
		return
	}

	if existing == synIndex {
		return
	}

	// Second distinct synapse type for this source: promote to
	// heterogeneous and drop the homogeneous entry.
	delete(s.synIndexOfSource[tid], sourceGID)
	s.heterogeneous[tid][sourceGID] = map[int]bool{existing: true, synIndex: true}
}

// GetSynID returns the sole synapse-type index a source uses on thread
// tid, or InvalidSynIndex if the source is heterogeneous (multiple types)
// or unknown.
func (s *Store) GetSynID(tid int, sourceGID uint64) int {
	if _, het := s.heterogeneous[tid][sourceGID]; het {
		return InvalidSynIndex
	}

	if synIndex, ok := s.synIndexOfSource[tid][sourceGID]; ok {
		return synIndex
	}

	return InvalidSynIndex
}

// IsHeterogeneous reports whether a source connects through more than one
// synapse type on thread tid.
func (s *Store) IsHeterogeneous(tid int, sourceGID uint64) bool {
	_, het := s.heterogeneous[tid][sourceGID]
	return het
}

// GetTargetGID returns the GID of the target at (tid, synIndex, lcid).
func (s *Store) GetTargetGID(tid, synIndex, lcid int) uint64 {
	return s.rows[tid][synIndex].slots[lcid].Target.GID()
}

// GetNumConnections returns the number of connections stored in (tid,
// synIndex).
func (s *Store) GetNumConnections(tid, synIndex int) int {
	if synIndex >= len(s.rows[tid]) || s.rows[tid][synIndex] == nil {
		return 0
	}

	return len(s.rows[tid][synIndex].slots)
}

// HasSubsequentSameSource reports the flag stored at (tid, synIndex, lcid).
func (s *Store) HasSubsequentSameSource(tid, synIndex, lcid int) bool {
	return s.rows[tid][synIndex].slots[lcid].HasSubsequentSameSource
}

// SetHasSubsequentSameSource overwrites the flag at (tid, synIndex, lcid),
// the hook sourcetable.Table.NextTargetData uses during the build-to-route
// conversion (§4.6 step 3).
func (s *Store) SetHasSubsequentSameSource(tid, synIndex, lcid int, v bool) {
	s.rows[tid][synIndex].slots[lcid].HasSubsequentSameSource = v
}

// Send delivers evt starting at (tid, synIndex, lcid), and while
// HasSubsequentSameSource is true continues to lcid+1, lcid+2, ... This is
// the spike-delivery hot path: no per-element dispatch beyond the two
// interface calls (Syn.Send, Target.Handle) each connection needs anyway.
func (s *Store) Send(
	tid, synIndex, lcid int,
	evt synapse.Event,
	thread int,
	lastPreSpikeTime float64,
	common *synapse.CommonProperties,
) error {
	r := s.rows[tid][synIndex]

	for {
		slot := &r.slots[lcid]

		if err := slot.Syn.Send(evt, thread, lastPreSpikeTime, common); err != nil {
			return err
		}

		if err := slot.Target.Handle(evt); err != nil {
			return err
		}

		if !slot.HasSubsequentSameSource {
			return nil
		}

		lcid++
	}
}

// TriggerUpdateWeight iterates every connection of synIndex on thread tid,
// filtering by volume-transmitter GID, applying neuromodulated plasticity
// updates (§4.4 last bullet, supplemented from the reference simulator's
// connector_base.h). The row is skipped when common names a different
// volume transmitter than vtGID; with a nil common no filter applies.
func (s *Store) TriggerUpdateWeight(
	tid, synIndex int,
	vtGID uint64,
	dopaSpikes []synapse.DopamineSpike,
	tTrig float64,
	common *synapse.CommonProperties,
) {
	if synIndex >= len(s.rows[tid]) || s.rows[tid][synIndex] == nil {
		return
	}

	if common != nil && common.VTGID != vtGID {
		return
	}

	for i := range s.rows[tid][synIndex].slots {
		s.rows[tid][synIndex].slots[i].Syn.TriggerUpdateWeight(vtGID, dopaSpikes, tTrig, common)
	}
}

// ArenaSize reports the total bytes reserved for thread tid's rows, in
// human-readable form, for diagnostic reporting.
func (s *Store) ArenaSize(tid int) datasize.ByteSize {
	var total int64
	for _, r := range s.rows[tid] {
		if r != nil {
			total += r.bytes()
		}
	}

	return datasize.ByteSize(total)
}

// Diagnostics returns a human-readable summary of a thread's arena usage.
func (s *Store) Diagnostics(tid int) string {
	return fmt.Sprintf("thread %d: %s reserved across %d synapse types",
		tid, s.ArenaSize(tid).HumanReadable(), len(s.rows[tid]))
}

// GetStatus/SetStatus surface a single connection's synapse status through
// the status-dictionary gateway (§6).
func (s *Store) GetStatus(tid, synIndex, lcid int) statusdict.Dict {
	return s.rows[tid][synIndex].slots[lcid].Syn.GetStatus()
}

func (s *Store) SetStatus(tid, synIndex, lcid int, dict statusdict.Dict) error {
	return s.rows[tid][synIndex].slots[lcid].Syn.SetStatus(dict)
}
