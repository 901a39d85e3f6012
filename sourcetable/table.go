// Package sourcetable is the build-time inverse of TargetTable: for every
// stored connection, it records the source GID plus flags. It exists only
// during the build-to-route conversion (§4.5) and is compacted afterward.
package sourcetable

import "github.com/sarchlab/spikesim/targettable"

// Entry mirrors one ConnectionStore slot: the source GID plus its
// processed/disabled/is_primary flags.
type Entry struct {
	SourceGID uint64
	Processed bool
	Disabled  bool
	IsPrimary bool
}

// cursor tracks the position of the sole NextTargetData iterator for one
// thread. lcid decrements from the tail of the current synIndex vector; when
// exhausted, synIndex decrements too. synIndex == -1 marks exhaustion.
type cursor struct {
	synIndex int
	lcid     int
	started  bool
}

// Table is a per-thread, per-synapse-type-index record of source GIDs,
// parallel in shape to ConnectionStore.
type Table struct {
	// entries[tid][synIndex] is the vector of Entry for that (tid,
	// synIndex), indexed by lcid, mirroring ConnectionStore's layout.
	entries [][][]Entry
	cursors []cursor
}

// New creates an empty Table sized for numThreads owning threads.
func New(numThreads int) *Table {
	return &Table{
		entries: make([][][]Entry, numThreads),
		cursors: make([]cursor, numThreads),
	}
}

// Add appends a source-table entry mirroring a ConnectionStore.Add call,
// returning the assigned lcid. synIndex must match the dense synapse-type
// index ConnectionStore assigned for this thread.
func (t *Table) Add(tid, synIndex int, sourceGID uint64, isPrimary bool) int {
	for len(t.entries[tid]) <= synIndex {
		t.entries[tid] = append(t.entries[tid], nil)
	}

	t.entries[tid][synIndex] = append(t.entries[tid][synIndex], Entry{
		SourceGID: sourceGID,
		IsPrimary: isPrimary,
	})

	return len(t.entries[tid][synIndex]) - 1
}

// MarkDisabled flags an entry so it is skipped by the build phase and by
// NextTargetData, without removing it (removal would shift every later
// lcid).
func (t *Table) MarkDisabled(tid, synIndex, lcid int) {
	t.entries[tid][synIndex][lcid].Disabled = true
}

// Entry returns a copy of the entry at (tid, synIndex, lcid).
func (t *Table) Entry(tid, synIndex, lcid int) Entry {
	return t.entries[tid][synIndex][lcid]
}

// NumSynIndices returns the number of distinct synapse-type indices thread
// tid has stored entries for.
func (t *Table) NumSynIndices(tid int) int {
	return len(t.entries[tid])
}

// Len returns the number of entries stored for (tid, synIndex).
func (t *Table) Len(tid, synIndex int) int {
	if synIndex >= len(t.entries[tid]) {
		return 0
	}

	return len(t.entries[tid][synIndex])
}

// SubsequentSetter is called by NextTargetData to record the
// has-subsequent-same-source flag on the corresponding ConnectionStore
// slot, since that flag physically lives on the connection, not the source
// table entry.
type SubsequentSetter func(tid, synIndex, lcid int, hasSubsequentSameSource bool)

// RankOf resolves the owning rank for a source GID.
type RankOf func(sourceGID uint64) int

// NextTargetData is the sole SourceTable cursor (§9 Open Question:
// get_next_source/reject_last_source are dropped in favor of this single
// iterator). Each call advances thread tid's cursor from the tail of its
// last synapse-type vector, skipping already-processed, disabled, and
// out-of-range entries, until it finds one to emit or exhausts the table.
//
// rankStart/rankEnd bound the sub-range of source ranks this call is
// willing to route this iteration (workers process ranks in chunks so the
// all-to-all output stays bounded); selfRank is this thread's own rank,
// stamped into the emitted Target.
func (t *Table) NextTargetData(
	tid int,
	rankOf RankOf,
	selfRank, rankStart, rankEnd int,
	setSubsequent SubsequentSetter,
) (targettable.TargetData, bool) {
	c := &t.cursors[tid]

	if !c.started {
		c.started = true
		c.synIndex = len(t.entries[tid]) - 1
		if c.synIndex >= 0 {
			c.lcid = len(t.entries[tid][c.synIndex]) - 1
		} else {
			c.lcid = -1
		}
	}

	for c.synIndex >= 0 {
		if c.lcid < 0 {
			c.synIndex--
			if c.synIndex >= 0 {
				c.lcid = len(t.entries[tid][c.synIndex]) - 1
			}

			continue
		}

		synIndex := c.synIndex
		lcid := c.lcid
		vec := t.entries[tid][synIndex]
		entry := vec[lcid]
		c.lcid--

		if entry.Processed || entry.Disabled {
			continue
		}

		targetRank := rankOf(entry.SourceGID)
		if targetRank < rankStart || targetRank >= rankEnd {
			continue
		}

		vec[lcid].Processed = true

		hasSubsequent := lcid+1 < len(vec) && vec[lcid+1].SourceGID == entry.SourceGID
		setSubsequent(tid, synIndex, lcid, hasSubsequent)

		if lcid-1 >= 0 && vec[lcid-1].SourceGID == entry.SourceGID && !vec[lcid-1].Processed {
			// A single TargetData suffices for a whole contiguous run;
			// the run will be emitted when its earliest member is reached.
			continue
		}

		return targettable.TargetData{
			SourceGID: entry.SourceGID,
			Target:    targettable.NewTarget(selfRank, tid, synIndex, lcid, true),
		}, true
	}

	return targettable.TargetData{}, false
}

// ResetCursor rewinds thread tid's NextTargetData cursor, used when the
// caller wants a fresh pass over the same rank sub-range (e.g. the next
// rank-chunk iteration described in §4.6 step 2).
func (t *Table) ResetCursor(tid int) {
	t.cursors[tid] = cursor{}
}

// MaxUnprocessedPosition returns, for thread tid, the highest lcid across
// all synapse-type vectors that is still unprocessed, or -1 if every entry
// has been processed. Used to bound Clean.
func (t *Table) MaxUnprocessedPosition(tid int) int {
	max := -1

	for _, vec := range t.entries[tid] {
		for lcid, e := range vec {
			if !e.Processed && lcid > max {
				max = lcid
			}
		}
	}

	return max
}

// Clean reclaims memory for entries beyond the maximum unprocessed position
// across all threads, per §4.5: SourceTable is only needed up to the point
// where some thread still has unprocessed work.
func (t *Table) Clean(globalMaxUnprocessed int) {
	if globalMaxUnprocessed < 0 {
		for tid := range t.entries {
			t.entries[tid] = nil
		}

		return
	}

	for tid := range t.entries {
		for synIndex, vec := range t.entries[tid] {
			if len(vec) > globalMaxUnprocessed+1 {
				t.entries[tid][synIndex] = vec[:globalMaxUnprocessed+1]
			}
		}
	}
}
