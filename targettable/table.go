package targettable

// Table holds, per owning thread and per local neuron id, the list of
// remote endpoints that neuron's outgoing spikes must reach. It is built
// once, after all connections exist, by inverting SourceTable through an
// all-to-all of TargetData packets (§4.6).
type Table struct {
	// perThread[tid][localID] is the list of Target entries for that
	// neuron's outgoing connections.
	perThread []map[int][]Target

	// secondary holds routing for secondary (non-spike) events, keyed the
	// same way but tracked separately since it uses a distinct
	// fixed-chunk buffer layout (see BuildSecondaryBufferLayout).
	secondary []map[int][]Target
}

// New creates an empty Table sized for numThreads owning threads.
func New(numThreads int) *Table {
	t := &Table{
		perThread: make([]map[int][]Target, numThreads),
		secondary: make([]map[int][]Target, numThreads),
	}
	for i := range t.perThread {
		t.perThread[i] = make(map[int][]Target)
		t.secondary[i] = make(map[int][]Target)
	}

	return t
}

// AddPrimary appends a Target to the primary (spike) route list for the
// local neuron localID owned by thread tid.
func (t *Table) AddPrimary(tid, localID int, target Target) {
	t.perThread[tid][localID] = append(t.perThread[tid][localID], target)
}

// AddSecondary appends a Target to the secondary-event route list.
func (t *Table) AddSecondary(tid, localID int, target Target) {
	t.secondary[tid][localID] = append(t.secondary[tid][localID], target)
}

// Targets returns the primary routing list for a local neuron. The
// returned slice must not be mutated by the caller.
func (t *Table) Targets(tid, localID int) []Target {
	return t.perThread[tid][localID]
}

// SecondaryTargets returns the secondary-event routing list for a local
// neuron.
func (t *Table) SecondaryTargets(tid, localID int) []Target {
	return t.secondary[tid][localID]
}

// NumThreads returns the number of owning threads this table was built for.
func (t *Table) NumThreads() int {
	return len(t.perThread)
}

// SecondaryBufferLayout maps a source GID to the byte offset of its
// secondary-event slot inside a uniformly-chunked receive buffer, per
// §4.6's last paragraph.
type SecondaryBufferLayout struct {
	ChunkSize int
	Offsets   map[uint64]int
}

// EventSize describes one source's secondary-event footprint, as collected
// across all threads before layout.
type EventSize struct {
	SourceGID uint64
	Rank      int
	Bytes     int
}

// BuildSecondaryBufferLayout collects every unique (source_gid, event_size)
// across all threads, partitions by owning rank, and derives a uniform
// per-rank chunk size from the caller-supplied maxBytesPerRank (the
// all-reduce-max over ranks, which the caller performs). It then assigns
// each source a byte offset within its rank's chunk.
func BuildSecondaryBufferLayout(sizes []EventSize, maxBytesPerRank int) *SecondaryBufferLayout {
	layout := &SecondaryBufferLayout{
		ChunkSize: maxBytesPerRank,
		Offsets:   make(map[uint64]int, len(sizes)),
	}

	byRank := make(map[int][]EventSize)
	for _, s := range sizes {
		byRank[s.Rank] = append(byRank[s.Rank], s)
	}

	for _, group := range byRank {
		offset := 0
		for _, s := range group {
			if _, seen := layout.Offsets[s.SourceGID]; seen {
				continue
			}

			layout.Offsets[s.SourceGID] = offset
			offset += s.Bytes
		}
	}

	return layout
}
