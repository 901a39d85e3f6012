package neuron

import "github.com/rs/xid"

// VPLayout maps virtual process ids to (rank, tid) pairs and back, per
// vp = gid mod V, V = ranks * threadsPerRank (§5).
type VPLayout struct {
	Ranks          int
	ThreadsPerRank int
}

// V returns the total number of virtual processes.
func (l VPLayout) V() int {
	return l.Ranks * l.ThreadsPerRank
}

// VPOf returns the virtual process a GID is assigned to.
func (l VPLayout) VPOf(gid uint64) int {
	return int(gid % uint64(l.V()))
}

// RankTidOf resolves a virtual process id to its owning (rank, tid).
func (l VPLayout) RankTidOf(vp int) (rank, tid int) {
	return vp / l.ThreadsPerRank, vp % l.ThreadsPerRank
}

// Registry assigns dense GIDs to newly created nodes and tracks their
// ownership, mirroring add_node(model_id, count).
type Registry struct {
	layout VPLayout
	nodes  map[uint64]Node

	nextGID   uint64
	parallel  bool
}

// NewRegistry creates an empty Registry over the given VP layout. GID 0 is
// reserved (the reference simulator's "no node" sentinel); the first real
// node is GID 1.
func NewRegistry(layout VPLayout) *Registry {
	return &Registry{
		layout:  layout,
		nodes:   make(map[uint64]Node),
		nextGID: 1,
	}
}

// UseParallelAllocation switches GID minting to the xid-backed path, whose
// GIDs still increase but are not assigned in a fixed sequential order.
// The Registry takes no lock on either path; concurrent AddNode calls are
// not synchronized by it.
func (r *Registry) UseParallelAllocation() {
	r.parallel = true
}

// AddNode registers count instances of modelID, calling newNode once per
// instance to construct the concrete Node (or Proxy, for non-owning ranks).
// It returns the assigned GIDs in creation order.
func (r *Registry) AddNode(
	modelID int,
	count int,
	selfRank int,
	newNode func(gid uint64, thread, vp int) Node,
	newProxy func(gid uint64) Node,
) []uint64 {
	gids := make([]uint64, 0, count)

	for i := 0; i < count; i++ {
		gid := r.mintGID()
		vp := r.layout.VPOf(gid)
		rank, tid := r.layout.RankTidOf(vp)

		var node Node
		if rank == selfRank {
			node = newNode(gid, tid, vp)
		} else {
			node = newProxy(gid)
		}

		r.nodes[gid] = node
		gids = append(gids, gid)
	}

	return gids
}

func (r *Registry) mintGID() uint64 {
	if !r.parallel {
		gid := r.nextGID
		r.nextGID++

		return gid
	}

	// The parallel path skips ahead by xid's embedded counter, so GIDs stay
	// strictly increasing but leave non-reproducible gaps.
	id := xid.New()
	counter := uint64(id.Counter())
	gid := r.nextGID + counter
	r.nextGID = gid + 1

	return gid
}

// Get returns the node registered under gid, or nil if none exists.
func (r *Registry) Get(gid uint64) Node {
	return r.nodes[gid]
}

// NumNodes returns the number of registered nodes (including proxies).
func (r *Registry) NumNodes() int {
	return len(r.nodes)
}

// Layout returns the registry's VP layout.
func (r *Registry) Layout() VPLayout {
	return r.layout
}
