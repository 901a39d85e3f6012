// Package connbuilder executes a declarative connectivity rule over
// source×target GID collections, inserting into connstore.Store and
// accumulating into sourcetable.Table (§4.7).
package connbuilder

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/sarchlab/spikesim/connstore"
	"github.com/sarchlab/spikesim/delaycheck"
	"github.com/sarchlab/spikesim/sourcetable"
	"github.com/sarchlab/spikesim/statusdict"
	"github.com/sarchlab/spikesim/synapse"
	"github.com/sarchlab/spikesim/timegrid"
)

// Rule names a declarative connectivity pattern.
type Rule string

const (
	OneToOne          Rule = "one_to_one"
	AllToAll          Rule = "all_to_all"
	FixedIndegree     Rule = "fixed_indegree"
	FixedOutdegree    Rule = "fixed_outdegree"
	PairwiseBernoulli Rule = "pairwise_bernoulli"
)

// SynapseSpec describes the synapse model and parameters a Builder inserts
// with.
type SynapseSpec struct {
	ModelID    int
	WeightMS   float64
	DelayMS    float64
	Port       int
	NewSynapse func(delaySteps int, weight float64, port int) synapse.Synapse
}

// TargetResolver resolves a target GID to the thread that owns it and the
// connstore.Target to store the connection against, breaking the
// Builder->neuron.Registry dependency into a small trait-like interface
// (§9).
type TargetResolver interface {
	ResolveTarget(gid uint64) (tid int, target connstore.Target, found bool)
}

// SynIndexAssigner assigns a dense per-thread synapse-type index for a
// model id, creating one on first use.
type SynIndexAssigner interface {
	SynIndexForModel(tid, modelID int) int
}

// VPResolver resolves a GID's owning virtual process, used to select the
// per-VP RNG a random rule draws from (§4.7, §5).
type VPResolver interface {
	VPOf(gid uint64) int
}

// Builder executes one connectivity rule. A Builder is single-use: Build
// may only be called once.
type Builder struct {
	rule    Rule
	sources []uint64
	targets []uint64
	spec    SynapseSpec
	degree  int // for fixed_indegree/fixed_outdegree
	p       float64 // for pairwise_bernoulli

	used bool
}

// New creates a Builder for rule over the given source and target GID
// collections.
func New(rule Rule, sources, targets []uint64, spec SynapseSpec) *Builder {
	return &Builder{rule: rule, sources: sources, targets: targets, spec: spec}
}

// WithDegree sets the fixed in/out-degree parameter for
// fixed_indegree/fixed_outdegree rules.
func (b *Builder) WithDegree(n int) *Builder {
	b.degree = n
	return b
}

// WithProbability sets the connection probability for pairwise_bernoulli.
func (b *Builder) WithProbability(p float64) *Builder {
	b.p = p
	return b
}

// edge is one candidate (source, target) pair before insertion.
type edge struct {
	source uint64
	target uint64
}

// Build executes the rule, inserting accepted edges into store and
// sourceTable. Per-edge errors (unknown target, bad delay) are returned in
// the errs slice but do not stop the build (§4.9): every other edge is
// still attempted.
func (b *Builder) Build(
	store *connstore.Store,
	sourceTable *sourcetable.Table,
	checker *delaycheck.Checker,
	grid *timegrid.Grid,
	resolver TargetResolver,
	assigner SynIndexAssigner,
	vp VPResolver,
	perVPRand []*rand.Rand,
) (built int, errs []error) {
	if b.used {
		errs = append(errs, statusdict.New(statusdict.KindBadProperty, "",
			"connection builder is single-use"))
		return 0, errs
	}
	b.used = true

	edges, err := b.materializeEdges(vp, perVPRand)
	if err != nil {
		return 0, []error{err}
	}

	delaySteps, ok := grid.MSToDelaySteps(b.spec.DelayMS)
	if !ok {
		return 0, []error{statusdict.New(statusdict.KindBadDelay, "delay",
			"delay is not an integer multiple of the resolution")}
	}

	for _, e := range edges {
		if err := checker.Admit(delaySteps); err != nil {
			errs = append(errs, err)
			continue
		}

		tid, target, found := resolver.ResolveTarget(e.target)
		if !found {
			errs = append(errs, statusdict.New(statusdict.KindUnknownNode, "target",
				fmt.Sprintf("target gid %d not found", e.target)))
			continue
		}

		synIndex := assigner.SynIndexForModel(tid, b.spec.ModelID)
		syn := b.spec.NewSynapse(int(delaySteps), b.spec.WeightMS, b.spec.Port)

		store.Add(tid, synIndex, e.source, target, syn)
		sourceTable.Add(tid, synIndex, e.source, true)

		built++
	}

	return built, errs
}

// materializeEdges expands the declarative rule into a concrete edge list,
// grouped by source so that Build's insertion order preserves the
// source-contiguity invariant (I6) regardless of which rule produced the
// edges.
func (b *Builder) materializeEdges(vp VPResolver, perVPRand []*rand.Rand) ([]edge, error) {
	bySource := make(map[uint64][]uint64)
	order := make([]uint64, 0, len(b.sources))

	addEdge := func(source, target uint64) {
		if _, seen := bySource[source]; !seen {
			order = append(order, source)
		}
		bySource[source] = append(bySource[source], target)
	}

	switch b.rule {
	case OneToOne:
		if len(b.sources) != len(b.targets) {
			return nil, statusdict.New(statusdict.KindDimensionMismatch, "",
				"one_to_one requires equal-length source and target lists")
		}
		for i := range b.sources {
			addEdge(b.sources[i], b.targets[i])
		}

	case AllToAll:
		for _, s := range b.sources {
			for _, t := range b.targets {
				addEdge(s, t)
			}
		}

	case FixedOutdegree:
		for _, s := range b.sources {
			rng := rngFor(perVPRand, vp, s)
			for _, t := range sampleWithoutReplacement(b.targets, b.degree, rng) {
				addEdge(s, t)
			}
		}

	case FixedIndegree:
		for _, t := range b.targets {
			rng := rngFor(perVPRand, vp, t)
			for _, s := range sampleWithoutReplacement(b.sources, b.degree, rng) {
				addEdge(s, t)
			}
		}

	case PairwiseBernoulli:
		for _, s := range b.sources {
			rng := rngFor(perVPRand, vp, s)
			bern := distuv.Bernoulli{P: b.p, Src: rng}
			for _, t := range b.targets {
				if bern.Rand() == 1 {
					addEdge(s, t)
				}
			}
		}

	default:
		return nil, statusdict.New(statusdict.KindBadProperty, "rule",
			fmt.Sprintf("unknown connectivity rule %q", b.rule))
	}

	edges := make([]edge, 0, len(order))
	for _, s := range order {
		for _, t := range bySource[s] {
			edges = append(edges, edge{source: s, target: t})
		}
	}

	return edges, nil
}

// rngFor picks the per-virtual-process RNG owning gid, so parallel
// construction is deterministic for a fixed VP count (§4.7).
func rngFor(perVPRand []*rand.Rand, vp VPResolver, gid uint64) *rand.Rand {
	if vp == nil || len(perVPRand) == 0 {
		return rand.New(rand.NewSource(1))
	}

	idx := vp.VPOf(gid) % len(perVPRand)
	return perVPRand[idx]
}

// sampleWithoutReplacement draws min(n, len(pool)) distinct elements from
// pool using gonum's weighted-without-replacement sampler with uniform
// weights.
func sampleWithoutReplacement(pool []uint64, n int, rng *rand.Rand) []uint64 {
	if n >= len(pool) {
		out := make([]uint64, len(pool))
		copy(out, pool)
		return out
	}

	weights := make([]float64, len(pool))
	for i := range weights {
		weights[i] = 1.0
	}

	sampler := sampleuv.NewWeighted(weights, rng)

	out := make([]uint64, 0, n)
	for len(out) < n {
		idx, ok := sampler.Take()
		if !ok {
			break
		}
		out = append(out, pool[idx])
	}

	return out
}
