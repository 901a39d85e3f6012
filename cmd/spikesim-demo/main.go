// Command spikesim-demo wires a small network end to end: two populations
// connected pairwise_bernoulli, run for 10 steps (1 ms at the default
// 0.1 ms resolution) on the local
// transport. It mirrors the akita CLI convention of a thin cmd layered over
// the library (sim/simulation.go's caller).
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/spikesim/connbuilder"
	"github.com/sarchlab/spikesim/connstore"
	"github.com/sarchlab/spikesim/kernel"
	"github.com/sarchlab/spikesim/neuron"
	"github.com/sarchlab/spikesim/scheduler"
	"github.com/sarchlab/spikesim/statusdict"
	"github.com/sarchlab/spikesim/synapse"
	"github.com/sarchlab/spikesim/timegrid"
	"github.com/sarchlab/spikesim/transport"
)

func main() {
	seed := flag.Int64("seed", 1, "RNG seed")
	threads := flag.Int("threads", 0, "local thread count (0 autodetects)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("spikesim-demo: .env not loaded: %v", err)
	}

	numThreads := *threads
	if numThreads == 0 {
		numThreads = autodetectThreads()
	}

	rand.Seed(*seed)

	t := transport.NewLocal()
	k := kernel.New(numThreads, t)

	if err := k.SetStatus(statusdict.Dict{"min_delay": 1.0, "max_delay": 1.0}); err != nil {
		log.Fatalf("spikesim-demo: %v", err)
	}

	sources, targets := buildPopulations(k)
	connect(k, sources, targets)

	if err := runSimulation(k, sources, targets, timegrid.Step(10)); err != nil {
		log.Fatalf("spikesim-demo: simulation failed: %v", err)
	}

	fmt.Printf("spikesim-demo: ran %d steps across %d threads on %d ranks\n",
		10, numThreads, t.Size())

	atexit.Exit(0)
}

// autodetectThreads probes the logical core count via gopsutil, falling
// back to runtime.NumCPU() if the probe errors.
func autodetectThreads() int {
	counts, err := cpu.Counts(true)
	if err != nil || counts == 0 {
		return runtime.NumCPU()
	}

	return counts
}

func buildPopulations(k *kernel.Kernel) (sources, targets []uint64) {
	minSteps, maxSteps := int(k.Checker.GetMin()), int(k.Checker.GetMax())

	sources = k.Registry.AddNode(0, 20, k.Transport.Rank(),
		func(gid uint64, thread, vp int) neuron.Node {
			return neuron.NewLIF(gid, 0, thread, vp, nil, k.Grid, minSteps, maxSteps, 10.0, 1.0, 0.0)
		},
		func(gid uint64) neuron.Node { return neuron.NewProxy(gid, 0) },
	)

	targets = k.Registry.AddNode(1, 20, k.Transport.Rank(),
		func(gid uint64, thread, vp int) neuron.Node {
			return neuron.NewLIF(gid, 1, thread, vp, nil, k.Grid, minSteps, maxSteps, 10.0, 1.0, 0.0)
		},
		func(gid uint64) neuron.Node { return neuron.NewProxy(gid, 1) },
	)

	k.MarkNodesExist()

	return sources, targets
}

func connect(k *kernel.Kernel, sources, targets []uint64) {
	spec := connbuilder.SynapseSpec{
		ModelID:  0,
		WeightMS: 0.1,
		DelayMS:  1.0,
		Port:     0,
		NewSynapse: func(delaySteps int, weight float64, port int) synapse.Synapse {
			return synapse.NewStatic(delaySteps, weight, port)
		},
	}

	builder := connbuilder.New(connbuilder.PairwiseBernoulli, sources, targets, spec).
		WithProbability(0.1)

	_, errs := builder.Build(k.Store, k.SourceTable, k.Checker, k.Grid,
		registryResolver{k: k}, staticSynIndex{}, k.Registry.Layout(), nil)
	for _, err := range errs {
		log.Printf("spikesim-demo: connection skipped: %v", err)
	}

	k.MarkConnectionsExist()
}

// registryResolver adapts neuron.Registry to connbuilder.TargetResolver.
// neuron.Node already implements connstore.Target (GID/Handle), so no
// wrapper type is needed beyond the nil check.
type registryResolver struct{ k *kernel.Kernel }

func (r registryResolver) ResolveTarget(gid uint64) (int, connstore.Target, bool) {
	node := r.k.Registry.Get(gid)
	if node == nil {
		return 0, nil, false
	}

	return node.Thread(), node, true
}

type staticSynIndex struct{}

func (staticSynIndex) SynIndexForModel(_, modelID int) int { return modelID }

func runSimulation(k *kernel.Kernel, sources, targets []uint64, duration timegrid.Step) error {
	all := append(append([]uint64{}, sources...), targets...)

	byThread := make(map[int]*scheduler.ThreadNodes)
	for _, gid := range all {
		node := k.Registry.Get(gid)
		tid := node.Thread()
		if tid < 0 {
			continue
		}

		tn, ok := byThread[tid]
		if !ok {
			tn = &scheduler.ThreadNodes{Tid: tid, LocalID: make(map[uint64]int)}
			byThread[tid] = tn
		}

		tn.LocalID[gid] = len(tn.Nodes)
		tn.Nodes = append(tn.Nodes, node)
	}

	threads := make([]scheduler.ThreadNodes, 0, len(byThread))
	for _, tn := range byThread {
		threads = append(threads, *tn)
	}

	k.Scheduler = scheduler.New(k.Grid, k.Delivery, threads)

	for _, gid := range all {
		if lif, ok := k.Registry.Get(gid).(*neuron.LIF); ok {
			lif.SetSink(k.Scheduler)
		}
	}

	if err := k.Scheduler.Prepare(k.Checker.GetMin(), k.Checker.GetMax()); err != nil {
		return err
	}

	return k.Scheduler.Simulate(duration)
}
