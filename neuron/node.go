// Package neuron defines the Node contract (§4.1): the opaque per-neuron
// object the scheduler drives through update/handle, built the way
// sim.ComponentBase generalizes a bare name into an addressable substrate
// object.
package neuron

import (
	"github.com/sarchlab/spikesim/statusdict"
	"github.com/sarchlab/spikesim/synapse"
	"github.com/sarchlab/spikesim/timegrid"
)

// Node is the opaque per-neuron contract the scheduler drives. Concrete
// neuron/device models embed Base and override Update/Handle with their own
// dynamics; the core never inspects what happens inside them.
type Node interface {
	GID() uint64
	ModelID() int
	Thread() int
	VP() int

	// HasProxies is true for normal neurons (a copy of this node exists,
	// possibly as a state-free proxy, on every rank), false for devices
	// replicated per-thread instead.
	HasProxies() bool
	// LocalReceiver is true for devices that consume only
	// locally-generated events.
	LocalReceiver() bool
	// IsOffGrid is true for nodes that emit sub-step-precise spike times.
	IsOffGrid() bool
	Frozen() bool
	SetFrozen(bool)

	// Update advances internal dynamics across [from, to), possibly
	// emitting spikes via the SpikeSink passed at construction.
	Update(origin timegrid.Step, from, to timegrid.Step)
	// Handle applies an inbound event.
	Handle(evt synapse.Event) error

	InitState()
	InitBuffers()
	Calibrate()
	Finalize()

	GetStatus() statusdict.Dict
	SetStatus(dict statusdict.Dict) error
}

// SpikeSink is what a Node calls to emit a spike; the scheduler supplies
// the concrete implementation (Scheduler.SendSpike) so that Base never
// depends on the scheduler package directly, breaking the
// Node<->Scheduler cycle the reference simulator has between
// Node/ConnectionManager/Kernel (§9).
type SpikeSink interface {
	SendSpike(source uint64, lag int, offset float64)
}

// Proxy is a zero-cost stand-in for a node owned by another rank: it shares
// the model id but holds no state, and never has Update called on it.
type Proxy struct {
	gid     uint64
	modelID int
}

// NewProxy creates a Proxy for a node owned elsewhere.
func NewProxy(gid uint64, modelID int) *Proxy {
	return &Proxy{gid: gid, modelID: modelID}
}

func (p *Proxy) GID() uint64      { return p.gid }
func (p *Proxy) ModelID() int     { return p.modelID }
func (p *Proxy) Thread() int      { return -1 }
func (p *Proxy) VP() int          { return -1 }
func (p *Proxy) HasProxies() bool { return true }
func (p *Proxy) LocalReceiver() bool             { return false }
func (p *Proxy) IsOffGrid() bool                 { return false }
func (p *Proxy) Frozen() bool                    { return true }
func (p *Proxy) SetFrozen(bool)                  {}
func (p *Proxy) Update(timegrid.Step, timegrid.Step, timegrid.Step) {}
func (p *Proxy) Handle(synapse.Event) error       { return nil }
func (p *Proxy) InitState()                       {}
func (p *Proxy) InitBuffers()                     {}
func (p *Proxy) Calibrate()                       {}
func (p *Proxy) Finalize()                        {}
func (p *Proxy) GetStatus() statusdict.Dict       { return statusdict.Dict{} }
func (p *Proxy) SetStatus(statusdict.Dict) error  { return nil }

// Base provides the fields and bookkeeping shared by real (non-proxy)
// nodes: identity, ownership, flags. Concrete models embed Base and
// override Update/Handle.
type Base struct {
	gid     uint64
	modelID int
	thread  int
	vp      int

	hasProxies    bool
	localReceiver bool
	offGrid       bool
	frozen        bool

	sink SpikeSink
}

// NewBase creates a Base node.
func NewBase(gid uint64, modelID, thread, vp int, hasProxies, localReceiver, offGrid bool, sink SpikeSink) Base {
	return Base{
		gid:           gid,
		modelID:       modelID,
		thread:        thread,
		vp:            vp,
		hasProxies:    hasProxies,
		localReceiver: localReceiver,
		offGrid:       offGrid,
		sink:          sink,
	}
}

func (b *Base) GID() uint64            { return b.gid }
func (b *Base) ModelID() int           { return b.modelID }
func (b *Base) Thread() int            { return b.thread }
func (b *Base) VP() int                { return b.vp }
func (b *Base) HasProxies() bool       { return b.hasProxies }
func (b *Base) LocalReceiver() bool    { return b.localReceiver }
func (b *Base) IsOffGrid() bool        { return b.offGrid }
func (b *Base) Frozen() bool           { return b.frozen }
func (b *Base) SetFrozen(f bool)       { b.frozen = f }

// SetSink rebinds the SpikeSink a Base emits through. Nodes are typically
// constructed before the Scheduler that will drive them exists; callers
// wire the real sink in once it does.
func (b *Base) SetSink(sink SpikeSink) { b.sink = sink }

// EmitSpike reports a spike at step lag within the current slice, with an
// optional sub-step offset for off-grid models. Concrete Update
// implementations call this instead of talking to the scheduler directly.
func (b *Base) EmitSpike(lag int, offset float64) {
	if b.sink != nil {
		b.sink.SendSpike(b.gid, lag, offset)
	}
}

// InitState, InitBuffers, Calibrate and Finalize are no-ops by default;
// concrete models override the ones they need.
func (b *Base) InitState()   {}
func (b *Base) InitBuffers() {}
func (b *Base) Calibrate()   {}
func (b *Base) Finalize()    {}

// GetStatus returns the fields common to every node.
func (b *Base) GetStatus() statusdict.Dict {
	return statusdict.Dict{
		"global_id": b.gid,
		"model":     b.modelID,
		"thread":    b.thread,
		"vp":        b.vp,
		"frozen":    b.frozen,
	}
}

// SetStatus applies the "frozen" key; concrete models override to add
// their own parameters, calling Base.SetStatus first.
func (b *Base) SetStatus(dict statusdict.Dict) error {
	if f, ok := dict.GetBool("frozen"); ok {
		b.frozen = f
	}

	return nil
}
