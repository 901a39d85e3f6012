// Package synapse defines the thin abstract contract a connection object
// must satisfy (§4.1) plus the primary/secondary event types it sends
// through EventDelivery, following the builder style of sim.MsgMeta /
// sim.GeneralRspBuilder generalized from wire messages to spike events.
package synapse

import "github.com/sarchlab/spikesim/statusdict"

// Capability is a bitmask describing what a synapse model can do, replacing
// the reference simulator's templated connector hierarchy with a flat
// capability set any connection type can report (§9).
type Capability uint8

const (
	DeliversPrimarySpike Capability = 1 << iota
	DeliversSecondary
	RequiresSymmetric
	HasDelay
)

// Has reports whether the capability set includes cap.
func (c Capability) Has(cap Capability) bool {
	return c&cap != 0
}

// Event is what a synapse sends to its target's Handle method: a spike or a
// secondary (continuous-value) contribution, carrying enough addressing
// information for the target to know where in its ring buffer to accumulate.
type Event interface {
	// SourceGID is the emitting node's global id.
	SourceGID() uint64
	// Weight is the per-delivery contribution; a synapse's Send may scale
	// or replace this before the target consumes it.
	Weight() float64
	// Port is the receptor port this event targets on the receiving node.
	Port() int
	// DeliveryStep is the absolute step at which the event should be
	// applied at the target (origin step + synapse delay). Zero until a
	// synapse's Send has stamped it; the origin step alone is not the
	// delivery step (I5).
	DeliveryStep() int64
	// OriginStep is the absolute step the spike was emitted at, before
	// any synapse delay is added.
	OriginStep() int64
	// Offset is the sub-step offset for off-grid (precise) events; zero
	// for grid-aligned events.
	Offset() float64
}

// baseEvent is the concrete Event implementation built by EventBuilder.
type baseEvent struct {
	sourceGID    uint64
	weight       float64
	port         int
	originStep   int64
	deliveryStep int64
	offset       float64
}

func (e *baseEvent) SourceGID() uint64   { return e.sourceGID }
func (e *baseEvent) Weight() float64     { return e.weight }
func (e *baseEvent) Port() int           { return e.port }
func (e *baseEvent) DeliveryStep() int64 { return e.deliveryStep }
func (e *baseEvent) OriginStep() int64   { return e.originStep }
func (e *baseEvent) Offset() float64     { return e.offset }

// EventBuilder constructs Events fluently, mirroring
// sim.GeneralRspBuilder's With* chain.
type EventBuilder struct {
	sourceGID    uint64
	weight       float64
	port         int
	originStep   int64
	deliveryStep int64
	offset       float64
}

// WithSourceGID sets the emitting node's GID.
func (b EventBuilder) WithSourceGID(gid uint64) EventBuilder {
	b.sourceGID = gid
	return b
}

// WithWeight sets the event's contribution weight.
func (b EventBuilder) WithWeight(w float64) EventBuilder {
	b.weight = w
	return b
}

// WithPort sets the target receptor port.
func (b EventBuilder) WithPort(p int) EventBuilder {
	b.port = p
	return b
}

// WithDeliveryStep sets the absolute step at which the event is delivered,
// bypassing the origin-step-plus-delay computation a synapse's Send
// normally performs. Mostly useful for tests that assert on a pre-stamped
// event directly.
func (b EventBuilder) WithDeliveryStep(step int64) EventBuilder {
	b.deliveryStep = step
	return b
}

// WithOriginStep sets the absolute step the spike was emitted at. A
// synapse's Send derives DeliveryStep from this plus its own Delay() (I5).
func (b EventBuilder) WithOriginStep(step int64) EventBuilder {
	b.originStep = step
	return b
}

// WithOffset sets the sub-step offset for off-grid delivery.
func (b EventBuilder) WithOffset(offset float64) EventBuilder {
	b.offset = offset
	return b
}

// Build constructs the Event.
func (b EventBuilder) Build() Event {
	return &baseEvent{
		sourceGID:    b.sourceGID,
		weight:       b.weight,
		port:         b.port,
		originStep:   b.originStep,
		deliveryStep: b.deliveryStep,
		offset:       b.offset,
	}
}

// DopamineSpike is one entry of the volume-transmitter spike history
// consulted by TriggerUpdateWeight for three-factor plasticity.
type DopamineSpike struct {
	Time float64
	Cost float64
}

// CommonProperties holds parameters shared across every instance of one
// synapse model (as opposed to per-instance state like weight).
type CommonProperties struct {
	ModelID    int
	VTGID      uint64 // volume-transmitter GID consulted by TriggerUpdateWeight; 0 if unused
	Parameters statusdict.Dict
}

// Synapse is the abstract contract every connection object satisfies
// (§4.1). Concrete synapse models embed Base and override Send.
type Synapse interface {
	// Send delivers evt to the synapse's target, mutating its own state
	// (e.g. plastic weight update) as needed. thread is the owning
	// thread; lastPreSpikeTime supports STDP-style models that need the
	// previous presynaptic spike time.
	Send(evt Event, thread int, lastPreSpikeTime float64, common *CommonProperties) error

	// TriggerUpdateWeight applies a neuromodulated (three-factor) weight
	// update. Implementations that do not support this are no-ops.
	TriggerUpdateWeight(vtGID uint64, dopaSpikes []DopamineSpike, tTrig float64, common *CommonProperties)

	GetStatus() statusdict.Dict
	SetStatus(dict statusdict.Dict) error

	Capabilities() Capability
	Delay() int
	Weight() float64
}

// Base provides the fields and default behavior most synapse models share.
// A concrete model embeds Base and overrides Send for its own dynamics.
type Base struct {
	delaySteps int
	weight     float64
	port       int
	caps       Capability
}

// NewBase creates a Base synapse with the given delay, weight, receptor
// port and capability set.
func NewBase(delaySteps int, weight float64, port int, caps Capability) Base {
	return Base{delaySteps: delaySteps, weight: weight, port: port, caps: caps}
}

// Delay returns the synapse's delay in steps.
func (b *Base) Delay() int { return b.delaySteps }

// Weight returns the synapse's current weight.
func (b *Base) Weight() float64 { return b.weight }

// SetWeight updates the synapse's weight, called by plastic Send
// overrides and by TriggerUpdateWeight.
func (b *Base) SetWeight(w float64) { b.weight = w }

// Port returns the synapse's receptor port.
func (b *Base) Port() int { return b.port }

// Capabilities returns the synapse's capability bitmask.
func (b *Base) Capabilities() Capability { return b.caps }

// TriggerUpdateWeight is a no-op default; plastic models override it.
func (b *Base) TriggerUpdateWeight(uint64, []DopamineSpike, float64, *CommonProperties) {}

// GetStatus returns the synapse's status as a Dict.
func (b *Base) GetStatus() statusdict.Dict {
	return statusdict.Dict{
		"delay":  b.delaySteps,
		"weight": b.weight,
		"port":   b.port,
	}
}

// SetStatus applies weight and port overrides from dict. A "delay" key is
// ignored: the delay is fixed at construction, where it was admitted by
// delaycheck.Checker.
func (b *Base) SetStatus(dict statusdict.Dict) error {
	if w, ok := dict.GetFloat("weight"); ok {
		b.weight = w
	}
	if p, ok := dict.GetInt("port"); ok {
		b.port = p
	}

	return nil
}

// StaticSynapse is a non-plastic synapse: Send just forwards the event
// with this synapse's own weight and port stamped on.
type StaticSynapse struct {
	Base
}

// NewStatic creates a non-plastic synapse.
func NewStatic(delaySteps int, weight float64, port int) *StaticSynapse {
	s := &StaticSynapse{Base: NewBase(delaySteps, weight, port, DeliversPrimarySpike|HasDelay)}
	return s
}

// Send stamps this synapse's weight and port onto evt, and derives
// DeliveryStep from evt's OriginStep plus this synapse's own Delay (I5):
// every target receives the spike at step origin+delay, never origin
// itself. StaticSynapse never mutates its own state.
func (s *StaticSynapse) Send(evt Event, _ int, _ float64, _ *CommonProperties) error {
	if b, ok := evt.(*baseEvent); ok {
		b.weight = s.Weight()
		b.port = s.Port()
		b.deliveryStep = b.originStep + int64(s.Delay())
	}

	return nil
}
