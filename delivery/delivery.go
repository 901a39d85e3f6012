// Package delivery is the wire-level counterpart to §4.6/§4.8: it turns
// each thread's locally emitted spikes into packed SpikeData addressed to
// remote ranks, exchanges them through a transport.Transport, and applies
// the SpikeData addressed to this rank by walking straight into
// connstore.Store rows.
package delivery

import (
	"encoding/binary"

	"github.com/sarchlab/spikesim/connstore"
	"github.com/sarchlab/spikesim/synapse"
	"github.com/sarchlab/spikesim/targettable"
	"github.com/sarchlab/spikesim/timegrid"
	"github.com/sarchlab/spikesim/transport"
)

// LocalSpike is one spike emitted by a local node during the current
// slice, addressed by the (tid, localID) key TargetTable was built against.
type LocalSpike struct {
	Tid     int
	LocalID int
	Lag     int
	Offset  float64
}

// EventDelivery gathers locally emitted spikes at each min-delay boundary
// and exchanges them with every other rank (§4.8's "gather_events").
type EventDelivery struct {
	transport transport.Transport
	targets   *targettable.Table
	store     *connstore.Store
	selfRank  int
}

// New creates an EventDelivery over t, routing through targets into store.
func New(t transport.Transport, targets *targettable.Table, store *connstore.Store) *EventDelivery {
	return &EventDelivery{transport: t, targets: targets, store: store, selfRank: t.Rank()}
}

// wireEntry pairs a packed SpikeData with the rank it is addressed to. The
// destination rank travels alongside the SpikeData rather than inside it,
// since SpikeData's packed layout (§6) has no rank field: a receiving rank
// already knows the (tid, syn_index, lcid) it names are its own.
type wireEntry struct {
	destRank int32
	data     uint64
}

const wireEntrySize = 4 + 8

// Gather collocates every local spike into per-destination-rank SpikeData,
// exchanges the union with every rank via transport.AllGatherBytes, and
// applies the entries addressed to this rank. origin is the absolute step
// at the start of the min-delay slice this batch was gathered for; every
// rank calls Gather with the same origin since the barrier keeps clocks in
// lock-step, so a received Lag can be resolved back to an absolute
// OriginStep without the wire format needing to carry it (§6).
func (d *EventDelivery) Gather(origin timegrid.Step, local []LocalSpike) error {
	var out []wireEntry

	for _, spike := range local {
		for _, tgt := range d.targets.Targets(spike.Tid, spike.LocalID) {
			sd := targettable.NewSpikeData(tgt.Tid(), tgt.SynIndex(), tgt.Lcid(), spike.Lag, targettable.MarkerNone)
			out = append(out, wireEntry{destRank: int32(tgt.Rank()), data: uint64(sd)})
		}
	}

	gathered, err := d.transport.AllGatherBytes(encodeEntries(out))
	if err != nil {
		return err
	}

	for _, rankBuf := range gathered {
		for _, e := range decodeEntries(rankBuf) {
			if int(e.destRank) != d.selfRank {
				continue
			}

			if err := d.apply(origin, targettable.SpikeData(e.data)); err != nil {
				return err
			}
		}
	}

	return nil
}

// apply delivers one received SpikeData into this rank's ConnectionStore,
// walking the source-contiguous run starting at (tid, syn_index, lcid). The
// event carries origin+lag as its OriginStep; each connection's own synapse
// adds its Delay() on top when Send stamps DeliveryStep (I5).
func (d *EventDelivery) apply(origin timegrid.Step, sd targettable.SpikeData) error {
	tid := sd.Tid()

	evt := synapse.EventBuilder{}.
		WithOriginStep(int64(origin) + int64(sd.Lag())).
		Build()

	return d.store.Send(tid, sd.SynIndex(), sd.Lcid(), evt, tid, 0, nil)
}

func encodeEntries(entries []wireEntry) []byte {
	buf := make([]byte, 4+len(entries)*wireEntrySize)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))

	off := 4
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:], uint32(e.destRank))
		binary.LittleEndian.PutUint64(buf[off+4:], e.data)
		off += wireEntrySize
	}

	return buf
}

func decodeEntries(buf []byte) []wireEntry {
	if len(buf) < 4 {
		return nil
	}

	count := binary.LittleEndian.Uint32(buf)
	entries := make([]wireEntry, 0, count)

	off := 4
	for i := uint32(0); i < count && off+wireEntrySize <= len(buf); i++ {
		destRank := int32(binary.LittleEndian.Uint32(buf[off:]))
		data := binary.LittleEndian.Uint64(buf[off+4:])
		entries = append(entries, wireEntry{destRank: destRank, data: data})
		off += wireEntrySize
	}

	return entries
}

// BuildTargetTableEntries exchanges TargetData produced by
// sourcetable.Table.NextTargetData with every rank and appends the ones
// addressed to this rank's sources into targets, per §4.6 step 5. tid is
// the owning thread the entries in local were produced for; localIDOf
// resolves a source GID to its dense local id on that thread.
func (d *EventDelivery) BuildTargetTableEntries(
	tid int,
	local []targettable.TargetData,
	localIDOf func(sourceGID uint64) (localID int, ok bool),
) error {
	buf := make([]byte, 0, len(local)*(8+8))
	for _, td := range local {
		var entry [16]byte
		binary.LittleEndian.PutUint64(entry[:8], td.SourceGID)
		binary.LittleEndian.PutUint64(entry[8:], uint64(td.Target))
		buf = append(buf, entry[:]...)
	}

	gathered, err := d.transport.AllGatherBytes(buf)
	if err != nil {
		return err
	}

	for _, rankBuf := range gathered {
		for off := 0; off+16 <= len(rankBuf); off += 16 {
			sourceGID := binary.LittleEndian.Uint64(rankBuf[off : off+8])
			target := targettable.Target(binary.LittleEndian.Uint64(rankBuf[off+8 : off+16]))

			localID, ok := localIDOf(sourceGID)
			if !ok {
				continue
			}

			if target.Rank() == d.selfRank {
				continue
			}

			d.targets.AddPrimary(tid, localID, target)
		}
	}

	return nil
}
