// Package targettable implements the presynaptic routing table: for each
// local neuron, the list of remote endpoints its spikes must reach, plus the
// packed wire structs (Target, SpikeData) whose bit widths are part of the
// ABI (§6).
package targettable

// Target packs (lcid:25, rank:22, tid:10, syn_index:6, processed:1) into 64
// bits, exactly as the wire/in-memory contract requires.
type Target uint64

const (
	targetLcidBits      = 25
	targetRankBits      = 22
	targetTidBits       = 10
	targetSynIndexBits  = 6
	targetProcessedBits = 1

	targetLcidShift      = 0
	targetRankShift      = targetLcidShift + targetLcidBits
	targetTidShift       = targetRankShift + targetRankBits
	targetSynIndexShift  = targetTidShift + targetTidBits
	targetProcessedShift = targetSynIndexShift + targetSynIndexBits

	targetLcidMask      = uint64(1)<<targetLcidBits - 1
	targetRankMask      = uint64(1)<<targetRankBits - 1
	targetTidMask       = uint64(1)<<targetTidBits - 1
	targetSynIndexMask  = uint64(1)<<targetSynIndexBits - 1
	targetProcessedMask = uint64(1)<<targetProcessedBits - 1
)

// MaxLcid, MaxRank, MaxTid and MaxSynIndex bound the values that fit in
// their respective packed fields.
const (
	MaxLcid     = int(targetLcidMask)
	MaxRank     = int(targetRankMask)
	MaxTid      = int(targetTidMask)
	MaxSynIndex = int(targetSynIndexMask)
)

// NewTarget packs a Target from its fields. Panics is deliberately avoided
// on the hot path; callers are expected to validate ranges against the
// Max constants when building the network, not per spike.
func NewTarget(rank, tid, synIndex, lcid int, processed bool) Target {
	var p uint64
	if processed {
		p = 1
	}

	return Target(
		uint64(lcid&int(targetLcidMask))<<targetLcidShift |
			uint64(rank&int(targetRankMask))<<targetRankShift |
			uint64(tid&int(targetTidMask))<<targetTidShift |
			uint64(synIndex&int(targetSynIndexMask))<<targetSynIndexShift |
			p<<targetProcessedShift,
	)
}

// Lcid returns the packed local connection id.
func (t Target) Lcid() int { return int(uint64(t) >> targetLcidShift & targetLcidMask) }

// Rank returns the packed owning rank.
func (t Target) Rank() int { return int(uint64(t) >> targetRankShift & targetRankMask) }

// Tid returns the packed thread id.
func (t Target) Tid() int { return int(uint64(t) >> targetTidShift & targetTidMask) }

// SynIndex returns the packed synapse-type index.
func (t Target) SynIndex() int {
	return int(uint64(t) >> targetSynIndexShift & targetSynIndexMask)
}

// Processed returns the packed processed flag.
func (t Target) Processed() bool {
	return uint64(t)>>targetProcessedShift&targetProcessedMask != 0
}

// WithProcessed returns a copy of t with the processed bit set to v.
func (t Target) WithProcessed(v bool) Target {
	return NewTarget(t.Rank(), t.Tid(), t.SynIndex(), t.Lcid(), v)
}

// TargetData is the packet exchanged during TargetTable construction: a
// source GID paired with the Target describing where it routes.
type TargetData struct {
	SourceGID uint64
	Target    Target
}

// Marker partitions variable-length per-rank segments inside a fixed-chunk
// all-to-all buffer of SpikeData.
type Marker uint8

const (
	MarkerNone Marker = iota
	MarkerEnd
	MarkerComplete
	MarkerInvalid
)

// SpikeData packs (tid:10, syn_index:6, lcid:25, lag:6, marker:2) into 64
// bits (6 bits unused), the wire representation of a spike routed during a
// run, as opposed to TargetData used only during the build phase.
type SpikeData uint64

const (
	spikeTidBits      = 10
	spikeSynIndexBits = 6
	spikeLcidBits     = 25
	spikeLagBits      = 6
	spikeMarkerBits   = 2

	spikeTidShift      = 0
	spikeSynIndexShift = spikeTidShift + spikeTidBits
	spikeLcidShift     = spikeSynIndexShift + spikeSynIndexBits
	spikeLagShift      = spikeLcidShift + spikeLcidBits
	spikeMarkerShift   = spikeLagShift + spikeLagBits

	spikeTidMask      = uint64(1)<<spikeTidBits - 1
	spikeSynIndexMask = uint64(1)<<spikeSynIndexBits - 1
	spikeLcidMask     = uint64(1)<<spikeLcidBits - 1
	spikeLagMask      = uint64(1)<<spikeLagBits - 1
	spikeMarkerMask   = uint64(1)<<spikeMarkerBits - 1
)

// MaxLag bounds the lag field: the largest step offset addressable within a
// slice.
const MaxLag = int(spikeLagMask)

// NewSpikeData packs a SpikeData from its fields.
func NewSpikeData(tid, synIndex, lcid, lag int, marker Marker) SpikeData {
	return SpikeData(
		uint64(tid&int(spikeTidMask))<<spikeTidShift |
			uint64(synIndex&int(spikeSynIndexMask))<<spikeSynIndexShift |
			uint64(lcid&int(spikeLcidMask))<<spikeLcidShift |
			uint64(lag&int(spikeLagMask))<<spikeLagShift |
			uint64(marker&Marker(spikeMarkerMask))<<spikeMarkerShift,
	)
}

// Tid returns the packed thread id.
func (s SpikeData) Tid() int { return int(uint64(s) >> spikeTidShift & spikeTidMask) }

// SynIndex returns the packed synapse-type index.
func (s SpikeData) SynIndex() int {
	return int(uint64(s) >> spikeSynIndexShift & spikeSynIndexMask)
}

// Lcid returns the packed local connection id.
func (s SpikeData) Lcid() int { return int(uint64(s) >> spikeLcidShift & spikeLcidMask) }

// Lag returns the packed step offset within the current slice.
func (s SpikeData) Lag() int { return int(uint64(s) >> spikeLagShift & spikeLagMask) }

// GetMarker returns the packed marker.
func (s SpikeData) GetMarker() Marker {
	return Marker(uint64(s) >> spikeMarkerShift & spikeMarkerMask)
}

// EndMarker and CompleteMarker sentinels mark lag-block and rank
// boundaries respectively inside a TargetData all-to-all buffer during the
// build phase (as opposed to SpikeData's packed Marker field used at run
// time).
const (
	EndMarkerGID      = ^uint64(0)
	CompleteMarkerGID = ^uint64(0) - 1
)
