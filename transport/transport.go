// Package transport is the collective-communication boundary EventDelivery
// gathers and reduces across ranks through (§4.6, §4.8): a Local
// (single-rank loopback, used at P=1 and in tests) and an MPI
// implementation backed by github.com/emer/empi/v2.
package transport

import (
	"fmt"

	"github.com/emer/empi/v2/mpi"
)

// Op is a reduction operator.
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

// Transport is the collective operations EventDelivery and the delay-extrema
// negotiation need. Kept minimal and MPI-agnostic so scheduler/kernel never
// import mpi directly.
type Transport interface {
	Rank() int
	Size() int

	// AllReduceFloat64 combines send element-wise across every rank with op,
	// returning the combined vector to every rank.
	AllReduceFloat64(op Op, send []float64) ([]float64, error)

	// AllGatherBytes gathers one variable-length buffer per rank, returning
	// them ordered by rank.
	AllGatherBytes(send []byte) ([][]byte, error)

	Barrier() error
	Close() error
}

// Local is a single-rank Transport: every collective is the identity. Used
// for P=1 runs and unit tests that don't need real MPI.
type Local struct{}

// NewLocal creates a single-rank Transport.
func NewLocal() *Local { return &Local{} }

func (l *Local) Rank() int { return 0 }
func (l *Local) Size() int { return 1 }

func (l *Local) AllReduceFloat64(_ Op, send []float64) ([]float64, error) {
	out := make([]float64, len(send))
	copy(out, send)
	return out, nil
}

func (l *Local) AllGatherBytes(send []byte) ([][]byte, error) {
	out := make([]byte, len(send))
	copy(out, send)
	return [][]byte{out}, nil
}

func (l *Local) Barrier() error { return nil }
func (l *Local) Close() error   { return nil }

// MPI is a Transport backed by an empi world communicator.
type MPI struct {
	comm *mpi.Comm
}

// NewMPI initializes MPI (mpi.Init) and creates a communicator over every
// process. Callers must call Close exactly once before process exit.
func NewMPI() (*MPI, error) {
	mpi.Init()

	comm, err := mpi.NewComm(nil)
	if err != nil {
		return nil, fmt.Errorf("transport: mpi.NewComm: %w", err)
	}

	return &MPI{comm: comm}, nil
}

func (m *MPI) Rank() int { return mpi.WorldRank() }
func (m *MPI) Size() int { return mpi.WorldSize() }

func (m *MPI) AllReduceFloat64(op Op, send []float64) ([]float64, error) {
	recv := make([]float64, len(send))
	if err := m.comm.AllReduceF64(toMPIOp(op), send, recv); err != nil {
		return nil, fmt.Errorf("transport: AllReduceF64: %w", err)
	}

	return recv, nil
}

// AllGatherBytes gathers variable-length per-rank buffers. empi's collective
// requires equal-size sends, so this first sum-all-reduces a vector holding
// each rank's length at that rank's index (giving every rank all lengths),
// zero-pads its buffer to the largest, all-gathers the padded buffers, and
// trims each rank's slice back to its own length.
func (m *MPI) AllGatherBytes(send []byte) ([][]byte, error) {
	size := m.Size()

	lengths := make([]float64, size)
	lengths[m.Rank()] = float64(len(send))

	summed, err := m.AllReduceFloat64(OpSum, lengths)
	if err != nil {
		return nil, err
	}

	maxLen := 0
	for _, l := range summed {
		if int(l) > maxLen {
			maxLen = int(l)
		}
	}

	padded := make([]uint8, maxLen)
	copy(padded, send)

	recv := make([]uint8, maxLen*size)
	if err := m.comm.AllGatherU8(padded, recv); err != nil {
		return nil, fmt.Errorf("transport: AllGatherU8: %w", err)
	}

	out := make([][]byte, size)
	for rank := 0; rank < size; rank++ {
		length := int(summed[rank])
		out[rank] = append([]byte(nil), recv[rank*maxLen:rank*maxLen+length]...)
	}

	return out, nil
}

func (m *MPI) Barrier() error {
	if err := m.comm.Barrier(); err != nil {
		return fmt.Errorf("transport: Barrier: %w", err)
	}
	return nil
}

func (m *MPI) Close() error {
	mpi.Finalize()
	return nil
}

func toMPIOp(op Op) mpi.Op {
	switch op {
	case OpMax:
		return mpi.OpMax
	case OpMin:
		return mpi.OpMin
	default:
		return mpi.OpSum
	}
}
