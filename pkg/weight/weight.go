// Package weight implements the two-dimensional execution budget used to bound
// every migration step.
package weight

import (
	"fmt"
	"math/bits"

	"github.com/luxfi/migrator/pkg/core"
)

// Weight is an amount of execution time and proof size.
type Weight struct {
	RefTime   uint64 `mapstructure:"ref_time"`
	ProofSize uint64 `mapstructure:"proof_size"`
}

// Zero is the empty weight.
var Zero = Weight{}

// New returns a weight with both components set.
func New(refTime, proofSize uint64) Weight {
	return Weight{RefTime: refTime, ProofSize: proofSize}
}

// Add returns w + o, saturating at the maximum value.
func (w Weight) Add(o Weight) Weight {
	return Weight{RefTime: satAdd(w.RefTime, o.RefTime), ProofSize: satAdd(w.ProofSize, o.ProofSize)}
}

// Sub returns w - o, saturating at zero.
func (w Weight) Sub(o Weight) Weight {
	return Weight{RefTime: satSub(w.RefTime, o.RefTime), ProofSize: satSub(w.ProofSize, o.ProofSize)}
}

// Mul returns w * n, saturating at the maximum value.
func (w Weight) Mul(n uint64) Weight {
	return Weight{RefTime: satMul(w.RefTime, n), ProofSize: satMul(w.ProofSize, n)}
}

// AnyGt reports whether any component of w is greater than the one of o.
func (w Weight) AnyGt(o Weight) bool {
	return w.RefTime > o.RefTime || w.ProofSize > o.ProofSize
}

// AllLte reports whether every component of w is at most the one of o.
func (w Weight) AllLte(o Weight) bool {
	return !w.AnyGt(o)
}

// IsZero reports whether both components are zero.
func (w Weight) IsZero() bool {
	return w.RefTime == 0 && w.ProofSize == 0
}

func (w Weight) String() string {
	return fmt.Sprintf("{ref_time: %d, proof_size: %d}", w.RefTime, w.ProofSize)
}

// DbWeight is the cost of a single storage read and write.
type DbWeight struct {
	Read  Weight `mapstructure:"read"`
	Write Weight `mapstructure:"write"`
}

// DefaultDbWeight mirrors the costs of a rocksdb-backed runtime.
var DefaultDbWeight = DbWeight{
	Read:  Weight{RefTime: 25_000_000, ProofSize: 0},
	Write: Weight{RefTime: 100_000_000, ProofSize: 0},
}

// Reads returns the weight of n reads.
func (d DbWeight) Reads(n uint64) Weight { return d.Read.Mul(n) }

// Writes returns the weight of n writes.
func (d DbWeight) Writes(n uint64) Weight { return d.Write.Mul(n) }

// ReadsWrites returns the weight of r reads and w writes.
func (d DbWeight) ReadsWrites(r, w uint64) Weight {
	return d.Reads(r).Add(d.Writes(w))
}

// Meter tracks consumption against a fixed limit.
type Meter struct {
	limit    Weight
	consumed Weight
}

// NewMeter creates a meter with the given limit
func NewMeter(limit Weight) *Meter {
	return &Meter{limit: limit}
}

// TryConsume adds w to the consumed weight. Nothing is consumed if the limit
// would be exceeded.
func (m *Meter) TryConsume(w Weight) error {
	if !m.CanConsume(w) {
		return core.ErrOutOfWeight
	}
	m.consumed = m.consumed.Add(w)
	return nil
}

// CanConsume reports whether w still fits.
func (m *Meter) CanConsume(w Weight) bool {
	return m.consumed.Add(w).AllLte(m.limit)
}

// Consumed returns the weight consumed so far.
func (m *Meter) Consumed() Weight { return m.consumed }

// Remaining returns the weight left.
func (m *Meter) Remaining() Weight { return m.limit.Sub(m.consumed) }

// Limit returns the meter limit.
func (m *Meter) Limit() Weight { return m.limit }

func satAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return ^uint64(0)
	}
	return s
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func satMul(a, n uint64) uint64 {
	hi, lo := bits.Mul64(a, n)
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}
