// Package constraint implements the rules that couple entities in a task.
//
// Every constraint reads the current-tick state of its target and
// references and writes into the target only. Constraints keep no state
// besides their coefficients; the task applies them once per tick in
// insertion order.
package constraint

import (
	"math"

	"github.com/san-kum/dyadsim/internal/dynamo"
)

type base struct {
	target *dynamo.Entity
	refs   []*dynamo.Entity
}

func (b base) Target() *dynamo.Entity       { return b.target }
func (b base) References() []*dynamo.Entity { return b.refs }

// required keeps a nil reference in place so validation can report it.
func required(ref *dynamo.Entity) []*dynamo.Entity { return []*dynamo.Entity{ref} }

// optional drops a nil reference.
func optional(ref *dynamo.Entity) []*dynamo.Entity {
	if ref == nil {
		return nil
	}
	return []*dynamo.Entity{ref}
}

// Damping resists the target's velocity.
type Damping struct {
	base
	B float64
}

func NewDamping(b float64, target *dynamo.Entity) *Damping {
	return &Damping{base: base{target: target}, B: b}
}

func (d *Damping) Writes() dynamo.WriteKind { return dynamo.WriteForce }

func (d *Damping) Apply() {
	d.target.AddForce(-d.B * d.target.Velocity())
}

// CompressionSpring only pushes: it acts while the target is closer than
// RestLength above the reference.
type CompressionSpring struct {
	base
	K          float64
	RestLength float64
}

func NewCompressionSpring(target, ref *dynamo.Entity, k, rest float64) *CompressionSpring {
	return &CompressionSpring{base: base{target: target, refs: required(ref)}, K: k, RestLength: rest}
}

func (s *CompressionSpring) Writes() dynamo.WriteKind { return dynamo.WriteForce }

func (s *CompressionSpring) Apply() {
	compression := (s.refs[0].Position() + s.RestLength) - s.target.Position()
	if compression > 0 {
		s.target.AddForce(compression * s.K)
	}
}

// TensionSpring only pulls: it acts while the target is further than
// RestLength above the reference.
type TensionSpring struct {
	base
	K          float64
	RestLength float64
}

func NewTensionSpring(target, ref *dynamo.Entity, k, rest float64) *TensionSpring {
	return &TensionSpring{base: base{target: target, refs: required(ref)}, K: k, RestLength: rest}
}

func (s *TensionSpring) Writes() dynamo.WriteKind { return dynamo.WriteForce }

func (s *TensionSpring) Apply() {
	tension := s.target.Position() - (s.refs[0].Position() + s.RestLength)
	if tension > 0 {
		s.target.AddForce(-tension * s.K)
	}
}

// SpringLawSolid is a one-sided wall at ref+Offset. The sign of K picks the
// active side: positive K pushes the target up out of the region below the
// wall, negative K pushes it down out of the region above. Two solids with
// opposite K and opposite offsets form a contact of finite width.
type SpringLawSolid struct {
	base
	K      float64
	Offset float64
}

func NewSpringLawSolid(target, ref *dynamo.Entity, k, offset float64) *SpringLawSolid {
	return &SpringLawSolid{base: base{target: target, refs: required(ref)}, K: k, Offset: offset}
}

func (s *SpringLawSolid) Writes() dynamo.WriteKind { return dynamo.WriteForce }

func (s *SpringLawSolid) Apply() {
	penetration := (s.refs[0].Position() + s.Offset) - s.target.Position()
	sign := math.Copysign(1, s.K)
	if penetration == 0 || s.K == 0 || math.Signbit(penetration) != math.Signbit(s.K) {
		return
	}
	s.target.AddForce(sign * penetration * s.K)
}

// BindPosition places the target at ref*Proportion + Offset and pins it so
// the integrator leaves it there for the tick.
type BindPosition struct {
	base
	Offset     float64
	Proportion float64
}

type BindOption func(*BindPosition)

func WithOffset(offset float64) BindOption {
	return func(b *BindPosition) { b.Offset = offset }
}

func WithProportion(p float64) BindOption {
	return func(b *BindPosition) { b.Proportion = p }
}

func NewBindPosition(target, ref *dynamo.Entity, opts ...BindOption) *BindPosition {
	b := &BindPosition{base: base{target: target, refs: required(ref)}, Proportion: 1}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BindPosition) Writes() dynamo.WriteKind { return dynamo.WriteOverride }

func (b *BindPosition) Apply() {
	b.target.Pin(b.refs[0].Position()*b.Proportion + b.Offset)
}

// PositionLimits clamps the target into [ref+Neg, ref+Pos]. Either bound
// may be nil; without a reference the bounds are absolute.
type PositionLimits struct {
	base
	Pos *float64
	Neg *float64
}

type LimitOption func(*PositionLimits)

func Upper(v float64) LimitOption {
	return func(l *PositionLimits) { l.Pos = &v }
}

func Lower(v float64) LimitOption {
	return func(l *PositionLimits) { l.Neg = &v }
}

func RelativeTo(ref *dynamo.Entity) LimitOption {
	return func(l *PositionLimits) { l.refs = optional(ref) }
}

func NewPositionLimits(target *dynamo.Entity, opts ...LimitOption) *PositionLimits {
	l := &PositionLimits{base: base{target: target}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *PositionLimits) Writes() dynamo.WriteKind { return dynamo.WriteClamp }

func (l *PositionLimits) Apply() {
	offset := 0.0
	if len(l.refs) > 0 {
		offset = l.refs[0].Position()
	}
	pos := l.target.Position()
	switch {
	case l.Pos != nil && pos > offset+*l.Pos:
		l.target.Clamp(offset + *l.Pos)
	case l.Neg != nil && pos < offset+*l.Neg:
		l.target.Clamp(offset + *l.Neg)
	}
}
