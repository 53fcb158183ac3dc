// Package condition provides the predicates that end a task early.
package condition

import "github.com/san-kum/dyadsim/internal/dynamo"

// PositionThreshold is true while the target is beyond ref+Offset, above it
// when Greater is set and below it otherwise.
type PositionThreshold struct {
	target  *dynamo.Entity
	ref     *dynamo.Entity
	Offset  float64
	Greater bool
}

func NewPositionThreshold(target *dynamo.Entity, offset float64, greater bool, ref *dynamo.Entity) *PositionThreshold {
	return &PositionThreshold{target: target, ref: ref, Offset: offset, Greater: greater}
}

func (p *PositionThreshold) Check(float64) bool {
	threshold := p.Offset
	if p.ref != nil {
		threshold += p.ref.Position()
	}
	if p.Greater {
		return p.target.Position() > threshold
	}
	return p.target.Position() < threshold
}

func (p *PositionThreshold) Entities() []*dynamo.Entity {
	if p.ref == nil {
		return []*dynamo.Entity{p.target}
	}
	return []*dynamo.Entity{p.target, p.ref}
}

// InRangeForDuration holds the target inside [Lower, Upper] and becomes
// true once it has stayed there for Duration seconds. Leaving the range
// resets the hold time.
type InRangeForDuration struct {
	target   *dynamo.Entity
	Upper    float64
	Lower    float64
	Duration float64
	held     float64
}

func NewInRangeForDuration(target *dynamo.Entity, upper, lower, duration float64) *InRangeForDuration {
	return &InRangeForDuration{target: target, Upper: upper, Lower: lower, Duration: duration}
}

func (c *InRangeForDuration) Check(dt float64) bool {
	pos := c.target.Position()
	if pos < c.Lower || pos > c.Upper {
		c.held = 0
		return false
	}
	c.held += dt
	return c.held+dynamo.TimeEpsilon >= c.Duration
}

// Held is the time spent in range since the last exit.
func (c *InRangeForDuration) Held() float64 { return c.held }

func (c *InRangeForDuration) Reset() { c.held = 0 }

func (c *InRangeForDuration) Entities() []*dynamo.Entity {
	return []*dynamo.Entity{c.target}
}

// And is true when every sub-condition is; it stops at the first false.
type And []dynamo.Condition

func (a And) Check(dt float64) bool {
	for _, c := range a {
		if !c.Check(dt) {
			return false
		}
	}
	return true
}

func (a And) Entities() []*dynamo.Entity { return collect(a) }
func (a And) Reset()                     { reset(a) }

// Or is true when any sub-condition is; it stops at the first true.
type Or []dynamo.Condition

func (o Or) Check(dt float64) bool {
	for _, c := range o {
		if c.Check(dt) {
			return true
		}
	}
	return false
}

func (o Or) Entities() []*dynamo.Entity { return collect(o) }
func (o Or) Reset()                     { reset(o) }

func collect(cs []dynamo.Condition) []*dynamo.Entity {
	var out []*dynamo.Entity
	for _, c := range cs {
		out = append(out, c.Entities()...)
	}
	return out
}

func reset(cs []dynamo.Condition) {
	for _, c := range cs {
		if r, ok := c.(dynamo.Resetter); ok {
			r.Reset()
		}
	}
}
