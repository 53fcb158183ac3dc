// Package perspective maps the shared task frame onto one participant's
// egocentric frame.
//
// A Perspective is built from a small set of variants: identity, flip
// (mirrored seating, so "toward me" is positive for both participants),
// occlude (hide named entities from the view) and their combination.
// View transforms run as an ordered list of ViewOps; occlusion always runs
// before mirroring.
package perspective

import (
	"sort"
	"strings"

	"github.com/san-kum/dyadsim/internal/dynamo"
)

// ViewOp transforms a view into a new view without editing its input.
type ViewOp func(dynamo.View) dynamo.View

type Perspective struct {
	flip   bool
	hidden map[string]struct{}
	ops    []ViewOp
}

type Option func(*Perspective)

func Flip() Option {
	return func(p *Perspective) { p.flip = true }
}

func Hide(names ...string) Option {
	return func(p *Perspective) {
		if p.hidden == nil {
			p.hidden = make(map[string]struct{}, len(names))
		}
		for _, n := range names {
			p.hidden[n] = struct{}{}
		}
	}
}

func New(opts ...Option) Perspective {
	var p Perspective
	for _, opt := range opts {
		opt(&p)
	}
	if len(p.hidden) > 0 {
		p.ops = append(p.ops, Occlude(p.hidden))
	}
	if p.flip {
		p.ops = append(p.ops, Mirror)
	}
	return p
}

func Identity() Perspective { return New() }

func Flipped() Perspective { return New(Flip()) }

func Occluded(names ...string) Perspective { return New(Hide(names...)) }

func FlippedOccluded(names ...string) Perspective { return New(Hide(names...), Flip()) }

func (p Perspective) sign() float64 {
	if p.flip {
		return -1
	}
	return 1
}

func (p Perspective) IsFlipped() bool { return p.flip }

// Hidden lists the occluded entity names in sorted order.
func (p Perspective) Hidden() []string {
	names := make([]string, 0, len(p.hidden))
	for n := range p.hidden {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HandleToTask converts a raw handle position into task coordinates.
func (p Perspective) HandleToTask(raw float64) float64 {
	return p.sign() * raw
}

// TaskToHandle converts a task-frame force into the handle's frame.
func (p Perspective) TaskToHandle(force float64) float64 {
	return p.sign() * force
}

// TaskToView builds the participant's view of a task snapshot.
func (p Perspective) TaskToView(v dynamo.View) dynamo.View {
	out := v.Clone()
	for _, op := range p.ops {
		out = op(out)
	}
	return out
}

func (p Perspective) String() string {
	var parts []string
	if len(p.hidden) > 0 {
		parts = append(parts, "occlude("+strings.Join(p.Hidden(), ",")+")")
	}
	if p.flip {
		parts = append(parts, "flip")
	}
	if len(parts) == 0 {
		return "identity"
	}
	return strings.Join(parts, "+")
}

// Occlude drops the named entities from the view.
func Occlude(hidden map[string]struct{}) ViewOp {
	return func(v dynamo.View) dynamo.View {
		out := v
		out.Entities = make(map[string]dynamo.EntityView, len(v.Entities))
		for name, e := range v.Entities {
			if _, ok := hidden[name]; ok {
				continue
			}
			out.Entities[name] = e
		}
		return out
	}
}

// Mirror negates every entity state and every trajectory sample.
func Mirror(v dynamo.View) dynamo.View {
	out := v
	out.Entities = make(map[string]dynamo.EntityView, len(v.Entities))
	for name, e := range v.Entities {
		e.State = e.State.Negate()
		out.Entities[name] = e
	}
	out.Trajectories = make(map[string]dynamo.TrajectoryView, len(v.Trajectories))
	for name, tr := range v.Trajectories {
		samples := make([]float64, len(tr.Samples))
		for i, s := range tr.Samples {
			samples[i] = -s
		}
		tr.Samples = samples
		tr.Now = -tr.Now
		out.Trajectories[name] = tr
	}
	return out
}
