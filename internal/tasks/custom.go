package tasks

import (
	"errors"
	"fmt"

	"github.com/san-kum/dyadsim/internal/condition"
	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/constraint"
	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/perspective"
	"github.com/san-kum/dyadsim/internal/role"
	"github.com/san-kum/dyadsim/internal/task"
	"github.com/san-kum/dyadsim/internal/trajectory"
)

var (
	ErrUnknownConstraint = errors.New("tasks: unknown constraint type")
	ErrUnknownCondition  = errors.New("tasks: unknown condition type")
	ErrUnknownSignal     = errors.New("tasks: unknown trajectory kind")
	ErrEmptyCombinator   = errors.New("tasks: combinator has no conditions")
)

// Custom assembles a task from the entities, constraints, conditions,
// roles and trajectories declared in the spec.
func Custom(spec config.TaskSpec, env Env) (*task.Task, error) {
	t := newTask(spec, env, "")
	b := builder{task: spec.Name, entities: make(map[string]*dynamo.Entity)}

	for _, es := range spec.Entities {
		opts := []dynamo.EntityOption{
			dynamo.WithInitialState(dynamo.State{Position: es.Position, Velocity: es.Velocity}),
		}
		if es.Record != nil && !*es.Record {
			opts = append(opts, dynamo.WithoutRecording())
		}
		if len(es.Appearance) > 0 {
			opts = append(opts, dynamo.WithAppearance(dynamo.Appearance(es.Appearance)))
		}
		e := dynamo.NewEntity(es.Name, es.Mass, opts...)
		b.entities[es.Name] = e
		t.AddEntity(e)
	}

	for _, ts := range spec.Trajectories {
		r, err := trajectoryFromSpec(ts, env)
		if err != nil {
			b.fail("trajectory "+ts.Name, err)
			continue
		}
		t.AddTrajectory(r)
	}

	for _, cs := range spec.PreConstraints {
		if c := b.constraint(cs); c != nil {
			t.AddPreConstraint(c)
		}
	}
	for _, cs := range spec.Constraints {
		if c := b.constraint(cs); c != nil {
			t.AddConstraint(c)
		}
	}
	for _, cs := range spec.EndConditions {
		if c := b.condition(cs); c != nil {
			t.AddEndCondition(c)
		}
	}
	for _, rs := range spec.Roles {
		h := b.entity("role", rs.Handle)
		if h == nil {
			continue
		}
		var opts []perspective.Option
		if len(rs.Hide) > 0 {
			opts = append(opts, perspective.Hide(rs.Hide...))
		}
		if rs.Flip {
			opts = append(opts, perspective.Flip())
		}
		t.AddRole(role.New(h, perspective.New(opts...)))
	}

	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return finish(t, spec)
}

// builder resolves entity names and collects every problem it meets.
type builder struct {
	task     string
	entities map[string]*dynamo.Entity
	errs     []error
}

func (b *builder) fail(subject string, err error) {
	b.errs = append(b.errs, &dynamo.ConfigError{Task: b.task, Subject: subject, Wrapped: err})
}

func (b *builder) entity(subject, name string) *dynamo.Entity {
	if name == "" {
		b.fail(subject, dynamo.ErrMissingTarget)
		return nil
	}
	e, ok := b.entities[name]
	if !ok {
		b.fail(subject+" -> "+name, dynamo.ErrUnknownEntity)
		return nil
	}
	return e
}

// optional resolves a reference that may be left empty.
func (b *builder) optional(subject, name string) (*dynamo.Entity, bool) {
	if name == "" {
		return nil, true
	}
	e := b.entity(subject, name)
	return e, e != nil
}

func (b *builder) constraint(cs config.ConstraintSpec) dynamo.Constraint {
	subject := cs.Type + " on " + cs.Target
	target := b.entity(subject, cs.Target)
	if target == nil {
		return nil
	}

	switch cs.Type {
	case "damping":
		return constraint.NewDamping(cs.B, target)
	case "position_limits":
		ref, ok := b.optional(subject, cs.Ref)
		if !ok {
			return nil
		}
		var opts []constraint.LimitOption
		if cs.Upper != nil {
			opts = append(opts, constraint.Upper(*cs.Upper))
		}
		if cs.Lower != nil {
			opts = append(opts, constraint.Lower(*cs.Lower))
		}
		if ref != nil {
			opts = append(opts, constraint.RelativeTo(ref))
		}
		return constraint.NewPositionLimits(target, opts...)
	}

	ref := b.entity(subject, cs.Ref)
	if ref == nil {
		return nil
	}
	switch cs.Type {
	case "compression_spring":
		return constraint.NewCompressionSpring(target, ref, cs.K, cs.Rest)
	case "tension_spring":
		return constraint.NewTensionSpring(target, ref, cs.K, cs.Rest)
	case "spring_law_solid":
		return constraint.NewSpringLawSolid(target, ref, cs.K, cs.Offset)
	case "bind_position":
		opts := []constraint.BindOption{constraint.WithOffset(cs.Offset)}
		if cs.Proportion != nil {
			opts = append(opts, constraint.WithProportion(*cs.Proportion))
		}
		return constraint.NewBindPosition(target, ref, opts...)
	}
	b.fail(subject, fmt.Errorf("%w: %q", ErrUnknownConstraint, cs.Type))
	return nil
}

func (b *builder) condition(cs config.ConditionSpec) dynamo.Condition {
	switch cs.Type {
	case "and", "or":
		if len(cs.Of) == 0 {
			b.fail("end condition "+cs.Type, ErrEmptyCombinator)
			return nil
		}
		subs := make([]dynamo.Condition, 0, len(cs.Of))
		for _, sub := range cs.Of {
			if c := b.condition(sub); c != nil {
				subs = append(subs, c)
			}
		}
		if cs.Type == "and" {
			return condition.And(subs)
		}
		return condition.Or(subs)
	case "position_threshold":
		target := b.entity(cs.Type, cs.Target)
		ref, ok := b.optional(cs.Type, cs.Ref)
		if target == nil || !ok {
			return nil
		}
		return condition.NewPositionThreshold(target, cs.Offset, cs.Greater, ref)
	case "in_range":
		target := b.entity(cs.Type, cs.Target)
		if target == nil {
			return nil
		}
		return condition.NewInRangeForDuration(target, cs.Upper, cs.Lower, cs.Duration)
	}
	b.fail("end condition", fmt.Errorf("%w: %q", ErrUnknownCondition, cs.Type))
	return nil
}

func trajectoryFromSpec(ts config.TrajectorySpec, env Env) (*trajectory.Reference, error) {
	var sig trajectory.Signal
	switch ts.Kind {
	case "", "flat":
		sig = trajectory.Flat{}
	case "constant":
		sig = trajectory.Constant(ts.Value)
	case "sos":
		if len(ts.Components) > 0 {
			sig = trajectory.SumOfSines{Components: ts.Components, ZeroStart: ts.ZeroStart, SoftStart: ts.SoftStart}
		} else {
			sig = trajectory.GenerateSumOfSines(env.rng(), trajectory.DefaultFrequencies, ts.ZeroStart, ts.SoftStart)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, ts.Kind)
	}

	var opts []trajectory.Option
	if ts.Past != 0 || ts.Future != 0 {
		opts = append(opts, trajectory.WithWindow(ts.Past, ts.Future))
	}
	if ts.Step > 0 {
		opts = append(opts, trajectory.WithStep(ts.Step))
	}
	return trajectory.New(ts.Name, sig, opts...), nil
}
