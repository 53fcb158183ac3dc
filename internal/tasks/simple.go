package tasks

import (
	"github.com/san-kum/dyadsim/internal/condition"
	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/constraint"
	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/metrics"
	"github.com/san-kum/dyadsim/internal/perspective"
	"github.com/san-kum/dyadsim/internal/role"
	"github.com/san-kum/dyadsim/internal/task"
	"github.com/san-kum/dyadsim/internal/trajectory"
)

const (
	ResetMessage  = "Gently pull your handle toward you until the handle stops."
	CenterMessage = "Align your cursor (blue) with the line. When both subjects are aligned, the task will start."

	resetThreshold = -0.8
	centerBand     = 0.2
	centerHold     = 1.0
)

// Blank gives one participant a handle and nothing else.
func Blank(spec config.TaskSpec, env Env) (*task.Task, error) {
	return finish(withHandle(newTask(spec, env, "")), spec)
}

// Message shows a text for the task duration.
func Message(spec config.TaskSpec, env Env) (*task.Task, error) {
	return finish(withHandle(newTask(spec, env, "")), spec)
}

// ResetHandle ends once the handle has been pulled back past -0.8.
func ResetHandle(spec config.TaskSpec, env Env) (*task.Task, error) {
	t := withHandle(newTask(spec, env, ResetMessage))
	threshold := spec.Param("threshold", resetThreshold)
	t.AddEndCondition(condition.NewPositionThreshold(t.Entity("handle"), threshold, false, nil))
	return finish(t, spec)
}

func withHandle(t *task.Task) *task.Task {
	h := dynamo.NewEntity("handle", 0)
	t.AddEntity(h)
	t.AddRole(role.New(h, perspective.Identity()))
	return t
}

// Center waits until both participants have held their handle near the
// middle for a second. Each sees the other's handle but not its own raw
// handle.
func Center(spec config.TaskSpec, env Env) (*task.Task, error) {
	t := newTask(spec, env, CenterMessage)
	t.AddTrajectory(trajectory.New("flat", trajectory.Flat{}))

	p1 := dynamo.NewEntity("p1_handle", 0, dynamo.WithInitialPosition(-1),
		dynamo.WithoutRecording(), dynamo.WithAppearance(circle(objRadius, selfColor)))
	p1Draw := dynamo.NewEntity("p1_handle_draw", 0, dynamo.WithInitialPosition(-1),
		dynamo.WithoutRecording(), dynamo.WithAppearance(circle(objRadius, otherColor)))
	p2 := dynamo.NewEntity("p2_handle", 0, dynamo.WithInitialPosition(1),
		dynamo.WithoutRecording(), dynamo.WithAppearance(circle(objRadius, selfColor)))
	p2Draw := dynamo.NewEntity("p2_handle_draw", 0, dynamo.WithInitialPosition(1),
		dynamo.WithoutRecording(), dynamo.WithAppearance(circle(objRadius, otherColor)))
	t.AddEntity(p1Draw, p2Draw, p1, p2)

	t.AddConstraint(
		constraint.NewBindPosition(p1Draw, p1),
		constraint.NewBindPosition(p2Draw, p2),
	)

	t.AddRole(
		role.New(p1, perspective.Occluded("p1_handle_draw", "p2_handle")),
		role.New(p2, perspective.FlippedOccluded("p2_handle_draw", "p1_handle")),
	)

	band := spec.Param("band", centerBand)
	hold := spec.Param("hold", centerHold)
	t.AddEndCondition(condition.And{
		condition.NewInRangeForDuration(p1, band, -band, hold),
		condition.NewInRangeForDuration(p2, band, -band, hold),
	})
	return finish(t, spec)
}

// SpringPair joins two masses with springs that pull them together and
// dampers that settle them. Nobody holds a handle.
func SpringPair(spec config.TaskSpec, env Env) (*task.Task, error) {
	t := newTask(spec, env, "")
	m := spec.Param("mass", 1)
	k := spec.Param("k", 10)
	rest := spec.Param("rest", 0.1)
	b := spec.Param("b", 10)

	left := dynamo.NewEntity("left", m, dynamo.WithInitialPosition(spec.Param("left", -1)),
		dynamo.WithAppearance(circle(objRadius, selfColor)))
	right := dynamo.NewEntity("right", m, dynamo.WithInitialPosition(spec.Param("right", 1)),
		dynamo.WithAppearance(circle(objRadius, otherColor)))
	t.AddEntity(left, right)

	t.AddConstraint(
		constraint.NewTensionSpring(right, left, k, rest),
		constraint.NewCompressionSpring(left, right, k, -rest),
		constraint.NewDamping(b, left),
		constraint.NewDamping(b, right),
	)
	t.AddMetric(metrics.NewPathLength("left"), metrics.NewPathLength("right"))
	return finish(t, spec)
}
