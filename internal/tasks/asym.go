package tasks

import (
	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/constraint"
	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/metrics"
	"github.com/san-kum/dyadsim/internal/perspective"
	"github.com/san-kum/dyadsim/internal/role"
	"github.com/san-kum/dyadsim/internal/task"
)

const (
	cursorMass    = 0.1
	cursorDamping = 1.0
)

func cursorEntity(height float64) *dynamo.Entity {
	return dynamo.NewEntity("cursor", cursorMass, dynamo.WithAppearance(dynamo.Appearance{
		"shape":  "rectangle",
		"width":  objRadius * 3,
		"height": objRadius * height,
		"color":  cursorColor,
	}))
}

func link(name, start, end string) *dynamo.Entity {
	return dynamo.NewEntity(name, 0, dynamo.WithoutRecording(), dynamo.WithAppearance(dynamo.Appearance{
		"shape":     "link",
		"linktype":  "bulge",
		"start_ref": start,
		"end_ref":   end,
		"color":     linkColor,
	}))
}

func contact(name, color string) *dynamo.Entity {
	return dynamo.NewEntity(name, 0, dynamo.WithoutRecording(), dynamo.WithAppearance(circle(objRadius/2, color)))
}

// couple attaches a handle to the cursor through a finite-width solid
// contact. The handle sits below the cursor when side is -1 and above it
// when side is 1. push and pull scale the force the cursor receives, which
// makes the contact asymmetric; the handle always feels the full gain.
func couple(t *task.Task, handle, cursor *dynamo.Entity, k, rest, push, pull, side float64) {
	t.AddConstraint(
		constraint.NewSpringLawSolid(handle, cursor, side*k, side*rest),
		constraint.NewSpringLawSolid(cursor, handle, -side*k*push, -side*rest),
		constraint.NewSpringLawSolid(handle, cursor, -side*k, -side*rest),
		constraint.NewSpringLawSolid(cursor, handle, side*k*pull, side*rest),
	)
}

// SoloAsym is single-participant force tracking: the participant pushes
// and pulls a damped cursor through an asymmetric contact to follow a
// sum-of-sines reference.
func SoloAsym(spec config.TaskSpec, env Env) (*task.Task, error) {
	t := newTask(spec, env, "")
	k := spec.Param("k", 10)
	push := spec.Param("push", 1)
	pull := spec.Param("pull", 1)
	rest := objRadius * 8

	t.AddTrajectory(sos(env))

	handle := dynamo.NewEntity("handle", 0, dynamo.WithInitialPosition(-1),
		dynamo.WithAppearance(circle(objRadius/2, linkColor)))
	handleDraw := dynamo.NewEntity("handle_draw", 0, dynamo.WithInitialPosition(-1),
		dynamo.WithoutRecording(), dynamo.WithAppearance(circle(objRadius, selfColor)))
	cursor := cursorEntity(1.75)
	selfContact := contact("self_contact", selfColor)

	t.AddEntity(handle, cursor, link("self_contact_link", "self_contact", "handle_draw"), selfContact, handleDraw)

	t.AddPreConstraint(constraint.NewBindPosition(selfContact, cursor, constraint.WithOffset(-objRadius)))

	t.AddConstraint(
		constraint.NewBindPosition(handleDraw, handle),
		constraint.NewPositionLimits(handleDraw, constraint.Upper(-rest/2), constraint.RelativeTo(cursor)),
	)
	couple(t, handle, cursor, k, rest, push, pull, -1)
	t.AddConstraint(constraint.NewDamping(cursorDamping, cursor))

	t.AddRole(role.New(handle, perspective.Identity()))
	t.AddMetric(metrics.NewTrackingError("cursor", "sos"))
	return finish(t, spec)
}

// DyadAsym couples two participants to one cursor from opposite sides.
// The second participant is seated mirrored, and neither sees the
// other's handle.
func DyadAsym(spec config.TaskSpec, env Env) (*task.Task, error) {
	t := newTask(spec, env, "")
	k := spec.Param("k", 10)
	rest := objRadius * 4

	t.AddTrajectory(sos(env))

	p1 := dynamo.NewEntity("p1_handle", 0)
	p1Draw := dynamo.NewEntity("p1_handle_draw", 0, dynamo.WithoutRecording(),
		dynamo.WithAppearance(circle(objRadius, selfColor)))
	p2 := dynamo.NewEntity("p2_handle", 0)
	p2Draw := dynamo.NewEntity("p2_handle_draw", 0, dynamo.WithoutRecording(),
		dynamo.WithAppearance(circle(objRadius, selfColor)))
	cursor := cursorEntity(1)

	p1Self := contact("p1_self_contact", selfColor)
	p1Other := contact("p1_other_contact", otherColor)
	p2Self := contact("p2_self_contact", selfColor)
	p2Other := contact("p2_other_contact", otherColor)

	t.AddEntity(p1, p2, cursor,
		link("p1_contact_link", "p1_self_contact", "p1_handle_draw"), p1Self, p1Other,
		link("p2_contact_link", "p2_self_contact", "p2_handle_draw"), p2Self, p2Other,
		p1Draw, p2Draw,
	)

	t.AddPreConstraint(
		constraint.NewBindPosition(p1Self, cursor, constraint.WithOffset(-objRadius)),
		constraint.NewBindPosition(p1Other, cursor, constraint.WithOffset(objRadius)),
		constraint.NewBindPosition(p2Self, cursor, constraint.WithOffset(objRadius)),
		constraint.NewBindPosition(p2Other, cursor, constraint.WithOffset(-objRadius)),
	)

	t.AddConstraint(
		constraint.NewBindPosition(p1Draw, p1),
		constraint.NewPositionLimits(p1Draw, constraint.Upper(-rest), constraint.RelativeTo(cursor)),
		constraint.NewBindPosition(p2Draw, p2),
		constraint.NewPositionLimits(p2Draw, constraint.Lower(rest), constraint.RelativeTo(cursor)),
	)
	couple(t, p1, cursor, k, rest, spec.Param("p1_push", 1), spec.Param("p1_pull", 1), -1)
	couple(t, p2, cursor, k, rest, spec.Param("p2_push", 1), spec.Param("p2_pull", 1), 1)
	t.AddConstraint(constraint.NewDamping(cursorDamping, cursor))

	t.AddRole(
		role.New(p1, perspective.Occluded("p2_handle_draw", "p2_self_contact", "p2_contact_link", "p2_other_contact")),
		role.New(p2, perspective.FlippedOccluded("p1_handle_draw", "p1_self_contact", "p1_contact_link", "p1_other_contact")),
	)
	t.AddMetric(metrics.NewTrackingError("cursor", "sos"))
	return finish(t, spec)
}
