// Package role binds a task entity to a participant through a perspective.
package role

import (
	"fmt"

	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/perspective"
)

// Participant is anything that can hold a handle: a person at a haptic
// device, a scripted agent or a replay. Action shows the participant its
// view; HandlePosition is read straight after and is the raw device
// reading in the participant's own frame.
type Participant interface {
	Name() string
	Action(view dynamo.View)
	HandlePosition() float64
	SendHandleForce(force float64)
}

// Faulter is implemented by participants whose device can fail. A non-nil
// fault stops the task.
type Faulter interface {
	Fault() error
}

type Role struct {
	handle      *dynamo.Entity
	perspective perspective.Perspective
	participant Participant
	lastForce   float64
}

func New(handle *dynamo.Entity, p perspective.Perspective) *Role {
	return &Role{handle: handle, perspective: p}
}

func (r *Role) Handle() *dynamo.Entity               { return r.handle }
func (r *Role) Perspective() perspective.Perspective { return r.perspective }
func (r *Role) Participant() Participant             { return r.participant }
func (r *Role) Assign(p Participant)                 { r.participant = p }

// LastForce is the raw force sent to the handle on the last scatter.
func (r *Role) LastForce() float64 { return r.lastForce }

// Gather shows the participant its view and pins the handle entity at the
// position the participant reports.
func (r *Role) Gather(view dynamo.View) error {
	if r.participant == nil {
		return fmt.Errorf("%s: %w", r.handle.Name(), dynamo.ErrUnassignedRole)
	}
	r.participant.Action(r.perspective.TaskToView(view))
	if f, ok := r.participant.(Faulter); ok {
		if err := f.Fault(); err != nil {
			return fmt.Errorf("%s: %w: %v", r.participant.Name(), dynamo.ErrParticipantFault, err)
		}
	}
	r.handle.Pin(r.perspective.HandleToTask(r.participant.HandlePosition()))
	return nil
}

// Scatter sends the force accumulated on the handle entity to the device
// and empties the accumulator.
func (r *Role) Scatter() {
	r.lastForce = r.perspective.TaskToHandle(r.handle.QueuedForce())
	r.handle.ClearForce()
	if r.participant != nil {
		r.participant.SendHandleForce(r.lastForce)
	}
}
