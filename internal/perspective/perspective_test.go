package perspective

import (
	"reflect"
	"testing"

	"github.com/san-kum/dyadsim/internal/dynamo"
)

func sampleView() dynamo.View {
	return dynamo.View{
		Task:     "dyad",
		TaskTime: 1.5,
		Entities: map[string]dynamo.EntityView{
			"cursor":    {State: dynamo.State{Position: 0.25, Velocity: -0.5, Acceleration: 2}},
			"p1_handle": {State: dynamo.State{Position: -0.1}},
			"p2_handle": {State: dynamo.State{Position: 0.4, Velocity: 0.1}},
		},
		Trajectories: map[string]dynamo.TrajectoryView{
			"sos": {Samples: []float64{0.1, -0.2, 0.3}, Times: []float64{1.4, 1.5, 1.6}, Now: -0.2},
		},
	}
}

func TestIdentity(t *testing.T) {
	p := Identity()
	v := sampleView()

	if p.HandleToTask(0.3) != 0.3 || p.TaskToHandle(-2) != -2 {
		t.Error("identity must pass positions and forces through")
	}
	if !reflect.DeepEqual(p.TaskToView(v), v) {
		t.Error("identity view should equal the input")
	}
	if p.String() != "identity" {
		t.Errorf("String() = %q", p.String())
	}
}

func TestFlippedNegates(t *testing.T) {
	p := Flipped()
	v := sampleView()
	got := p.TaskToView(v)

	if p.HandleToTask(0.3) != -0.3 || p.TaskToHandle(-2) != 2 {
		t.Error("flip must negate positions and forces")
	}
	cursor := got.Entities["cursor"].State
	if cursor != (dynamo.State{Position: -0.25, Velocity: 0.5, Acceleration: -2}) {
		t.Errorf("cursor not mirrored: %+v", cursor)
	}
	if !reflect.DeepEqual(got.Trajectories["sos"].Samples, []float64{-0.1, 0.2, -0.3}) {
		t.Errorf("samples not mirrored: %v", got.Trajectories["sos"].Samples)
	}
	if got.Trajectories["sos"].Now != 0.2 {
		t.Errorf("now not mirrored: %f", got.Trajectories["sos"].Now)
	}
	if !reflect.DeepEqual(got.Trajectories["sos"].Times, v.Trajectories["sos"].Times) {
		t.Error("times must not be mirrored")
	}
	if v.Entities["cursor"].State.Position != 0.25 || v.Trajectories["sos"].Samples[0] != 0.1 {
		t.Error("input view was modified")
	}
}

func TestFlipIsAnInvolution(t *testing.T) {
	p := Flipped()
	v := sampleView()
	twice := p.TaskToView(p.TaskToView(v))

	if !reflect.DeepEqual(twice, v) {
		t.Errorf("flip twice should restore the view:\n got %+v\nwant %+v", twice, v)
	}
}

func TestOccluded(t *testing.T) {
	p := Occluded("p2_handle")
	got := p.TaskToView(sampleView())

	if _, ok := got.Entities["p2_handle"]; ok {
		t.Error("hidden entity still visible")
	}
	if len(got.Entities) != 2 {
		t.Errorf("expected 2 visible entities, got %d", len(got.Entities))
	}
	if got.Entities["cursor"].State.Position != 0.25 {
		t.Error("occlusion alone must not mirror")
	}
}

func TestFlippedOccluded(t *testing.T) {
	p := FlippedOccluded("p1_handle")
	v := sampleView()
	got := p.TaskToView(v)

	if _, ok := got.Entities["p1_handle"]; ok {
		t.Error("hidden entity still visible")
	}
	if got.Entities["p2_handle"].State.Position != -0.4 {
		t.Error("visible entities should be mirrored")
	}
	if p.String() != "occlude(p1_handle)+flip" {
		t.Errorf("String() = %q", p.String())
	}

	back := Flipped().TaskToView(got)
	if len(back.Entities) == len(v.Entities) {
		t.Error("occlusion is lossy; the hidden entity cannot come back")
	}
}

func TestViewsDoNotAliasAcrossParticipants(t *testing.T) {
	v := sampleView()
	a := Identity().TaskToView(v)
	b := Flipped().TaskToView(v)

	a.Trajectories["sos"].Samples[0] = 99
	if b.Trajectories["sos"].Samples[0] != -0.1 || v.Trajectories["sos"].Samples[0] != 0.1 {
		t.Error("views share trajectory buffers")
	}
}
