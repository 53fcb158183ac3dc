package integrators

import (
	"math"
	"testing"
)

func TestSemiImplicitEulerOrder(t *testing.T) {
	pos, vel := SemiImplicitEuler(0, 1, 2, 0.5)

	if vel != 2 {
		t.Errorf("velocity: got %f, want 2", vel)
	}
	// uses the updated velocity
	if pos != 1 {
		t.Errorf("position: got %f, want 1", pos)
	}
}

func TestSemiImplicitEulerZeroAcceleration(t *testing.T) {
	pos, vel := 0.25, -0.5
	dt := 0.01
	for i := 0; i < 100; i++ {
		pos, vel = SemiImplicitEuler(pos, vel, 0, dt)
	}

	if vel != -0.5 {
		t.Errorf("velocity changed: %f", vel)
	}
	if math.Abs(pos-(0.25-0.5)) > 1e-12 {
		t.Errorf("position: got %f, want %f", pos, -0.25)
	}
}

func oscillatorEnergy(x, v float64) float64 {
	return 0.5*v*v + 0.5*x*x
}

func TestSemiImplicitEulerEnergyBounded(t *testing.T) {
	tests := []struct {
		name    string
		step    func(pos, vel, acc, dt float64) (float64, float64)
		bounded bool
	}{
		{"semi-implicit", SemiImplicitEuler, true},
		{"explicit", ExplicitEuler, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, v := 1.0, 0.0
			dt := 1.0 / 120
			for i := 0; i < 12000; i++ {
				x, v = tt.step(x, v, -x, dt)
			}

			drift := math.Abs(oscillatorEnergy(x, v)-0.5) / 0.5
			if tt.bounded && drift > 0.01 {
				t.Errorf("energy drift too large: %.4f", drift)
			}
			if !tt.bounded && drift < 0.01 {
				t.Errorf("expected explicit euler to drift, got %.4f", drift)
			}
		})
	}
}
