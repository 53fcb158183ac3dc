package integrators

// SemiImplicitEuler advances one point by dt. Velocity is updated first from
// the acceleration, and the new velocity moves the position.
func SemiImplicitEuler(pos, vel, acc, dt float64) (float64, float64) {
	vel += acc * dt
	pos += vel * dt
	return pos, vel
}

// ExplicitEuler is the forward variant, kept for comparison in tests and
// benchmarks. It gains energy on undamped oscillators.
func ExplicitEuler(pos, vel, acc, dt float64) (float64, float64) {
	pos += vel * dt
	vel += acc * dt
	return pos, vel
}
