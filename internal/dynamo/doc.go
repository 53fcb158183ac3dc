// Package dynamo provides the core primitives of the interaction engine.
//
// A task is a small one-dimensional mechanical network. The package defines
// its building blocks:
//
//   - [State]: position, velocity and acceleration of one point
//   - [Entity]: a named point with mass, a force accumulator and its own
//     semi-implicit Euler integration
//   - [Constraint]: a rule that writes force or position into a target entity
//   - [Condition]: a boolean predicate used to end a task early
//   - [View]: the immutable per-tick snapshot handed to participants
//
// # Example
//
//	cursor := dynamo.NewEntity("cursor", 0.1)
//	handle := dynamo.NewEntity("handle", 0)
//	handle.Pin(0.3)
//	handle.AddForce(-1.5)
//	cursor.Step(1.0 / 120)
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent use. The engine is stepped
// from a single goroutine, one tick at a time.
package dynamo
