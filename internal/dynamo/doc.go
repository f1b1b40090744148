// Package dynamo provides the core primitives shared by the trajectory
// planner: state and control vectors and the interfaces that connect a
// vehicle model to an integrator.
//
//   - [State]: vehicle state vector (x, y, heading for the kinematic car)
//   - [Control]: actuator vector (speed, steering)
//   - [System]: continuous-time model dX/dt = f(X, u, t)
//   - [Linearizer]: optional analytic Jacobians of a System
//   - [Integrator]: fixed-step discretisation of a System
//   - [SensitiveIntegrator]: an Integrator that also reports step Jacobians
//
// # Example
//
//	car := models.NewKinematic()
//	rk4 := integrators.NewRK4()
//	next := rk4.Step(car, dynamo.State{0, 0, 0}, dynamo.Control{1, 0.1}, 0, 0.01)
//
// # Thread Safety
//
// Systems are expected to be stateless. Integrators keep scratch buffers and
// must not be shared between goroutines.
package dynamo
