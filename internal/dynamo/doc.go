// Package dynamo defines the shared primitives of the closed-loop harness.
//
// The harness drives a [pid.Controller] against a simulated process:
//
//   - [State]: vector representing process state
//   - [System]: interface for process models (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepper advancing a System by dt
//   - [Metric]: per-cycle observer of error and controller output
//
// # Example
//
//	plant := physics.NewThermal()
//	r := loop.New(plant, integrators.NewRK4(), ctrl, clk)
//	trace, _ := r.Run(ctx, x0, cfg)
//
// # Thread Safety
//
// None of the types here are safe for concurrent use. Parallel runs each get
// their own plant, integrator and controller.
//
// [pid.Controller]: github.com/san-kum/pidctl/internal/pid.Controller
package dynamo
