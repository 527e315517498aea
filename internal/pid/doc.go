// Package pid implements a proportional-integral-derivative feedback
// controller.
//
// A [Controller] is fed one error sample per control cycle and returns the
// correction to apply to the actuator. Elapsed time between samples is read
// from an injected [clock.Clock]:
//
//	clk := clock.System()
//	c := pid.New(2.0, 0.5, 0.1, pid.WithIntegralLimit(50), pid.WithClock(clk))
//	for range ticker.C {
//	    u := c.Update(setpoint - sensor.Read())
//	    actuator.Apply(u)
//	}
//
// When the clock has not advanced since the previous accepted sample,
// Update returns 0 and leaves the controller untouched.
//
// # Thread Safety
//
// Controller instances are NOT safe for concurrent use. A control loop is
// expected to own one controller per controlled variable; callers sharing an
// instance must serialize access themselves.
package pid
