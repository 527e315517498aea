// Package physics provides process models for closed-loop runs.
//
// Each model implements the [dynamo.System] interface and takes a single
// control input, the actuator command produced by the controller. The
// measured process variable is always state index 0:
//
//   - [Pendulum]: damped pendulum, torque input, angle measured
//   - [SpringMass]: mass-spring-damper, force input, position measured
//   - [Thermal]: lumped thermal mass, heater power input, temperature measured
//   - [Motor]: DC motor, voltage input, shaft speed measured
//
// All models implement [dynamo.Configurable] so presets and the CLI can
// adjust physical parameters by name.
package physics
