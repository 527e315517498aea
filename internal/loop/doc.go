// Package loop runs a PID controller against a simulated plant.
//
// A [Runner] plays the part of the control loop that owns the controller:
// every cycle it advances a [clock.Manual] by dt, samples the plant, feeds
// the error to the controller and applies the output as the plant input.
// Using a manual clock makes runs reproducible and lets them go faster than
// real time.
//
// [Sweep] evaluates several gain sets in parallel, each in its own Runner.
package loop
