package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/pidctl/internal/dynamo"
)

// Pendulum is a rigid rod with a point mass, driven by a torque at the pivot.
// State is [theta, omega] with theta measured from hanging straight down.
// Held away from the bottom it needs a steady torque, which only the integral
// term of a controller can supply once the error has gone to zero.
type Pendulum struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    1.0,
		Length:  1.0,
		Damping: 0.1,
		Gravity: 9.81,
	}
}

func (p *Pendulum) StateDim() int   { return 2 }
func (p *Pendulum) ControlDim() int { return 1 }

func (p *Pendulum) inertia() float64 { return p.Mass * p.Length * p.Length }

// HoldingTorque is the pivot torque that keeps the rod at rest at theta.
func (p *Pendulum) HoldingTorque(theta float64) float64 {
	return p.Mass * p.Gravity * p.Length * math.Sin(theta)
}

func (p *Pendulum) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	theta, omega := x[0], x[1]
	net := input(u) - p.HoldingTorque(theta) - p.Damping*omega
	return dynamo.State{omega, net / p.inertia()}
}

// Energy is kinetic plus potential energy, zero when hanging at rest.
func (p *Pendulum) Energy(x dynamo.State) float64 {
	ke := 0.5 * p.inertia() * x[1] * x[1]
	pe := p.Mass * p.Gravity * p.Length * (1 - math.Cos(x[0]))
	return ke + pe
}

func (p *Pendulum) Params() map[string]float64 {
	return map[string]float64{
		"mass":    p.Mass,
		"length":  p.Length,
		"damping": p.Damping,
		"gravity": p.Gravity,
	}
}

// SetParam rejects a non-positive mass or length, which would leave the
// rod without inertia.
func (p *Pendulum) SetParam(name string, value float64) error {
	switch name {
	case "mass", "length":
		if !(value > 0) {
			return fmt.Errorf("%w: pendulum %s must be positive, got %g", dynamo.ErrInvalidConfig, name, value)
		}
		if name == "mass" {
			p.Mass = value
		} else {
			p.Length = value
		}
	case "damping":
		p.Damping = value
	case "gravity":
		p.Gravity = value
	default:
		return fmt.Errorf("pendulum: unknown param: %s", name)
	}
	return nil
}

func input(u dynamo.Control) float64 {
	if len(u) == 0 {
		return 0
	}
	return u[0]
}
