package physics

import (
	"fmt"

	"github.com/san-kum/pidctl/internal/dynamo"
)

// Motor models shaft speed of a DC motor with negligible inductance.
type Motor struct {
	Inertia  float64 // kg m^2
	Friction float64 // N m s
	Torque   float64 // N m per volt
}

func NewMotor() *Motor {
	return &Motor{
		Inertia:  0.01,
		Friction: 0.1,
		Torque:   0.01,
	}
}

func (m *Motor) StateDim() int   { return 1 }
func (m *Motor) ControlDim() int { return 1 }

func (m *Motor) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{(m.Torque*input(u) - m.Friction*x[0]) / m.Inertia}
}

func (m *Motor) Energy(x dynamo.State) float64 {
	return 0.5 * m.Inertia * x[0] * x[0]
}

func (m *Motor) Params() map[string]float64 {
	return map[string]float64{
		"inertia":  m.Inertia,
		"friction": m.Friction,
		"torque":   m.Torque,
	}
}

func (m *Motor) SetParam(name string, value float64) error {
	switch name {
	case "inertia":
		m.Inertia = value
	case "friction":
		m.Friction = value
	case "torque":
		m.Torque = value
	default:
		return fmt.Errorf("motor: unknown param: %s", name)
	}
	return nil
}
