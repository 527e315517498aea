package physics

import (
	"fmt"

	"github.com/san-kum/pidctl/internal/dynamo"
)

// Thermal is a single lumped heat capacity losing heat to a fixed ambient.
type Thermal struct {
	Capacity    float64 // J/K
	Conductance float64 // W/K to ambient
	Ambient     float64 // degrees C
}

func NewThermal() *Thermal {
	return &Thermal{
		Capacity:    500.0,
		Conductance: 5.0,
		Ambient:     20.0,
	}
}

func (th *Thermal) StateDim() int   { return 1 }
func (th *Thermal) ControlDim() int { return 1 }

func (th *Thermal) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	loss := th.Conductance * (x[0] - th.Ambient)
	return dynamo.State{(input(u) - loss) / th.Capacity}
}

// Equilibrium is the temperature reached under constant heater power.
func (th *Thermal) Equilibrium(power float64) float64 {
	return th.Ambient + power/th.Conductance
}

func (th *Thermal) Params() map[string]float64 {
	return map[string]float64{
		"capacity":    th.Capacity,
		"conductance": th.Conductance,
		"ambient":     th.Ambient,
	}
}

func (th *Thermal) SetParam(name string, value float64) error {
	switch name {
	case "capacity":
		th.Capacity = value
	case "conductance":
		th.Conductance = value
	case "ambient":
		th.Ambient = value
	default:
		return fmt.Errorf("thermal: unknown param: %s", name)
	}
	return nil
}
