package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/pidctl/internal/dynamo"
)

type oscillator struct{}

func (oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (oscillator) StateDim() int   { return 2 }
func (oscillator) ControlDim() int { return 0 }

type decay struct{}

func (decay) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{-x[0] + u[0]}
}

func (decay) StateDim() int   { return 1 }
func (decay) ControlDim() int { return 1 }

func TestRK4Accuracy(t *testing.T) {
	integ := NewRK4()

	x := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100

	for i := 0; i < steps; i++ {
		x = integ.Step(oscillator{}, x, nil, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}
	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestEulerStep(t *testing.T) {
	x := NewEuler().Step(decay{}, dynamo.State{1.0}, dynamo.Control{0.5}, 0, 0.1)
	if math.Abs(x[0]-0.95) > 1e-12 {
		t.Errorf("expected 0.95, got %v", x[0])
	}
}

func TestRK4ConvergesToForcedEquilibrium(t *testing.T) {
	integ := NewRK4()
	x := dynamo.State{0.0}
	for i := 0; i < 2000; i++ {
		x = integ.Step(decay{}, x, dynamo.Control{2.0}, float64(i)*0.01, 0.01)
	}
	if math.Abs(x[0]-2.0) > 1e-6 {
		t.Errorf("expected equilibrium 2.0, got %v", x[0])
	}
}

func TestGet(t *testing.T) {
	for _, name := range Names() {
		if _, err := Get(name); err != nil {
			t.Errorf("Get(%q) failed: %v", name, err)
		}
	}

	if _, err := Get("leapfrog"); !errors.Is(err, dynamo.ErrUnknownIntegrator) {
		t.Errorf("expected ErrUnknownIntegrator, got %v", err)
	}
}
