package integrators

import "github.com/san-kum/pidctl/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	return x.AddScaled(dyn.Derive(x, u, t), dt)
}
