package integrators

import "github.com/san-kum/pidctl/internal/dynamo"

// RK4 is the classical fourth-order Runge-Kutta stepper. The control input
// is held constant across the step, as a sampled controller would hold it.
type RK4 struct {
	k [4]dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	half := dt * 0.5

	r.k[0] = dyn.Derive(x, u, t)
	r.k[1] = dyn.Derive(x.AddScaled(r.k[0], half), u, t+half)
	r.k[2] = dyn.Derive(x.AddScaled(r.k[1], half), u, t+half)
	r.k[3] = dyn.Derive(x.AddScaled(r.k[2], dt), u, t+dt)

	result := make(dynamo.State, len(x))
	dt6 := dt / 6.0
	for i := range x {
		result[i] = x[i] + dt6*(r.k[0][i]+2*r.k[1][i]+2*r.k[2][i]+r.k[3][i])
	}
	return result
}
