package metrics

import "math"

// IAE is the integral of absolute error over the run.
type IAE struct {
	sum float64
}

func NewIAE() *IAE { return &IAE{} }

func (m *IAE) Name() string { return "iae" }

func (m *IAE) Observe(e, u, t, dt float64) {
	m.sum += math.Abs(e) * dt
}

func (m *IAE) Value() float64 { return m.sum }
func (m *IAE) Reset()         { m.sum = 0 }

// ISE is the integral of squared error over the run.
type ISE struct {
	sum float64
}

func NewISE() *ISE { return &ISE{} }

func (m *ISE) Name() string { return "ise" }

func (m *ISE) Observe(e, u, t, dt float64) {
	m.sum += e * e * dt
}

func (m *ISE) Value() float64 { return m.sum }
func (m *ISE) Reset()         { m.sum = 0 }

// Overshoot reports how far the process went past the setpoint, as a
// fraction of the initial error. Overshoot shows up as an error whose sign
// is opposite to the first non-zero error observed.
type Overshoot struct {
	initial float64
	peak    float64
}

func NewOvershoot() *Overshoot { return &Overshoot{} }

func (m *Overshoot) Name() string { return "overshoot" }

func (m *Overshoot) Observe(e, u, t, dt float64) {
	if m.initial == 0 {
		m.initial = e
		return
	}
	if e*m.initial < 0 {
		m.peak = math.Max(m.peak, math.Abs(e))
	}
}

func (m *Overshoot) Value() float64 {
	if m.initial == 0 {
		return 0
	}
	return m.peak / math.Abs(m.initial)
}

func (m *Overshoot) Reset() {
	m.initial = 0
	m.peak = 0
}

// SettlingTime is the last time |e| was outside Band. A run that never
// leaves the band settles at 0.
type SettlingTime struct {
	Band float64
	last float64
}

func NewSettlingTime(band float64) *SettlingTime {
	return &SettlingTime{Band: band}
}

func (m *SettlingTime) Name() string { return "settling_time" }

func (m *SettlingTime) Observe(e, u, t, dt float64) {
	if math.Abs(e) > m.Band {
		m.last = t + dt
	}
}

func (m *SettlingTime) Value() float64 { return m.last }
func (m *SettlingTime) Reset()         { m.last = 0 }
