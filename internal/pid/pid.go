package pid

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/pidctl/internal/clock"
)

// Phase is the lifecycle position of a controller.
type Phase int

const (
	// Initialized controllers have no sample history since New or Reset.
	Initialized Phase = iota
	// Running controllers have accepted at least one sample.
	Running
)

func (p Phase) String() string {
	switch p {
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Terms is the per-cycle breakdown of a controller output.
type Terms struct {
	P float64
	I float64
	D float64
}

func (t Terms) Output() float64 {
	return t.P + t.I + t.D
}

// Snapshot is a read-only copy of the controller's mutable state.
type Snapshot struct {
	Phase      Phase
	Integral   float64
	LastError  float64
	LastSample time.Time
}

type Controller struct {
	gains   Gains
	limit   float64
	limited bool
	clock   clock.Clock

	phase      Phase
	integral   float64
	lastError  float64
	lastSample time.Time
	terms      Terms
}

type Option func(*Controller)

// WithIntegralLimit bounds the integral accumulator to [-limit, limit].
// The sign of limit is ignored.
func WithIntegralLimit(limit float64) Option {
	return func(c *Controller) {
		c.limit = math.Abs(limit)
		c.limited = true
	}
}

// WithClock sets the time source. The default is clock.System().
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

func New(kp, ki, kd float64, opts ...Option) *Controller {
	c := &Controller{
		gains: Gains{Kp: kp, Ki: ki, Kd: kd},
		clock: clock.System(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Reset()
	return c
}

// Reset discards all sample history. The next Update measures its time
// delta from the moment of the reset.
func (c *Controller) Reset() {
	c.phase = Initialized
	c.integral = 0
	c.lastError = 0
	c.lastSample = c.clock.Now()
	c.terms = Terms{}
}

// Update feeds one error sample, estimating the error derivative from the
// previous accepted sample.
func (c *Controller) Update(e float64) float64 {
	return c.update(e, 0, false)
}

// UpdateWithDerivative feeds one error sample together with a derivative
// measured elsewhere, which is used instead of the internal estimate.
func (c *Controller) UpdateWithDerivative(e, de float64) float64 {
	return c.update(e, de, true)
}

func (c *Controller) update(e, de float64, haveDe bool) float64 {
	now := c.clock.Now()
	dt := now.Sub(c.lastSample).Seconds()
	if dt <= 0 {
		return 0
	}
	c.lastSample = now

	c.integral = c.clampIntegral(c.integral + e*dt)
	if !haveDe {
		de = (e - c.lastError) / dt
	}

	c.terms = Terms{
		P: c.gains.Kp * e,
		I: c.gains.Ki * c.integral,
		D: c.gains.Kd * de,
	}
	c.lastError = e
	c.phase = Running

	return c.terms.Output()
}

func (c *Controller) clampIntegral(v float64) float64 {
	if !c.limited {
		return v
	}
	if v > c.limit {
		return c.limit
	}
	if v < -c.limit {
		return -c.limit
	}
	return v
}

func (c *Controller) Gains() Gains { return c.gains }

// IntegralLimit reports the anti-windup bound and whether one is set.
func (c *Controller) IntegralLimit() (float64, bool) { return c.limit, c.limited }

// Terms returns the contributions of the last accepted sample.
func (c *Controller) Terms() Terms { return c.terms }

func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Phase:      c.phase,
		Integral:   c.integral,
		LastError:  c.lastError,
		LastSample: c.lastSample,
	}
}

// Params returns tunable parameters for live adjustment.
func (c *Controller) Params() map[string]float64 {
	params := map[string]float64{
		"Kp": c.gains.Kp,
		"Ki": c.gains.Ki,
		"Kd": c.gains.Kd,
	}
	if c.limited {
		params["IntegralLimit"] = c.limit
	}
	return params
}

// SetParam adjusts a gain or the integral limit. Sample history is kept.
func (c *Controller) SetParam(name string, value float64) error {
	switch name {
	case "Kp":
		c.gains.Kp = value
	case "Ki":
		c.gains.Ki = value
	case "Kd":
		c.gains.Kd = value
	case "IntegralLimit":
		if value < 0 || math.IsNaN(value) {
			return fmt.Errorf("%w: IntegralLimit=%v", ErrParameterBounds, value)
		}
		c.limit = value
		c.limited = true
		c.integral = c.clampIntegral(c.integral)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return nil
}
