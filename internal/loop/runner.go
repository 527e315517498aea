package loop

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/pidctl/internal/clock"
	"github.com/san-kum/pidctl/internal/dynamo"
	"github.com/san-kum/pidctl/internal/integrators"
	"github.com/san-kum/pidctl/internal/physics"
	"github.com/san-kum/pidctl/internal/pid"
)

type Config struct {
	Dt       float64
	Duration float64
	Setpoint float64
	// Measure is the state index compared against Setpoint.
	Measure int
}

// Trace holds one row per control cycle. States[i] is the plant state that
// was sampled to produce Errors[i] and Outputs[i]. Energy is nil unless the
// plant is a dynamo.Hamiltonian.
type Trace struct {
	Times   []float64
	States  []dynamo.State
	Errors  []float64
	Outputs []float64
	Terms   []pid.Terms
	Energy  []float64
	Metrics map[string]float64
	Final   dynamo.State
}

func (tr *Trace) Steps() int { return len(tr.Times) }

type Runner struct {
	plant      dynamo.System
	integrator dynamo.Integrator
	ctrl       *pid.Controller
	clock      *clock.Manual
	metrics    []dynamo.Metric
	logger     *slog.Logger
}

type Option func(*Runner)

func WithMetrics(m ...dynamo.Metric) Option {
	return func(r *Runner) { r.metrics = append(r.metrics, m...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New wires a runner. ctrl must read its time from clk.
func New(plant dynamo.System, integrator dynamo.Integrator, ctrl *pid.Controller, clk *clock.Manual, opts ...Option) *Runner {
	r := &Runner{
		plant:      plant,
		integrator: integrator,
		ctrl:       ctrl,
		clock:      clk,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Spec names the pieces of a run.
type Spec struct {
	Plant         string
	Integrator    string
	Gains         pid.Gains
	IntegralLimit *float64
	PlantParams   map[string]float64
}

// Build constructs a runner, its plant, its integrator and a controller bound
// to a fresh manual clock.
func Build(spec Spec, opts ...Option) (*Runner, error) {
	plant, err := physics.Get(spec.Plant)
	if err != nil {
		return nil, err
	}
	if len(spec.PlantParams) > 0 {
		c, ok := plant.(dynamo.Configurable)
		if !ok {
			return nil, fmt.Errorf("%w: plant %s has no parameters", dynamo.ErrInvalidConfig, spec.Plant)
		}
		for name, v := range spec.PlantParams {
			if err := c.SetParam(name, v); err != nil {
				return nil, fmt.Errorf("%w: %v", dynamo.ErrInvalidConfig, err)
			}
		}
	}

	integ, err := integrators.Get(spec.Integrator)
	if err != nil {
		return nil, err
	}

	clk := clock.NewManual(time.Unix(0, 0))
	pidOpts := []pid.Option{pid.WithClock(clk)}
	if spec.IntegralLimit != nil {
		pidOpts = append(pidOpts, pid.WithIntegralLimit(*spec.IntegralLimit))
	}
	ctrl := pid.New(spec.Gains.Kp, spec.Gains.Ki, spec.Gains.Kd, pidOpts...)

	return New(plant, integ, ctrl, clk, opts...), nil
}

// period rounds dt to the clock's nanosecond resolution.
func period(dt float64) time.Duration {
	return time.Duration(math.Round(dt * float64(time.Second)))
}

// Run steps the loop for cfg.Duration. Controller, integrator and metrics
// share dt rounded to whole nanoseconds; t is read from the clock.
func (r *Runner) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Trace, error) {
	if err := r.validate(x0, cfg); err != nil {
		return nil, err
	}

	tick := period(cfg.Dt)
	dt := tick.Seconds()
	steps := int(cfg.Duration/dt + 0.5)
	tr := &Trace{
		Times:   make([]float64, 0, steps),
		States:  make([]dynamo.State, 0, steps),
		Errors:  make([]float64, 0, steps),
		Outputs: make([]float64, 0, steps),
		Terms:   make([]pid.Terms, 0, steps),
		Metrics: make(map[string]float64),
	}
	energy, hasEnergy := r.plant.(dynamo.Hamiltonian)
	if hasEnergy {
		tr.Energy = make([]float64, 0, steps)
	}

	for _, m := range r.metrics {
		m.Reset()
	}
	r.ctrl.Reset()

	r.logger.Info("run started",
		slog.Int("steps", steps),
		slog.Float64("dt", dt),
		slog.Float64("setpoint", cfg.Setpoint))

	x := x0.Clone()
	start := r.clock.Now()
	var t float64
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			tr.Final = x
			return tr, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, err)
		}

		t = r.clock.Now().Sub(start).Seconds()
		r.clock.Advance(tick)
		e := cfg.Setpoint - x[cfg.Measure]
		u := r.ctrl.Update(e)
		terms := r.ctrl.Terms()

		for _, m := range r.metrics {
			m.Observe(e, u, t, dt)
		}

		tr.Times = append(tr.Times, t)
		tr.States = append(tr.States, x)
		tr.Errors = append(tr.Errors, e)
		tr.Outputs = append(tr.Outputs, u)
		tr.Terms = append(tr.Terms, terms)
		if hasEnergy {
			tr.Energy = append(tr.Energy, energy.Energy(x))
		}

		r.logger.Debug("cycle",
			slog.Int("step", i),
			slog.Float64("t", t),
			slog.Float64("error", e),
			slog.Float64("output", u),
			slog.Float64("p", terms.P),
			slog.Float64("i", terms.I),
			slog.Float64("d", terms.D))

		next := r.integrator.Step(r.plant, x, dynamo.Control{u}, t, dt)
		if !next.IsValid() {
			tr.Final = x
			return tr, &dynamo.StepError{Step: i, Time: t, State: next, Wrapped: dynamo.ErrInvalidState}
		}
		x = next
	}
	tr.Final = x

	for _, m := range r.metrics {
		tr.Metrics[m.Name()] = m.Value()
	}

	r.logger.Info("run finished",
		slog.Int("steps", tr.Steps()),
		slog.Float64("final_error", cfg.Setpoint-x[cfg.Measure]),
		slog.Float64("state_norm", x.Norm()))

	return tr, nil
}

func (r *Runner) validate(x0 dynamo.State, cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %f", dynamo.ErrInvalidConfig, cfg.Dt)
	}
	if period(cfg.Dt) <= 0 {
		return fmt.Errorf("%w: dt %g is below clock resolution", dynamo.ErrInvalidConfig, cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %f", dynamo.ErrInvalidConfig, cfg.Duration)
	}
	if len(x0) != r.plant.StateDim() {
		return fmt.Errorf("%w: initial state has %d values, plant needs %d",
			dynamo.ErrInvalidConfig, len(x0), r.plant.StateDim())
	}
	if cfg.Measure < 0 || cfg.Measure >= len(x0) {
		return fmt.Errorf("%w: measure index %d outside state", dynamo.ErrInvalidConfig, cfg.Measure)
	}
	if !x0.IsValid() {
		return dynamo.ErrInvalidState
	}
	return nil
}
