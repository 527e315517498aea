package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/pidctl/internal/config"
	"github.com/san-kum/pidctl/internal/dynamo"
	"github.com/san-kum/pidctl/internal/loop"
	"github.com/san-kum/pidctl/internal/metrics"
	"github.com/san-kum/pidctl/internal/pid"
)

// Scenario is a scripted sequence of closed-loop runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run. Unset fields take config.DefaultConfig values.
type ScenarioStep struct {
	Name          string `yaml:"name"`
	config.Config `yaml:",inline"`
}

type StepResult struct {
	Step   ScenarioStep
	Config *config.Config
	Trace  *loop.Trace
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Name        string      `yaml:"name"`
		Description string      `yaml:"description"`
		Steps       []yaml.Node `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	scenario := &Scenario{Name: raw.Name, Description: raw.Description}
	for i, node := range raw.Steps {
		step := ScenarioStep{Config: *config.DefaultConfig()}
		if err := node.Decode(&step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		scenario.Steps = append(scenario.Steps, step)
	}
	return scenario, nil
}

func buildSpec(cfg *config.Config) loop.Spec {
	return loop.Spec{
		Plant:         cfg.Plant,
		Integrator:    cfg.Integrator,
		Gains:         pid.Gains{Kp: cfg.Gains.Kp, Ki: cfg.Gains.Ki, Kd: cfg.Gains.Kd},
		IntegralLimit: cfg.Gains.IntegralLimit,
		PlantParams:   cfg.PlantParams,
	}
}

// RunScenario executes the steps in order and stops at the first failure,
// returning the results gathered so far.
func RunScenario(ctx context.Context, scenario *Scenario, logger *slog.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg := step.Config
		logger.Info("scenario step",
			slog.Int("index", i+1),
			slog.Int("of", len(scenario.Steps)),
			slog.String("name", step.Name),
			slog.String("plant", cfg.Plant))

		r, err := loop.Build(buildSpec(&cfg), loop.WithLogger(logger), loop.WithMetrics(metrics.Defaults(cfg.Band)...))
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		tr, err := r.Run(ctx, dynamo.State(cfg.GetInitState()), loop.Config{
			Dt:       cfg.Dt,
			Duration: cfg.Duration,
			Setpoint: cfg.Setpoint,
		})
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Step: step, Config: &cfg, Trace: tr})
	}

	return results, nil
}

// MonteCarloConfig perturbs the initial plant state of cfg across trials to
// check that one tuning holds up away from its nominal starting point.
type MonteCarloConfig struct {
	Run          config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
}

type MonteCarloResult struct {
	TrialID    int
	InitState  dynamo.State
	FinalError float64
	IAE        float64
	Settled    bool
}

// RunMonteCarlo runs the trials sequentially. A trial has settled when its
// final error is within the configured band.
func RunMonteCarlo(ctx context.Context, mc *MonteCarloConfig, logger *slog.Logger) ([]MonteCarloResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if mc.NumTrials <= 0 {
		return nil, fmt.Errorf("%w: trials must be positive, got %d", dynamo.ErrInvalidConfig, mc.NumTrials)
	}

	rng := rand.New(rand.NewSource(mc.Seed))
	base := mc.Run.GetInitState()
	results := make([]MonteCarloResult, 0, mc.NumTrials)

	for trial := 0; trial < mc.NumTrials; trial++ {
		init := make(dynamo.State, len(base))
		for i, v := range base {
			init[i] = v + (rng.Float64()-0.5)*2*mc.Perturbation
		}

		r, err := loop.Build(buildSpec(&mc.Run), loop.WithLogger(logger), loop.WithMetrics(metrics.Defaults(mc.Run.Band)...))
		if err != nil {
			return nil, err
		}

		res := MonteCarloResult{TrialID: trial, InitState: init, FinalError: math.Inf(1), IAE: math.Inf(1)}
		tr, err := r.Run(ctx, init, loop.Config{
			Dt:       mc.Run.Dt,
			Duration: mc.Run.Duration,
			Setpoint: mc.Run.Setpoint,
		})
		switch {
		case err == nil:
			res.FinalError = mc.Run.Setpoint - tr.Final[0]
			res.IAE = tr.Metrics["iae"]
			res.Settled = math.Abs(res.FinalError) <= mc.Run.Band
		case ctx.Err() != nil:
			return results, err
		default:
			logger.Warn("trial diverged", slog.Int("trial", trial), slog.Any("error", err))
		}
		results = append(results, res)

		if (trial+1)%10 == 0 {
			logger.Info("monte carlo progress", slog.Int("done", trial+1), slog.Int("of", mc.NumTrials))
		}
	}

	return results, nil
}

// MonteCarloSummary aggregates a batch of trials. MeanIAE averages only the
// trials that ran to completion and is NaN when none did.
type MonteCarloSummary struct {
	Trials     int
	Settled    int
	Unsettled  int
	SettleRate float64
	MeanIAE    float64
}

// MonteCarloStats summarises settle rate and integrated absolute error.
func MonteCarloStats(results []MonteCarloResult) MonteCarloSummary {
	sum := MonteCarloSummary{Trials: len(results), MeanIAE: math.NaN()}
	var total float64
	var finished int
	for _, r := range results {
		if r.Settled {
			sum.Settled++
		} else {
			sum.Unsettled++
		}
		if !math.IsInf(r.IAE, 0) && !math.IsNaN(r.IAE) {
			total += r.IAE
			finished++
		}
	}
	if sum.Trials > 0 {
		sum.SettleRate = float64(sum.Settled) / float64(sum.Trials)
	}
	if finished > 0 {
		sum.MeanIAE = total / float64(finished)
	}
	return sum
}
