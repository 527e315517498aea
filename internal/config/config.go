package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/pidctl/internal/integrators"
	"github.com/san-kum/pidctl/internal/physics"
)

const (
	DefaultDt       = 0.01
	DefaultDuration = 10.0
	DefaultBand     = 0.02
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Plant       string             `yaml:"plant"`
	Integrator  string             `yaml:"integrator"`
	Dt          float64            `yaml:"dt"`
	Duration    float64            `yaml:"duration"`
	Setpoint    float64            `yaml:"setpoint"`
	Band        float64            `yaml:"settling_band"`
	InitState   []float64          `yaml:"init_state,omitempty"`
	PlantParams map[string]float64 `yaml:"plant_params,omitempty"`
	Gains       GainsConfig        `yaml:"gains"`
}

// GainsConfig holds controller tuning. A nil IntegralLimit leaves the
// integral unbounded.
type GainsConfig struct {
	Kp            float64  `yaml:"kp"`
	Ki            float64  `yaml:"ki"`
	Kd            float64  `yaml:"kd"`
	IntegralLimit *float64 `yaml:"integral_limit,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Plant:      "spring_mass",
		Integrator: "rk4",
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		Setpoint:   1.0,
		Band:       DefaultBand,
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	if c.InitState != nil {
		cp.InitState = append([]float64(nil), c.InitState...)
	}
	if c.PlantParams != nil {
		cp.PlantParams = make(map[string]float64, len(c.PlantParams))
		for k, v := range c.PlantParams {
			cp.PlantParams[k] = v
		}
	}
	if c.Gains.IntegralLimit != nil {
		l := *c.Gains.IntegralLimit
		cp.Gains.IntegralLimit = &l
	}
	return &cp
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver decodes the file at path over a copy of base, so keys absent from
// the file keep base's values. base is not modified.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base.Clone()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalid, c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", ErrInvalid, c.Duration)
	}
	if c.Band < 0 {
		return fmt.Errorf("%w: settling_band must not be negative, got %g", ErrInvalid, c.Band)
	}
	if l := c.Gains.IntegralLimit; l != nil && *l < 0 {
		return fmt.Errorf("%w: integral_limit must not be negative, got %g", ErrInvalid, *l)
	}
	if _, err := physics.Get(c.Plant); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := integrators.Get(c.Integrator); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.InitState != nil {
		plant, _ := physics.Get(c.Plant)
		if len(c.InitState) != plant.StateDim() {
			return fmt.Errorf("%w: init_state has %d values, %s needs %d",
				ErrInvalid, len(c.InitState), c.Plant, plant.StateDim())
		}
	}
	return nil
}

// GetInitState returns the configured initial state, or the plant's resting
// state when none is configured.
func (c *Config) GetInitState() []float64 {
	if c.InitState != nil {
		return append([]float64(nil), c.InitState...)
	}
	switch c.Plant {
	case "thermal":
		return []float64{physics.NewThermal().Ambient}
	case "motor":
		return []float64{0}
	default:
		return []float64{0, 0}
	}
}
