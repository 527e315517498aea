package config

import "sort"

func limit(v float64) *float64 { return &v }

var Presets = map[string]map[string]*Config{
	"spring_mass": {
		"gentle": {
			Plant: "spring_mass", Integrator: "rk4", Dt: 0.01, Duration: 20.0, Setpoint: 1.0, Band: 0.02,
			Gains: GainsConfig{Kp: 10, Ki: 5, Kd: 2},
		},
		"aggressive": {
			Plant: "spring_mass", Integrator: "rk4", Dt: 0.005, Duration: 10.0, Setpoint: 1.0, Band: 0.02,
			Gains: GainsConfig{Kp: 80, Ki: 60, Kd: 8, IntegralLimit: limit(5)},
		},
	},
	"thermal": {
		"oven": {
			Plant: "thermal", Integrator: "rk4", Dt: 0.1, Duration: 600.0, Setpoint: 180.0, Band: 1.0,
			Gains: GainsConfig{Kp: 50, Ki: 2, Kd: 0, IntegralLimit: limit(2000)},
		},
		"proportional": {
			Plant: "thermal", Integrator: "rk4", Dt: 0.1, Duration: 300.0, Setpoint: 50.0, Band: 0.5,
			Gains: GainsConfig{Kp: 50},
		},
	},
	"motor": {
		"speed": {
			Plant: "motor", Integrator: "rk4", Dt: 0.001, Duration: 2.0, Setpoint: 100.0, Band: 1.0,
			Gains: GainsConfig{Kp: 20, Ki: 40, Kd: 0.01},
		},
	},
	"pendulum": {
		"hold": {
			Plant: "pendulum", Integrator: "rk4", Dt: 0.005, Duration: 15.0, Setpoint: 0.5, Band: 0.01,
			Gains: GainsConfig{Kp: 40, Ki: 10, Kd: 8, IntegralLimit: limit(10)},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(plant, preset string) *Config {
	plantPresets, ok := Presets[plant]
	if !ok {
		return nil
	}
	cfg, ok := plantPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(plant string) []string {
	plantPresets, ok := Presets[plant]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(plantPresets))
	for name := range plantPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
