package config

import "sort"

func heading(deg float64) *float64 { return &deg }

// Presets are named maneuvers. Unset fields inherit DefaultConfig.
var Presets = map[string]func(*Config){
	// the reference lateral shift: end at (0.25, 0.25), heading free
	"parking": func(c *Config) {},

	// same shift, but the car must end parallel to where it started
	"aligned": func(c *Config) {
		c.TerminalHeadingDeg = heading(0)
	},

	"reverse": func(c *Config) {
		c.Target = PointConfig{X: -0.5, Y: 0}
	},

	"turn": func(c *Config) {
		c.Target = PointConfig{X: 1, Y: 0.5}
		c.TerminalHeadingDeg = heading(45)
	},

	// far target, a horizon cap no plan can meet and a tiny budget
	"unreachable": func(c *Config) {
		c.Target = PointConfig{X: 10, Y: 10}
		c.MaxDuration = 1e-3
		c.Solver.MaxIterations = 3
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
