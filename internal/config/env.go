// ABOUTME: Environment-driven defaults for the host and monitor commands
// ABOUTME: Parses LINKCLOCK_* variables into config structs
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Host holds host daemon settings; flags override these
type Host struct {
	Port         int           `env:"LINKCLOCK_PORT" envDefault:"8927"`
	Name         string        `env:"LINKCLOCK_NAME"`
	Tempo        float64       `env:"LINKCLOCK_TEMPO" envDefault:"120"`
	Quantum      float64       `env:"LINKCLOCK_QUANTUM" envDefault:"4"`
	TickInterval time.Duration `env:"LINKCLOCK_TICK_INTERVAL" envDefault:"1ms"`
	BeatInterval time.Duration `env:"LINKCLOCK_BEAT_INTERVAL" envDefault:"20ms"`
	NoMDNS       bool          `env:"LINKCLOCK_NO_MDNS"`
	Preset       string        `env:"LINKCLOCK_PRESET"`
	LogFile      string        `env:"LINKCLOCK_LOG_FILE" envDefault:"linkclock.log"`
}

// Monitor holds monitor settings; flags override these
type Monitor struct {
	Server     string  `env:"LINKCLOCK_SERVER"`
	Name       string  `env:"LINKCLOCK_MONITOR_NAME"`
	Resolution float64 `env:"LINKCLOCK_RESOLUTION" envDefault:"1"`
	LogFile    string  `env:"LINKCLOCK_MONITOR_LOG_FILE" envDefault:"linkclock-monitor.log"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
