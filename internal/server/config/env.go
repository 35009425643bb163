package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays environment variables onto the provided Config using
// the struct's env tags. Unset variables leave current values intact.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
