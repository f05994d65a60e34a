package config

import "github.com/caarlos0/env/v11"

// EnvPrefix namespaces every environment variable read by the server.
const EnvPrefix = "LOSTFOUND_"

// parseEnv overlays fields whose LOSTFOUND_* variable is set. Unset
// variables leave the current value untouched.
func parseEnv(config *Config) error {
	return env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix})
}
