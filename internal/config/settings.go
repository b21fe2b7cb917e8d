// Runtime settings — where to write state, how to serve, how to log.
// Separate from the scenario, which describes the economy itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds application knobs resolved from defaults, an optional
// settings file, and CHAINSIM_* environment variables, in rising priority.
type Settings struct {
	DBPath        string        `mapstructure:"db_path"`
	ExportDir     string        `mapstructure:"export_dir"`
	APIPort       int           `mapstructure:"api_port"`
	APIEnabled    bool          `mapstructure:"api_enabled"`
	AdminKey      string        `mapstructure:"admin_key"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	RoundInterval time.Duration `mapstructure:"round_interval"`
	AutosaveEvery int           `mapstructure:"autosave_every"`
}

// LoadSettings resolves runtime settings. An empty path searches the
// working directory and ./config for settings.yaml; a missing file is
// fine, defaults and environment variables still apply.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("db_path", "data/chainsim.db")
	v.SetDefault("export_dir", "exports")
	v.SetDefault("api_port", 8080)
	v.SetDefault("api_enabled", true)
	v.SetDefault("admin_key", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("round_interval", "1s")
	v.SetDefault("autosave_every", 10)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CHAINSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	if s.AutosaveEvery < 1 {
		s.AutosaveEvery = 1
	}
	return &s, nil
}
