package config

import (
	"os"

	"github.com/kkyr/fig"
)

const EnvPrefix = "LIVELINK"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom path to the configuration file.
// Reads and puts environment variables with the prefix LIVELINK_.
// Params from the config should be in uppercase separated with _.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.livelink")
		}
	}
	return fig.Load(config, fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
}

func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}

// NewConfig loads the default config searching the default paths.
func NewConfig() (conf Config, err error) {
	err = LoadConfig(&conf, "")
	return
}
