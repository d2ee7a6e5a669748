package config

import (
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader reads the host's bootstrap YAML file, substituting ${ENV_VAR}
// references before parsing.
type Loader struct{}

// NewLoader creates a configuration loader.
func NewLoader() *Loader { return &Loader{} }

// Load reads and parses the bootstrap config at path.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := envPattern.ReplaceAllStringFunc(string(data), func(m string) string {
		name := envPattern.FindStringSubmatch(m)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.Defaults()
	return &cfg, nil
}
