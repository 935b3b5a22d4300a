package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, starting from
// Defaults() so every field not present in the file keeps its safe
// default, then validates the result. A missing file is returned as an
// error wrapping fs.ErrNotExist: callers that want "absent file ==
// defaults" check for it with errors.Is and fall back to Defaults().
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of Defaults() and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := expandEnv(string(raw))

	cfg := Defaults()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references against os.Getenv, used for
// API keys: the YAML file itself never carries a secret value, only a
// reference to an environment variable godotenv has already populated.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})
}

// Validate checks cfg for internal coherence, returning a joined error
// listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", cfg.Audio.Channels))
	}
	if cfg.Stream.MinChars < 0 || cfg.Stream.MinWords < 0 || cfg.Stream.FirstSentenceMinWords < 0 {
		errs = append(errs, errors.New("stream thresholds must be non-negative"))
	}
	if cfg.Server.InterruptBackend != "memory" && cfg.Server.InterruptBackend != "redis" {
		errs = append(errs, fmt.Errorf("server.interrupt_backend %q must be \"memory\" or \"redis\"", cfg.Server.InterruptBackend))
	}
	if cfg.Server.InterruptBackend == "redis" && cfg.Server.RedisAddr == "" {
		errs = append(errs, errors.New("server.interrupt_backend is \"redis\" but server.redis_addr is empty"))
	}
	if cfg.Server.InterruptTTL <= 0 {
		errs = append(errs, errors.New("server.interrupt_ttl must be positive"))
	}

	return errors.Join(errs...)
}

// DefaultConfigPath returns the per-user configuration file location
// used when no explicit -config flag is given, under the same
// application-support convention as the persisted state layout of §6.
func DefaultConfigPath() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return u.HomeDir + "/.config/halo/config.yaml", nil
}
