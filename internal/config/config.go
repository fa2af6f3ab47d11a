// Package config defines the resolved configuration record the core
// consumes and a viper-based loader for it: a project-root lun.toml
// bound with mapstructure tags, overridable by LUN_-prefixed
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	lunerrors "lun/internal/errors"
	"lun/internal/tool"
)

// ToolConfig is the on-disk shape of one configured tool: a command
// template plus the linter/formatter-specific command variants.
type ToolConfig struct {
	Name        string   `mapstructure:"name"`
	Cmd         string   `mapstructure:"cmd"`
	Check       string   `mapstructure:"check"`
	Fix         string   `mapstructure:"fix"`
	Dir         string   `mapstructure:"cd"`
	Granularity string   `mapstructure:"granularity"`
	Files       []string `mapstructure:"files"`
	Ignore      []string `mapstructure:"ignore"`
	Configs     []string `mapstructure:"configs"`
}

// Config is the resolved record the core pipeline consumes.
type Config struct {
	Careful   bool           `mapstructure:"careful"`
	Cores     int            `mapstructure:"cores"`
	Mtime     bool           `mapstructure:"mtime"`
	Ninja     bool           `mapstructure:"ninja"`
	Refs      []string       `mapstructure:"refs"`
	Ignore    []string       `mapstructure:"ignore"`
	CacheSize int64          `mapstructure:"cache_size"`
	Allow     []string       `mapstructure:"allow"`
	Warn      []string       `mapstructure:"warn"`
	Deny      []string       `mapstructure:"deny"`
	Linters   []ToolConfig   `mapstructure:"linter"`
	Formatters []ToolConfig  `mapstructure:"formatter"`
}

// Default returns a Config with mtime enabled and everything else
// empty or zero.
func Default() *Config {
	return &Config{Mtime: true}
}

// Load reads lun.toml (if present) from projectRoot via viper, applies
// LUN_-prefixed environment overrides, and validates the result.
// Missing config files are not an error: Default() is returned.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("lun")
	v.SetConfigType("toml")
	v.AddConfigPath(projectRoot)
	v.SetEnvPrefix("LUN")
	v.AutomaticEnv()
	v.SetDefault("mtime", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return Default(), nil
		}
		return nil, lunerrors.Wrap(lunerrors.ErrConfigInvalid, "reading lun.toml", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, lunerrors.Wrap(lunerrors.ErrConfigInvalid, "parsing lun.toml", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects structurally invalid configuration.
func Validate(cfg *Config) error {
	for _, lc := range cfg.Linters {
		if lc.Cmd == "" {
			return lunerrors.New(lunerrors.ErrConfigInvalid, "linter "+lc.Name+" has no cmd")
		}
	}
	for _, fc := range cfg.Formatters {
		if fc.Cmd == "" {
			return lunerrors.New(lunerrors.ErrConfigInvalid, "formatter "+fc.Name+" has no cmd")
		}
	}
	return nil
}

// ToSpecs converts the on-disk tool configs into tool.Spec values.
func ToSpecs(cfg *Config) []*tool.Spec {
	specs := make([]*tool.Spec, 0, len(cfg.Linters)+len(cfg.Formatters))
	for _, lc := range cfg.Linters {
		specs = append(specs, toolFromConfig(lc, tool.Linter))
	}
	for _, fc := range cfg.Formatters {
		specs = append(specs, toolFromConfig(fc, tool.Formatter))
	}
	return specs
}

func toolFromConfig(tc ToolConfig, kind tool.Kind) *tool.Spec {
	granularity := tool.Individual
	if strings.EqualFold(tc.Granularity, string(tool.Batch)) {
		granularity = tool.Batch
	}
	return &tool.Spec{
		Name:        tc.Name,
		Kind:        kind,
		Cmd:         tc.Cmd,
		Check:       tc.Check,
		Fix:         tc.Fix,
		Dir:         tc.Dir,
		Granularity: granularity,
		Include:     tc.Files,
		Ignore:      tc.Ignore,
		Configs:     tc.Configs,
	}
}

// ValidateFlags rejects flag combinations that cannot be jointly
// honored: --watch and --ninja both require owning the long-lived
// process loop.
func ValidateFlags(watch, ninja bool) error {
	if watch && ninja {
		return lunerrors.New(lunerrors.ErrConfigContradictory, "--watch and --ninja cannot be combined: both require owning the run loop")
	}
	return nil
}

// FormatUnknownToolError renders the usage error for an
// --only-tool/--skip-tool name matching no configured tool.
func FormatUnknownToolError(flag, name string) error {
	return lunerrors.New(lunerrors.ErrToolUnknown, fmt.Sprintf("%s %q does not match any configured tool", flag, name))
}
