// Package config provides configuration management for extplan using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the EXTPLAN_ prefix. It describes the extension app layout,
// the build options handed to the synthesizer, extra pipeline rules, and
// logging.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/conneroisu/extplan/internal/env"
	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/paths"
	"github.com/conneroisu/extplan/internal/plan"
)

type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Build    BuildConfig    `mapstructure:"build" yaml:"build"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type AppConfig struct {
	Dir       string   `mapstructure:"dir" yaml:"dir"`
	Source    string   `mapstructure:"source" yaml:"source"`
	Manifest  string   `mapstructure:"manifest" yaml:"manifest"`
	Mode      string   `mapstructure:"mode" yaml:"mode"`
	EnvPrefix string   `mapstructure:"env_prefix" yaml:"env_prefix"`
	EnvFiles  []string `mapstructure:"env_files" yaml:"env_files"`
	NodePath  string   `mapstructure:"node_path" yaml:"node_path"`
}

type BuildConfig struct {
	Output       string          `mapstructure:"output" yaml:"output"`
	SourceMaps   plan.SourceMaps `mapstructure:"source_maps" yaml:"source_maps"`
	HotUpdateURL string          `mapstructure:"hot_update_url" yaml:"hot_update_url"`
	InlineLimit  int             `mapstructure:"inline_limit" yaml:"inline_limit"`
	StrictLint   bool            `mapstructure:"strict_lint" yaml:"strict_lint"`
	PublicURL    string          `mapstructure:"public_url" yaml:"public_url"`
	PublicPath   string          `mapstructure:"public_path" yaml:"public_path"`
}

type PipelineConfig struct {
	Rules []plan.Rule `mapstructure:"rules" yaml:"rules"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// Dir, when set, also writes a daily log file there.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// Keys lists every scalar configuration key. Binding them lets environment
// variables such as EXTPLAN_BUILD_HOT_UPDATE_URL reach Unmarshal even when
// no config file mentions the key.
var Keys = []string{
	"app.dir",
	"app.source",
	"app.manifest",
	"app.mode",
	"app.env_prefix",
	"app.env_files",
	"app.node_path",
	"build.output",
	"build.source_maps",
	"build.hot_update_url",
	"build.inline_limit",
	"build.strict_lint",
	"build.public_url",
	"build.public_path",
	"log.level",
	"log.format",
	"log.dir",
}

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "EXTPLAN"

// EnvName returns the environment variable for a configuration key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// BindEnvironment binds every key in Keys to its environment variable.
func BindEnvironment(v *viper.Viper) {
	for _, key := range Keys {
		_ = v.BindEnv(key, EnvName(key))
	}
}

// DecodeHook converts loosely typed config values into the types the
// synthesizer expects.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		sourceMapsHook,
		mapstructure.StringToSliceHookFunc(","),
	)
}

var sourceMapsType = reflect.TypeOf(plan.SourceMaps{})

func sourceMapsHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != sourceMapsType || from == sourceMapsType {
		return data, nil
	}
	return plan.ParseSourceMaps(data)
}

// Load decodes the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes v, applies defaults, and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, planerrors.WrapConfig(err, planerrors.ErrCodeConfigInvalid, "invalid configuration")
	}

	return config, nil
}

// Decode decodes v and applies defaults without validating.
func Decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, planerrors.WrapConfig(err, planerrors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	// Handle env files set via viper (workaround for viper slice handling)
	if v.IsSet("app.env_files") && len(config.App.EnvFiles) == 0 {
		config.App.EnvFiles = v.GetStringSlice("app.env_files")
	}

	applyDefaults(&config)
	return &config, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

func applyDefaults(config *Config) {
	if config.App.Dir == "" {
		config.App.Dir = "."
	}
	if config.App.Source == "" {
		config.App.Source = "src"
	}
	if config.App.Manifest == "" {
		config.App.Manifest = "bundles.yml"
	}
	if config.App.Mode == "" {
		config.App.Mode = "development"
	}
	if config.App.EnvPrefix == "" {
		config.App.EnvPrefix = env.DefaultPrefix
	}

	if config.Build.Output == "" {
		config.Build.Output = "build"
	}
	if config.Build.PublicPath == "" {
		config.Build.PublicPath = "/"
	}
	config.Build.HotUpdateURL = strings.TrimSpace(config.Build.HotUpdateURL)

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// validateConfig returns the first validation error, if any.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		first := result.Errors[0]
		return &first
	}
	return nil
}

// PathOptions returns the path resolver options for this configuration.
func (c *Config) PathOptions() []paths.Option {
	return []paths.Option{
		paths.WithSourceDir(c.App.Source),
		paths.WithOutputDir(c.Build.Output),
		paths.WithNodePath(c.App.NodePath),
	}
}

// EnvOptions returns the environment provider options.
func (c *Config) EnvOptions() []env.Option {
	opts := []env.Option{
		env.WithMode(c.App.Mode),
		env.WithPrefix(c.App.EnvPrefix),
	}
	if len(c.App.EnvFiles) > 0 {
		opts = append(opts, env.WithFiles(c.App.EnvFiles...))
	}
	return opts
}

// SynthesizerOptions returns the synthesizer options.
func (c *Config) SynthesizerOptions() []plan.SynthesizerOption {
	return []plan.SynthesizerOption{
		plan.WithInlineLimit(c.Build.InlineLimit),
		plan.WithStrictLint(c.Build.StrictLint),
		plan.WithPublicURL(c.Build.PublicURL),
		plan.WithPublicPath(c.Build.PublicPath),
		plan.WithRules(c.Pipeline.Rules...),
	}
}

// Options returns the per-invocation build options. The output path is left
// for the path resolver to fill in.
func (c *Config) Options() plan.Options {
	return plan.Options{
		SourceMaps:   c.Build.SourceMaps,
		HotUpdateURL: c.Build.HotUpdateURL,
	}
}

// String renders a short summary for debug logs.
func (c *Config) String() string {
	return fmt.Sprintf("app=%s manifest=%s output=%s hot_update=%q", c.App.Dir, c.App.Manifest, c.Build.Output, c.Build.HotUpdateURL)
}
