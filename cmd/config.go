package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/extplan/internal/config"
	"github.com/conneroisu/extplan/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect extplan configuration",
	Long: `Inspect extplan configuration files and settings.

Examples:
  extplan config show                         # Effective configuration
  extplan config validate                     # Validate .extplan.yml
  extplan config validate --file ci.yml --strict`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file and report errors and warnings with hints.

Warnings cover settings that are legal but likely wrong for an extension,
such as an http:// hot-update URL or a non-zero inline limit.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration resolved from the config file, EXTPLAN_* environment variables and defaults.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var (
	configFile   string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configValidateCmd.Flags().StringVarP(&configFile, "file", "f", "", "configuration file to validate (default .extplan.yml)")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "treat warnings as errors")
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	targetFile := configFile
	if targetFile == "" {
		targetFile = viper.ConfigFileUsed()
	}
	if targetFile == "" {
		return errors.New("no configuration file found; use --file to name one")
	}
	if _, err := os.Stat(targetFile); err != nil {
		return fmt.Errorf("configuration file %s: %w", targetFile, err)
	}

	v := viper.New()
	v.SetConfigFile(targetFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	validation := config.ValidateConfigWithDetails(cfg)
	f := newFormatter(cmd)

	if !validation.HasErrors() && !validation.HasWarnings() {
		f.PrintSuccess(targetFile + ": configuration is valid")
		return nil
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), validation.String())

	if validation.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(validation.Errors))
	}
	if configStrict {
		return fmt.Errorf("configuration validation failed in strict mode with %d warnings", len(validation.Warnings))
	}

	f.PrintSuccess(fmt.Sprintf("%s: configuration is valid with %d warnings", targetFile, len(validation.Warnings)))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	f := newFormatter(cmd)
	if f.Format != output.FormatTable {
		return f.Print(cfg)
	}
	return f.PrintTable(configTable(cfg))
}

// configTable flattens cfg to key/value rows in configuration key order.
func configTable(cfg *config.Config) output.TableData {
	values := map[string]string{
		"app.dir":              cfg.App.Dir,
		"app.source":           cfg.App.Source,
		"app.manifest":         cfg.App.Manifest,
		"app.mode":             cfg.App.Mode,
		"app.env_prefix":       cfg.App.EnvPrefix,
		"app.env_files":        strings.Join(cfg.App.EnvFiles, ","),
		"app.node_path":        cfg.App.NodePath,
		"build.output":         cfg.Build.Output,
		"build.source_maps":    cfg.Build.SourceMaps.String(),
		"build.hot_update_url": cfg.Build.HotUpdateURL,
		"build.inline_limit":   fmt.Sprint(cfg.Build.InlineLimit),
		"build.strict_lint":    fmt.Sprint(cfg.Build.StrictLint),
		"build.public_url":     cfg.Build.PublicURL,
		"build.public_path":    cfg.Build.PublicPath,
		"log.level":            cfg.Log.Level,
		"log.format":           cfg.Log.Format,
	}

	t := output.TableData{Title: "configuration", Headers: []string{"Key", "Value", "Environment"}}
	for _, key := range config.Keys {
		t.Rows = append(t.Rows, []string{key, values[key], config.EnvName(key)})
	}
	t.Rows = append(t.Rows, []string{"pipeline.rules", fmt.Sprint(len(cfg.Pipeline.Rules)), ""})
	return t
}
