package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/extplan/internal/config"
	"github.com/conneroisu/extplan/internal/logging"
	"github.com/conneroisu/extplan/internal/output"
)

var (
	cfgFile   string
	configErr error

	outputFormat = output.FormatTable
	quiet        bool
	noHeaders    bool

	logger  logging.Logger = logging.Nop()
	logFile *logging.FileLogger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "extplan",
	Short: "Build-plan synthesizer for multi-entry browser extensions",
	Long: `extplan turns a bundle manifest into a concrete build plan for a
multi-entry browser extension: entries, page bindings, hot-update
instrumentation and the lint, compile and asset pipeline.

Quick Start:
  extplan plan                    Show the synthesized plan
  extplan plan -o yaml            Print the plan document
  extplan stages src/popup.css    Show which stage owns a file
  extplan build                   Bundle the extension and emit its pages
  extplan watch                   Rebuild and push hot updates on change`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return configErr
		}
		bindFlags(cmd)
		return setupLogger(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile == nil {
			return nil
		}
		return logFile.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which long-running commands
// such as watch stop on.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is .extplan.yml, can also use EXTPLAN_CONFIG_FILE env var)")
	pf.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	pf.String("dir", "", "extension app directory (default is the current directory)")
	pf.VarP(output.NewFormatValue(&outputFormat), "output", "o", "output format (yaml, json, table)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress output")
	pf.BoolVar(&noHeaders, "no-headers", false, "omit table headers")
}

// initConfig sets up the global viper instance.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. EXTPLAN_CONFIG_FILE environment variable
//  3. Default: .extplan.yml in the current directory
//
// A missing default file is fine. A file named explicitly must exist.
func initConfig() {
	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".extplan")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.BindEnvironment(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			configErr = err
		}
	}
}

// flagBindings maps flag names to the configuration keys they override.
// Bindings are made for the executing command only, since several commands
// define flags with the same name.
var flagBindings = map[string]string{
	"log-level":      "log.level",
	"dir":            "app.dir",
	"hot-update-url": "build.hot_update_url",
	"source-maps":    "build.source_maps",
	"out-dir":        "build.output",
	"inline-limit":   "build.inline_limit",
	"manifest":       "app.manifest",
	"mode":           "app.mode",
}

func bindFlags(cmd *cobra.Command) {
	for name, key := range flagBindings {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			_ = viper.BindPFlag(key, f)
		}
	}
}

func setupLogger(cmd *cobra.Command) error {
	level, err := logging.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return err
	}

	format := viper.GetString("log.format")
	if format == "" {
		format = "text"
	}

	lc := &logging.LoggerConfig{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	}
	logger = logging.NewLogger(lc).WithComponent("cli")

	if dir := viper.GetString("log.dir"); dir != "" {
		fl, err := logging.NewFileLogger(lc, dir)
		if err != nil {
			return err
		}
		logFile = fl
		logger = logging.NewMultiLogger(logger, fl.WithComponent("cli"))
	}

	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "using config file", "file", used)
	}
	return nil
}

func newFormatter(cmd *cobra.Command) *output.Formatter {
	f := output.NewFormatter(outputFormat, cmd.OutOrStdout())
	f.Quiet = quiet
	f.NoHeaders = noHeaders
	return f
}
