package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addProjectFlags adds the flags that locate the app and its manifest.
func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("manifest", "m", "", "bundle manifest, relative to the app directory (default bundles.yml)")
	cmd.Flags().String("mode", "", "environment mode used to pick .env files (default development)")
}

// addBuildFlags adds the per-invocation build options. Values override the
// matching build.* configuration keys; see flagBindings.
func addBuildFlags(cmd *cobra.Command) {
	addProjectFlags(cmd)
	cmd.Flags().String("hot-update-url", "", "enable hot-update instrumentation against this websocket URL")
	cmd.Flags().String("source-maps", "", "source map setting: true, false, or a devtool style")
	cmd.Flags().String("out-dir", "", "output directory, relative to the app directory (default build)")
	cmd.Flags().Int("inline-limit", 0, "inline assets at most this many bytes as data URLs")
	AddFlagValidation(cmd, "inline-limit", func(v string) error {
		var n int
		if _, err := fmt.Sscan(v, &n); err != nil || n < 0 {
			return fmt.Errorf("inline limit must be a non-negative integer, got %q", v)
		}
		return nil
	})
}

// AddFlagValidation wraps a flag so values are validated as they are set.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(value string) error {
	if err := v.validator(value); err != nil {
		return err
	}
	return v.Value.Set(value)
}
