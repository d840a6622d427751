package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/extplan/internal/output"
	"github.com/conneroisu/extplan/internal/version"
)

var versionShort bool

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for extplan including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version used for compilation
- Target platform (OS/architecture)
- esbuild version used by the build command

Examples:
  extplan version              # Show version details
  extplan version --short      # Show short version
  extplan version -o json      # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()

	if versionShort {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), info.Short())
		return err
	}

	f := newFormatter(cmd)
	if f.Format != output.FormatTable {
		return f.Print(info)
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), info.Detailed())
	return err
}
