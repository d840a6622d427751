package cmd

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Synthesize and print the build plan",
	Long: `Synthesize the build plan for the bundles in the manifest and print it.

Table output summarizes each section. YAML and JSON print the full plan
document: devtool, entry, output, resolve, module, plugins, pages, node,
performance and advisories.

Examples:
  extplan plan                                    # Summary tables
  extplan plan -o yaml                            # Plan document
  extplan plan --hot-update-url ws://localhost:9000 -o json`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	addBuildFlags(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context())
	if err != nil {
		return err
	}

	bp, err := pr.synthesize(cmd.Context())
	if err != nil {
		return err
	}

	return newFormatter(cmd).PrintPlan(bp)
}
