package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/extplan/internal/engine"
	"github.com/conneroisu/extplan/internal/output"
	"github.com/conneroisu/extplan/internal/pages"
	"github.com/conneroisu/extplan/internal/plan"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bundle the extension and emit its pages",
	Long: `Synthesize the build plan, bundle every entry with esbuild and render
one HTML page per page binding into the output directory.

Lint and type-check stages are not run; they are reported as advisories.

Examples:
  extplan build                   # Build into ./build
  extplan build --clean           # Remove the output directory first
  extplan build --source-maps inline-source-map`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var buildClean bool

func init() {
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)

	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "remove the output directory before building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pr, err := loadProject(ctx)
	if err != nil {
		return err
	}

	bp, err := pr.synthesize(ctx)
	if err != nil {
		return err
	}

	if buildClean {
		if err := cleanOutput(pr.paths.AppDir, bp.Output().Path); err != nil {
			return err
		}
	}

	f := newFormatter(cmd)
	result, emitted, err := buildPlan(ctx, bp)
	if result != nil && result.Findings.Len() > 0 {
		if perr := f.PrintTable(output.FindingTable(result.Findings.All())); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}

	for _, a := range result.Advisories {
		logger.Info(ctx, a.Message, "code", a.Code, "subject", a.Subject)
	}

	return f.PrintTable(output.SummaryTable("build",
		output.CountRow("entries", len(bp.Entry())),
		output.CountRow("outputs", len(result.Outputs)),
		output.CountRow("pages", len(emitted)),
		output.CountRow("warnings", result.Findings.Len()),
		output.CountRow("advisories", len(bp.Advisories())+len(result.Advisories)),
	))
}

// buildPlan bundles bp and renders its pages. Pages are not emitted when the
// bundle fails.
func buildPlan(ctx context.Context, bp *plan.BuildPlan) (*engine.Result, []pages.Page, error) {
	result, err := engine.Build(ctx, bp, logger)
	if err != nil {
		return result, nil, err
	}

	emitted, err := pages.Emit(bp)
	if err != nil {
		return result, nil, err
	}
	for _, p := range emitted {
		logger.Debug(ctx, "page written", "bundle", p.Bundle, "path", p.Path)
	}
	return result, emitted, nil
}

func cleanOutput(appDir, outDir string) error {
	rel, err := filepath.Rel(outDir, appDir)
	if err != nil || !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to clean %s: it contains the app directory", outDir)
	}
	return os.RemoveAll(outDir)
}
