package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/extplan/internal/output"
	"github.com/conneroisu/extplan/internal/plan"
)

var stagesCmd = &cobra.Command{
	Use:   "stages [file...]",
	Short: "List pipeline stages or show which stage owns a file",
	Long: `Without arguments, list the pipeline stages in order.

With file arguments, show for each file the stage that compiles it and the
pre-stages (lint, type-check) that see it first. Relative files are resolved
against the app directory.

Examples:
  extplan stages
  extplan stages src/popup/index.js src/logo.svg`,
	RunE: runStages,
}

func init() {
	rootCmd.AddCommand(stagesCmd)
	addBuildFlags(stagesCmd)
}

func runStages(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context())
	if err != nil {
		return err
	}

	bp, err := pr.synthesize(cmd.Context())
	if err != nil {
		return err
	}

	f := newFormatter(cmd)
	if len(args) == 0 {
		return f.PrintTable(output.StageTable(bp.Pipeline()))
	}

	files := make([]string, len(args))
	for i, arg := range args {
		if filepath.IsAbs(arg) {
			files[i] = filepath.Clean(arg)
		} else {
			files[i] = filepath.Join(pr.paths.AppDir, arg)
		}
	}
	return f.PrintTable(routeTable(bp.Pipeline(), args, files))
}

// routeTable shows the owning stage of each file. labels are printed in
// place of the resolved paths.
func routeTable(pipeline plan.Pipeline, labels, files []string) output.TableData {
	t := output.TableData{Title: "routing", Headers: []string{"File", "Stage", "Kind", "Pre-stages"}}
	for i, file := range files {
		stage, kind := "-", "-"
		if s, ok := pipeline.StageFor(file); ok {
			stage, kind = s.Name, string(s.Kind)
		}

		var pre []string
		for _, s := range pipeline.PreStagesFor(file) {
			name := s.Name
			if s.Gate != nil && s.Gate.Skipped {
				name += " (skipped)"
			}
			pre = append(pre, name)
		}
		t.Rows = append(t.Rows, []string{labels[i], stage, kind, strings.Join(pre, ", ")})
	}
	return t
}
