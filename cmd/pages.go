package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/extplan/internal/output"
	"github.com/conneroisu/extplan/internal/pages"
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Render the extension's HTML pages",
	Long: `Render one HTML page per page binding into the output directory without
bundling. %KEY% placeholders are replaced from the environment and script
tags are injected for each bundle's chunks.

Examples:
  extplan pages
  extplan pages -o json`,
	Args: cobra.NoArgs,
	RunE: runPages,
}

func init() {
	rootCmd.AddCommand(pagesCmd)
	addBuildFlags(pagesCmd)
}

func runPages(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context())
	if err != nil {
		return err
	}

	bp, err := pr.synthesize(cmd.Context())
	if err != nil {
		return err
	}

	emitted, err := pages.Emit(bp)
	if err != nil {
		return err
	}

	t := output.TableData{Title: "pages", Headers: []string{"Bundle", "Path"}}
	for _, p := range emitted {
		path := p.Path
		if rel, err := filepath.Rel(pr.paths.AppDir, p.Path); err == nil {
			path = filepath.ToSlash(rel)
		}
		t.Rows = append(t.Rows, []string{p.Bundle, path})
	}
	return newFormatter(cmd).PrintTable(t)
}
