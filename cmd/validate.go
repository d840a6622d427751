package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/extplan/internal/output"
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the manifest and the files it references",
	Long: `Validate the bundle manifest against its schema, synthesize the plan,
and check that every script entry and page template exists.

Examples:
  extplan validate
  extplan validate --manifest bundles.prod.yml -o json`,
	Args: cobra.NoArgs,
	RunE: runValidateCommand,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addBuildFlags(validateCmd)
}

// ValidationCheck is one row of validate output.
type ValidationCheck struct {
	Check   string
	Subject string
	Status  string
	Detail  string
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pr, err := loadProject(ctx)
	if err != nil {
		return err
	}

	checks := []ValidationCheck{{Check: "manifest", Subject: pr.manifestPath, Status: "ok", Detail: "matches schema"}}

	bp, err := pr.synthesize(ctx)
	if err != nil {
		checks = append(checks, ValidationCheck{Check: "plan", Status: "error", Detail: err.Error()})
	} else {
		checks = append(checks, ValidationCheck{Check: "plan", Status: "ok",
			Detail: fmt.Sprintf("%d entries, %d pages", len(bp.Entry()), len(bp.PageBindings()))})
		for _, a := range bp.Advisories() {
			checks = append(checks, ValidationCheck{Check: a.Code, Subject: a.Subject, Status: "warning", Detail: a.Message})
		}
	}

	for _, b := range pr.bundles() {
		for _, ref := range []struct{ check, path string }{{"indexJs", b.IndexJS}, {"indexHtml", b.IndexHTML}} {
			if ref.path == "" {
				continue
			}
			c := ValidationCheck{Check: ref.check, Subject: b.Name, Status: "ok", Detail: ref.path}
			if _, err := os.Stat(ref.path); err != nil {
				c.Status = "error"
				c.Detail = fmt.Sprintf("%s does not exist", ref.path)
			}
			checks = append(checks, c)
		}
	}

	t := output.TableData{Title: "validation", Headers: []string{"Check", "Subject", "Status", "Detail"}}
	failed := 0
	for _, c := range checks {
		if c.Status == "error" {
			failed++
		}
		t.Rows = append(t.Rows, []string{c.Check, c.Subject, c.Status, c.Detail})
	}
	if err := newFormatter(cmd).PrintTable(t); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("validation failed with %d errors", failed)
	}
	return nil
}
