package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/extplan/internal/manifest"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the bundle manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bs, err := manifest.ReflectSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bs))
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
