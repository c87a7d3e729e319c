package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newVisasCmd(load catalogLoader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "visas",
		Short: "List supported visa categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := load()
			if err != nil {
				return err
			}
			list := catalog.List()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tCRITERIA\tMIN\tTITLE")
			for _, v := range list {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", v.Code, len(v.Criteria), v.MinRequired, v.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	return cmd
}
