package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pitabwire/opsdesk/internal/listquery"
)

func newWindowCmd() *cobra.Command {
	var (
		current, total, maxVisible int
		asJSON                     bool
	)

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Print the page buttons shown for a page position",
		Example: `  opsdesk window --current 6 --total 20 --max 7
  1 … 5 6 7 … 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items := listquery.Window(current, total, maxVisible)
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(items)
			}
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = it.String()
			}
			_, err := fmt.Fprintln(out, strings.Join(parts, " "))
			return err
		},
	}
	cmd.Flags().IntVar(&current, "current", 1, "current page")
	cmd.Flags().IntVar(&total, "total", 1, "total pages")
	cmd.Flags().IntVar(&maxVisible, "max", 7, "maximum buttons shown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the window as JSON")
	return cmd
}
