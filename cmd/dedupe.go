package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/yandl/internal/downloaders/yande"
	"github.com/tanq16/yandl/internal/output"
)

func newDedupeCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "dedupe [DIR]",
		Short: "List files in a directory that share a post identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(false)
			dir := args[0]
			dups, err := yande.Duplicates(dir)
			if err != nil {
				return err
			}
			if len(dups) == 0 {
				output.PrintSuccess("No duplicate posts in " + dir)
				return nil
			}
			for _, id := range yande.SortedIDs(dups) {
				output.PrintWarning(fmt.Sprintf("%d: %s", id, strings.Join(dups[id], ", ")))
			}
			if !remove {
				output.PrintInfo(fmt.Sprintf("%d duplicated post(s); rerun with --remove to keep only the first file of each", len(dups)))
				return nil
			}
			removed, err := yande.RemoveDuplicates(dir, dups)
			for _, path := range removed {
				output.PrintDetail("Removed " + path)
			}
			if err != nil {
				return err
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d file(s)", len(removed)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Delete every duplicate except the first file name")
	return cmd
}
