package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/yandl/internal/utils"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download every entry of a YAML list (op, link, size, checksum, id)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(true)
			opts, err := transferOptions()
			if err != nil {
				return err
			}
			entries, err := utils.ReadDownloadList(args[0])
			if err != nil {
				return err
			}
			jobs := make([]utils.Job, 0, len(entries))
			for _, entry := range entries {
				job := newJob("http", entry.URL, opts)
				job.OutputPath = entry.OutputPath
				job.Spec.Size = entry.Size
				job.Spec.Checksum = entry.Checksum
				job.Spec.ID = entry.ID
				jobs = append(jobs, job)
			}
			return runJobs(cmd.Context(), jobs, nil)
		},
	}
	return cmd
}
