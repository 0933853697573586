package rangehttp

import (
	"context"
	"fmt"
	"os"

	"github.com/tanq16/yandl/internal/utils"
)

func (d *HTTPDownloader) Download(ctx context.Context, job *utils.Job) error {
	client := utils.NewHTTPClient(job.HTTPClientConfig)
	opts := job.Transfer
	if supported, ok := job.Metadata["rangeSupported"].(bool); ok && !supported {
		// one segment without a Range header
		opts.SplitSize = max(job.Spec.Size, 1)
	}
	if err := os.MkdirAll(job.Spec.Dir, 0755); err != nil {
		return &WriteError{Op: "mkdir", Path: job.Spec.Dir, Err: err}
	}

	progress := func(update utils.ProgressUpdate) {
		update.ID = job.ID
		if job.ProgressFunc != nil {
			job.ProgressFunc(update)
		}
	}
	result, err := Transfer(ctx, job.Spec, opts, client, progress)
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	job.Metadata["result"] = result
	job.Metadata["totalDownloaded"] = result.Written
	job.Metadata["totalTime"] = result.Elapsed.Seconds()
	job.State = result.State.String()
	if err != nil {
		return fmt.Errorf("%s: %w", job.Spec.Label(), err)
	}
	return nil
}
