package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	rangehttp "github.com/tanq16/yandl/internal/downloaders/http"
	"github.com/tanq16/yandl/internal/downloaders/yande"
	"github.com/tanq16/yandl/internal/output"
	"github.com/tanq16/yandl/internal/utils"
)

// ErrJobsFailed is returned when at least one job did not complete.
var ErrJobsFailed = errors.New("one or more jobs failed")

var downloaderRegistry = map[string]utils.Downloader{
	"http":  &rangehttp.HTTPDownloader{},
	"yande": &yande.PostDownloader{},
}

type Options struct {
	// OnFinish is called once per job with its terminal error, from the
	// worker that ran it.
	OnFinish func(job *utils.Job, err error)
	Output   *output.Manager
	Registry map[string]utils.Downloader
}

// Run executes jobs with numWorkers concurrent transfers.
func Run(ctx context.Context, jobs []utils.Job, numWorkers int, opts Options) error {
	jobCh := make(chan utils.Job, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	return RunStream(ctx, jobCh, numWorkers, opts)
}

// RunStream executes jobs as they arrive until jobCh is closed.
func RunStream(ctx context.Context, jobCh <-chan utils.Job, numWorkers int, opts Options) error {
	outputMgr := opts.Output
	if outputMgr == nil {
		outputMgr = output.NewManager()
	}
	registry := opts.Registry
	if registry == nil {
		registry = downloaderRegistry
	}
	outputMgr.StartDisplay()

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0
	for range max(numWorkers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				err := processJob(ctx, &job, registry, outputMgr)
				if err != nil && !errors.Is(err, rangehttp.ErrFileExists) {
					mu.Lock()
					failed++
					mu.Unlock()
				}
				if opts.OnFinish != nil {
					opts.OnFinish(&job, err)
				}
			}
		}()
	}
	wg.Wait()
	outputMgr.StopDisplay()
	if failed > 0 {
		return fmt.Errorf("%w: %d", ErrJobsFailed, failed)
	}
	return nil
}

func processJob(ctx context.Context, job *utils.Job, registry map[string]utils.Downloader, outputMgr *output.Manager) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	label := job.Spec.Label()
	if job.Spec.FileName == "" {
		label = job.URL
	}
	funcID := outputMgr.Register(label)
	logger := log.With().Str("op", "scheduler/processJob").Str("job", job.ID).Str("type", job.JobType).Logger()

	downloader, exists := registry[job.JobType]
	if !exists {
		err := fmt.Errorf("unknown job type: %s", job.JobType)
		outputMgr.ReportError(funcID, err)
		return err
	}

	outputMgr.SetMessage(funcID, fmt.Sprintf("Validating %s job", job.JobType))
	if err := downloader.ValidateJob(job); err != nil {
		outputMgr.ReportError(funcID, fmt.Errorf("validation failed: %w", err))
		logger.Error().Err(err).Msg("Validation failed")
		return err
	}

	outputMgr.SetMessage(funcID, fmt.Sprintf("Building %s job", job.JobType))
	if err := downloader.BuildJob(ctx, job); err != nil {
		if errors.Is(err, rangehttp.ErrFileExists) {
			outputMgr.Skip(funcID, fmt.Sprintf("Skipped %s (already exists)", job.Spec.Label()))
			logger.Info().Str("path", job.Spec.Path()).Msg("File already exists")
			job.State = "skipped"
			return err
		}
		outputMgr.ReportError(funcID, fmt.Errorf("build failed: %w", err))
		logger.Error().Err(err).Msg("Build failed")
		return err
	}

	outputMgr.SetLabel(funcID, job.Spec.Label())
	outputMgr.SetMessage(funcID, fmt.Sprintf("Downloading %s", job.Spec.Label()))
	job.ProgressFunc = func(update utils.ProgressUpdate) {
		outputMgr.UpdateProgress(funcID, update)
	}
	if err := downloader.Download(ctx, job); err != nil {
		outputMgr.ReportError(funcID, fmt.Errorf("download failed: %w", err))
		logger.Error().Err(err).Msg("Download failed")
		return err
	}
	outputMgr.Complete(funcID, fmt.Sprintf("Completed %s", job.Spec.Label()))
	logger.Debug().Str("path", job.OutputPath).Msg("Job completed")
	return nil
}
