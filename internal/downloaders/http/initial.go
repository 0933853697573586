package rangehttp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/yandl/internal/utils"
)

type HTTPDownloader struct{}

func (d *HTTPDownloader) ValidateJob(job *utils.Job) error {
	if job.Spec.URL == "" {
		job.Spec.URL = job.URL
	}
	parsedURL, err := url.Parse(job.Spec.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	if job.OutputPath != "" {
		job.Spec.Dir = filepath.Dir(job.OutputPath)
		job.Spec.FileName = filepath.Base(job.OutputPath)
	}
	job.Spec.FileName = utils.SanitizeFileName(job.Spec.FileName)
	return nil
}

func (d *HTTPDownloader) BuildJob(ctx context.Context, job *utils.Job) error {
	job.HTTPClientConfig.HighThreadMode = job.Transfer.Workers > 5
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	rangeSupported := true
	if job.Spec.Size <= 0 || job.Spec.FileName == "" {
		client := utils.NewHTTPClient(job.HTTPClientConfig)
		info, err := getFileInfo(ctx, client, job.Spec.URL)
		if err != nil {
			return fmt.Errorf("error getting file info: %w", err)
		}
		if job.Spec.Size <= 0 {
			job.Spec.Size = info.Size
			rangeSupported = info.RangeSupported
		}
		if job.Spec.FileName == "" {
			job.Spec.FileName = info.FileName
		}
	}
	if job.Spec.FileName == "" {
		job.Spec.FileName = utils.SanitizeFileName(utils.FileNameFromURL(job.Spec.URL))
	}
	if job.Spec.FileName == "" {
		job.Spec.FileName = "download"
	}
	if job.Spec.Dir == "" {
		job.Spec.Dir = "."
	}

	outputPath := job.Spec.Path()
	if existing, err := os.Stat(outputPath); err == nil {
		if existing.Size() == job.Spec.Size && job.Spec.Checksum == "" {
			job.OutputPath = outputPath
			return ErrFileExists
		}
		outputPath = utils.RenewOutputPath(outputPath)
		job.Spec.FileName = filepath.Base(outputPath)
	}
	job.OutputPath = outputPath
	job.Metadata["fileSize"] = job.Spec.Size
	job.Metadata["rangeSupported"] = rangeSupported
	log.Debug().Str("op", "http/initial").Str("path", outputPath).Int64("size", job.Spec.Size).
		Bool("rangeSupported", rangeSupported).Msg("Job built")
	return nil
}
