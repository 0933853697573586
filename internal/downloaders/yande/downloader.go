package yande

import (
	"context"
	"fmt"

	rangehttp "github.com/tanq16/yandl/internal/downloaders/http"
	"github.com/tanq16/yandl/internal/utils"
)

// PostDownloader fetches a single post given its identifier or page URL.
// It resolves the post through the API and hands the file to the range
// downloader. Jobs may carry "baseURL" in Metadata to target another host.
type PostDownloader struct {
	files rangehttp.HTTPDownloader
}

func (d *PostDownloader) ValidateJob(job *utils.Job) error {
	id, err := parsePostID(job.URL)
	if err != nil {
		return err
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	job.Metadata["postID"] = id
	return nil
}

func (d *PostDownloader) BuildJob(ctx context.Context, job *utils.Job) error {
	id := job.Metadata["postID"].(int64)
	baseURL, _ := job.Metadata["baseURL"].(string)
	client := NewClient(ClientConfig{BaseURL: baseURL, Retry: job.Transfer.Retries}, utils.NewHTTPClient(job.HTTPClientConfig))
	post, err := client.Post(ctx, id)
	if err != nil {
		return fmt.Errorf("error fetching post info: %w", err)
	}
	if post.FileURL == "" {
		return fmt.Errorf("post %d has no downloadable file", id)
	}
	dir := job.Spec.Dir
	if dir == "" {
		dir = "."
	}
	job.Spec = post.TransferSpec(dir)
	job.URL = post.FileURL
	job.Metadata["post"] = post
	if err := d.files.ValidateJob(job); err != nil {
		return err
	}
	return d.files.BuildJob(ctx, job)
}

func (d *PostDownloader) Download(ctx context.Context, job *utils.Job) error {
	return d.files.Download(ctx, job)
}
