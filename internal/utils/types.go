package utils

import (
	"context"
	"path/filepath"
	"time"
)

type Downloader interface {
	ValidateJob(job *Job) error
	BuildJob(ctx context.Context, job *Job) error
	Download(ctx context.Context, job *Job) error
}

type Job struct {
	ID               string
	JobType          string
	URL              string
	OutputPath       string
	Spec             TransferSpec
	Transfer         TransferOptions
	HTTPClientConfig HTTPClientConfig
	ProgressFunc     func(update ProgressUpdate)
	State            string
	Metadata         map[string]any
}

// TransferSpec describes one file to fetch. It is copied by value into the
// transfer engine and never mutated after the transfer starts.
type TransferSpec struct {
	URL      string
	Dir      string
	FileName string
	Size     int64  // 0 means the size is probed before planning
	Checksum string // optional; bare hex is md5, or "sha1:"/"sha256:" prefixed
	ID       string // optional label
}

func (s TransferSpec) Path() string {
	return filepath.Join(s.Dir, s.FileName)
}

func (s TransferSpec) Label() string {
	name := s.FileName
	if len(name) > 24 {
		name = name[:10] + "..." + name[len(name)-10:]
	}
	if s.ID == "" {
		return name
	}
	return "[" + s.ID + "] " + name
}

type TransferOptions struct {
	Workers      int
	ChunkSize    int
	SplitSize    int64
	Retries      int // total attempts per segment
	RetryBackoff time.Duration
}

type ProgressUpdate struct {
	ID        string
	Label     string
	Completed int64
	Total     int64
	Speed     float64 // bytes per second since the previous update
	Elapsed   time.Duration
	Remaining time.Duration // zero when unknown
}

type DownloadEntry struct {
	OutputPath string `yaml:"op"`
	URL        string `yaml:"link"`
	Size       int64  `yaml:"size,omitempty"`
	Checksum   string `yaml:"checksum,omitempty"`
	ID         string `yaml:"id,omitempty"`
}
