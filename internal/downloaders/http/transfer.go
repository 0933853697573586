package rangehttp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/yandl/internal/utils"
)

type Result struct {
	State    TransferState
	Path     string
	Size     int64
	Segments []Segment
	Written  int64 // net progress total
	Elapsed  time.Duration
	Err      error
}

// Transfer fetches spec into spec.Path() with opts.Workers parallel range
// requests. The returned error is one of the package's typed errors; the
// destination is removed whenever the final state is not Completed.
func Transfer(ctx context.Context, spec utils.TransferSpec, opts utils.TransferOptions, client utils.HTTPDoer, progress func(utils.ProgressUpdate)) (*Result, error) {
	opts = normalizeOptions(opts)
	start := time.Now()
	result := &Result{State: StatePlanned, Path: spec.Path(), Size: spec.Size}
	finish := func(state TransferState, err error) (*Result, error) {
		result.State, result.Err, result.Elapsed = state, err, time.Since(start)
		return result, err
	}

	if spec.Size <= 0 {
		size, err := probeSize(ctx, client, spec.URL)
		if err != nil {
			return finish(StateFailed, err)
		}
		spec.Size = size
		result.Size = size
	}
	segments, err := PlanSegments(spec.Size, opts.SplitSize)
	if err != nil {
		return finish(StateFailed, err)
	}
	result.Segments = segments
	log.Debug().Str("op", "http/transfer").Str("file", spec.Label()).Int64("size", spec.Size).
		Int("segments", len(segments)).Int("workers", opts.Workers).Msg("Transfer planned")

	file, err := preallocate(result.Path, spec.Size)
	if err != nil {
		return finish(StateFailed, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	result.State = StateFetching

	chunkCh := make(chan WriteChunk, opts.Workers)
	progressCh := make(chan ProgressDelta, 256)
	writer := newFileWriter(file, result.Path)
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.run(chunkCh, cancel) }()
	aggregator := &progressAggregator{id: spec.ID, label: spec.Label(), size: spec.Size, report: progress}
	totalDone := make(chan int64, 1)
	go func() { totalDone <- aggregator.run(progressCh) }()

	f := &fetcher{
		client:     client,
		url:        spec.URL,
		label:      spec.Label(),
		opts:       opts,
		chunkCh:    chunkCh,
		progressCh: progressCh,
	}
	segmentCh := make(chan Segment, len(segments))
	for _, seg := range segments {
		segmentCh <- seg
	}
	close(segmentCh)
	resultCh := make(chan SegmentResult, len(segments))
	var wg sync.WaitGroup
	for range min(opts.Workers, len(segments)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range segmentCh {
				res := f.fetch(ctx, seg)
				if res.Err != nil {
					cancel()
				}
				resultCh <- res
			}
		}()
	}
	wg.Wait()
	close(resultCh)
	close(chunkCh)
	close(progressCh)
	writeErr := <-writerDone
	result.Written = <-totalDone
	result.State = StateResolved

	var abandoned []*SegmentFetchError
	for res := range resultCh {
		var fetchErr *SegmentFetchError
		if errors.As(res.Err, &fetchErr) {
			abandoned = append(abandoned, fetchErr)
		}
	}

	switch {
	case writeErr != nil:
		os.Remove(result.Path)
		return finish(StateFailed, writeErr)
	case len(abandoned) > 0:
		os.Remove(result.Path)
		return finish(StateIncomplete, &IncompleteTransferError{Path: result.Path, Abandoned: rootCauseFirst(abandoned)})
	}
	if missing := writer.gaps(segments, spec.Size); len(missing) > 0 {
		os.Remove(result.Path)
		return finish(StateIncomplete, &IncompleteTransferError{Path: result.Path, Missing: missing})
	}
	if spec.Checksum != "" {
		if err := verifyChecksum(result.Path, spec.Checksum); err != nil {
			var integrityErr *IntegrityError
			if errors.As(err, &integrityErr) {
				return finish(StateCorrupted, err)
			}
			os.Remove(result.Path)
			return finish(StateFailed, err)
		}
	}
	log.Debug().Str("op", "http/transfer").Str("file", spec.Label()).Dur("elapsed", time.Since(start)).Msg("Transfer completed")
	return finish(StateCompleted, nil)
}

// rootCauseFirst moves failures caused by our own cancellation behind the
// segment that triggered it.
func rootCauseFirst(abandoned []*SegmentFetchError) []*SegmentFetchError {
	ordered := make([]*SegmentFetchError, 0, len(abandoned))
	var cancelled []*SegmentFetchError
	for _, fe := range abandoned {
		if errors.Is(fe.Err, context.Canceled) {
			cancelled = append(cancelled, fe)
			continue
		}
		ordered = append(ordered, fe)
	}
	return append(ordered, cancelled...)
}

func normalizeOptions(opts utils.TransferOptions) utils.TransferOptions {
	def := utils.DefaultTransferOptions
	if opts == (utils.TransferOptions{}) {
		return def
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.SplitSize <= 0 {
		opts.SplitSize = def.SplitSize
	}
	if opts.Retries <= 0 {
		opts.Retries = def.Retries
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	return opts
}

func (r *Result) String() string {
	return fmt.Sprintf("%s %s (%d segments, %s)", r.State, r.Path, len(r.Segments), utils.FormatBytes(uint64(max(r.Written, 0))))
}
