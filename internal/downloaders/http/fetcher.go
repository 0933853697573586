package rangehttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/yandl/internal/utils"
)

// WriteChunk carries the complete payload of one succeeded segment.
type WriteChunk struct {
	Segment Segment
	Data    []byte
}

// ProgressDelta is a signed byte count; negative values roll back a failed attempt.
type ProgressDelta int64

type SegmentResult struct {
	Segment  Segment
	Attempts int
	Err      error // nil when the segment succeeded, a *SegmentFetchError otherwise
}

type fetcher struct {
	client     utils.HTTPDoer
	url        string
	label      string
	opts       utils.TransferOptions
	chunkCh    chan<- WriteChunk
	progressCh chan<- ProgressDelta
}

// fetch runs every attempt for one segment and always returns a terminal
// result. Each failed attempt withdraws the progress it reported before the
// segment restarts from its first byte.
func (f *fetcher) fetch(ctx context.Context, seg Segment) SegmentResult {
	attempts := max(f.opts.Retries, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		data, reported, err := f.attempt(ctx, seg)
		if err == nil {
			select {
			case f.chunkCh <- WriteChunk{Segment: seg, Data: data}:
				return SegmentResult{Segment: seg, Attempts: attempt}
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		lastErr = err
		if reported != 0 {
			f.progressCh <- ProgressDelta(-reported)
		}
		if ctx.Err() != nil {
			attempts = attempt
			break
		}
		log.Warn().Str("op", "http/fetcher").Str("file", f.label).Str("range", seg.String()).
			Int("attempt", attempt).Int("maxAttempts", attempts).Err(err).Msg("Segment attempt failed")
		if attempt < attempts {
			if !sleepCtx(ctx, f.opts.RetryBackoff) {
				lastErr = ctx.Err()
				attempts = attempt
				break
			}
		}
	}
	fetchErr := &SegmentFetchError{Segment: seg, Attempts: attempts, Err: lastErr}
	if ctx.Err() == nil {
		log.Error().Str("op", "http/fetcher").Str("file", f.label).Err(fetchErr).Msg("Segment abandoned")
	}
	return SegmentResult{Segment: seg, Attempts: attempts, Err: fetchErr}
}

func (f *fetcher) attempt(ctx context.Context, seg Segment) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("error creating GET request: %w", err)
	}
	if rangeHeader := seg.RangeHeader(); rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if err := checkSegmentStatus(resp.StatusCode, seg); err != nil {
		return nil, 0, err
	}

	var payload bytes.Buffer
	if n := seg.Length(); n > 0 {
		payload.Grow(int(n))
	}
	buffer := make([]byte, f.opts.ChunkSize)
	var reported int64
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			payload.Write(buffer[:bytesRead])
			reported += int64(bytesRead)
			f.progressCh <- ProgressDelta(bytesRead)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, reported, fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if want := seg.Length(); want > 0 && reported != want {
		return nil, reported, fmt.Errorf("%w: expected %d bytes, got %d", ErrSegmentLength, want, reported)
	}
	return payload.Bytes(), reported, nil
}

func checkSegmentStatus(code int, seg Segment) error {
	switch {
	case code == http.StatusPartialContent:
		return nil
	case code == http.StatusOK && seg.WholeFile():
		return nil
	case code == http.StatusOK:
		return ErrRangeNotSupported
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// sleepCtx reports false when ctx ended before d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
