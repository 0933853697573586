package rangehttp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSizeUnknown       = errors.New("server did not report a usable file size")
	ErrRangeNotSupported = errors.New("server ignored the range request")
	ErrSegmentLength     = errors.New("segment body length does not match its range")
	ErrFileExists        = errors.New("file already exists with same size")
)

// PlanError rejects sizes that cannot be planned. No transfer is attempted.
type PlanError struct {
	TotalSize int64
	SplitSize int64
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("cannot plan segments for total size %d with split size %d", e.TotalSize, e.SplitSize)
}

type SegmentFetchError struct {
	Segment  Segment
	Attempts int
	Err      error
}

func (e *SegmentFetchError) Error() string {
	return fmt.Sprintf("segment %d (%s) abandoned after %d attempt(s): %v", e.Segment.Index, e.Segment, e.Attempts, e.Err)
}

func (e *SegmentFetchError) Unwrap() error { return e.Err }

type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// IncompleteTransferError reports segments that never produced their bytes,
// either abandoned after retries or missing from the written file.
type IncompleteTransferError struct {
	Path      string
	Abandoned []*SegmentFetchError
	Missing   []Segment
}

func (e *IncompleteTransferError) Error() string {
	var parts []string
	if len(e.Abandoned) > 0 {
		parts = append(parts, fmt.Sprintf("%d segment(s) abandoned, first: %v", len(e.Abandoned), e.Abandoned[0]))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("%d segment(s) not fully written", len(e.Missing)))
	}
	return fmt.Sprintf("incomplete transfer %s: %s", e.Path, strings.Join(parts, "; "))
}

func (e *IncompleteTransferError) Unwrap() error {
	if len(e.Abandoned) == 0 {
		return nil
	}
	return e.Abandoned[0]
}
