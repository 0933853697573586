package rangehttp

import "fmt"

// OpenEnd marks a segment that reads until the server closes the response.
const OpenEnd int64 = -1

type Segment struct {
	Index int
	Start int64
	End   int64 // inclusive, or OpenEnd
}

func (s Segment) WholeFile() bool {
	return s.Start == 0 && s.End == OpenEnd
}

// Length is the byte count of a bounded segment, -1 when open-ended.
func (s Segment) Length() int64 {
	if s.End == OpenEnd {
		return -1
	}
	return s.End - s.Start + 1
}

// RangeHeader is empty for the whole-file segment so no Range is sent.
func (s Segment) RangeHeader() string {
	switch {
	case s.WholeFile():
		return ""
	case s.End == OpenEnd:
		return fmt.Sprintf("bytes=%d-", s.Start)
	default:
		return fmt.Sprintf("bytes=%d-%d", s.Start, s.End)
	}
}

func (s Segment) String() string {
	if s.End == OpenEnd {
		return fmt.Sprintf("%d-", s.Start)
	}
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// PlanSegments splits [0, totalSize) into splitSize ranges. Files that would
// yield fewer than two whole segments are fetched in one piece. The segment
// holding the last byte is always open-ended so an off-by-one size report
// from the server does not truncate the file.
func PlanSegments(totalSize, splitSize int64) ([]Segment, error) {
	if totalSize <= 0 || splitSize <= 0 {
		return nil, &PlanError{TotalSize: totalSize, SplitSize: splitSize}
	}
	if totalSize/splitSize < 2 {
		return []Segment{{Index: 0, Start: 0, End: OpenEnd}}, nil
	}
	segments := make([]Segment, 0, totalSize/splitSize+1)
	for start := int64(0); start < totalSize; start += splitSize {
		end := start + splitSize - 1
		if end >= totalSize-1 {
			end = OpenEnd
		}
		segments = append(segments, Segment{Index: len(segments), Start: start, End: end})
		if end == OpenEnd {
			break
		}
	}
	return segments, nil
}
