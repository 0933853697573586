package rangehttp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSegmentsScenarios(t *testing.T) {
	segments, err := PlanSegments(12_000_000, 5_242_880)
	require.NoError(t, err)
	assert.Equal(t, []Segment{
		{Index: 0, Start: 0, End: 5242879},
		{Index: 1, Start: 5242880, End: 10485759},
		{Index: 2, Start: 10485760, End: OpenEnd},
	}, segments)

	segments, err = PlanSegments(1_000, 5_242_880)
	require.NoError(t, err)
	assert.Equal(t, []Segment{{Index: 0, Start: 0, End: OpenEnd}}, segments)
	assert.True(t, segments[0].WholeFile())
	assert.Equal(t, "", segments[0].RangeHeader())
}

func TestPlanSegmentsPartition(t *testing.T) {
	splits := []int64{1, 2, 3, 7, 100, 1024}
	for _, split := range splits {
		for total := int64(1); total <= 5000; total += 37 {
			segments, err := PlanSegments(total, split)
			require.NoError(t, err)
			require.NotEmpty(t, segments)

			if total < 2*split {
				require.Len(t, segments, 1, "total=%d split=%d", total, split)
			}
			var next int64
			for i, seg := range segments {
				assert.Equal(t, i, seg.Index)
				assert.Equal(t, next, seg.Start, "total=%d split=%d", total, split)
				last := i == len(segments)-1
				if last {
					assert.Equal(t, OpenEnd, seg.End)
					assert.Less(t, seg.Start, total)
					next = total
					continue
				}
				require.NotEqual(t, OpenEnd, seg.End)
				assert.GreaterOrEqual(t, seg.End, seg.Start)
				next = seg.End + 1
			}
			assert.Equal(t, total, next)
		}
	}
}

func TestPlanSegmentsExactMultiple(t *testing.T) {
	segments, err := PlanSegments(3000, 1000)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, Segment{Index: 2, Start: 2000, End: OpenEnd}, segments[2])
	assert.Equal(t, "bytes=2000-", segments[2].RangeHeader())
	assert.Equal(t, "bytes=0-999", segments[0].RangeHeader())
	assert.Equal(t, int64(1000), segments[0].Length())
	assert.Equal(t, int64(-1), segments[2].Length())
}

func TestPlanSegmentsInvalid(t *testing.T) {
	for _, tc := range [][2]int64{{0, 10}, {-5, 10}, {10, 0}} {
		_, err := PlanSegments(tc[0], tc[1])
		var planErr *PlanError
		require.True(t, errors.As(err, &planErr), "%v", tc)
		assert.Equal(t, tc[0], planErr.TotalSize)
	}
}

func TestTransferStateTerminal(t *testing.T) {
	assert.False(t, StateFetching.Terminal())
	assert.False(t, StateResolved.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateIncomplete.Terminal())
	assert.Equal(t, "corrupted", StateCorrupted.String())
}
