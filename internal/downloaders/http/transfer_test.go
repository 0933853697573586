package rangehttp

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/yandl/internal/utils"
)

func testPayload(size int) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	return data
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// rangeServer serves data with byte-range support. hook may take over a GET
// request by returning true.
func rangeServer(t *testing.T, data []byte, hook func(w http.ResponseWriter, r *http.Request, start int64) bool) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		rangeHeader := r.Header.Get("Range")
		start, end := int64(0), int64(len(data)-1)
		if rangeHeader != "" {
			first, last, _ := strings.Cut(strings.TrimPrefix(rangeHeader, "bytes="), "-")
			start, _ = strconv.ParseInt(first, 10, 64)
			if last != "" {
				end, _ = strconv.ParseInt(last, 10, 64)
			}
		}
		if hook != nil && hook(w, r, start) {
			return
		}
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
		end = min(end, int64(len(data)-1))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : end+1])
	}))
	t.Cleanup(server.Close)
	return server
}

func testOptions(workers int, split int64) utils.TransferOptions {
	return utils.TransferOptions{
		Workers:      workers,
		ChunkSize:    256,
		SplitSize:    split,
		Retries:      3,
		RetryBackoff: time.Millisecond,
	}
}

type progressLog struct {
	mu      sync.Mutex
	updates []utils.ProgressUpdate
}

func (p *progressLog) record(u utils.ProgressUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func TestTransferReconstructsFile(t *testing.T) {
	data := testPayload(10_500)
	server := rangeServer(t, data, nil)
	dir := t.TempDir()
	spec := utils.TransferSpec{URL: server.URL, Dir: dir, FileName: "out.bin", Size: int64(len(data)), Checksum: md5Hex(data), ID: "42"}

	progress := &progressLog{}
	const split = 1000
	result, err := Transfer(context.Background(), spec, testOptions(4, split), utils.NewHTTPClient(utils.HTTPClientConfig{}), progress.record)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Len(t, result.Segments, (len(data)+split-1)/split)
	tail := result.Segments[len(result.Segments)-1]
	assert.Equal(t, int64(10_000), tail.Start)
	assert.Equal(t, OpenEnd, tail.End)
	assert.Equal(t, int64(len(data)), result.Written)

	got, err := os.ReadFile(filepath.Join(dir, "out.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NotEmpty(t, progress.updates)
	last := progress.updates[len(progress.updates)-1]
	assert.Equal(t, int64(len(data)), last.Completed)
	assert.Equal(t, "42", last.ID)
	for _, u := range progress.updates {
		assert.GreaterOrEqual(t, u.Completed, int64(0))
		assert.LessOrEqual(t, u.Completed, int64(len(data)))
	}
}

func TestTransferWholeFileMode(t *testing.T) {
	data := testPayload(900)
	var sawRange atomic.Bool
	server := rangeServer(t, data, func(w http.ResponseWriter, r *http.Request, _ int64) bool {
		if r.Header.Get("Range") != "" {
			sawRange.Store(true)
		}
		return false
	})
	dir := t.TempDir()
	spec := utils.TransferSpec{URL: server.URL, Dir: dir, FileName: "small.bin", Size: int64(len(data))}

	result, err := Transfer(context.Background(), spec, testOptions(4, 5*1024*1024), utils.NewHTTPClient(utils.HTTPClientConfig{}), nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Len(t, result.Segments, 1)
	assert.False(t, sawRange.Load())
	got, err := os.ReadFile(spec.Path())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransferRetryRollsBackProgress(t *testing.T) {
	data := testPayload(6000)
	var failures atomic.Int32
	server := rangeServer(t, data, func(w http.ResponseWriter, r *http.Request, start int64) bool {
		if start != 2000 || failures.Load() >= 2 {
			return false
		}
		failures.Add(1)
		w.Header().Set("Content-Length", "2000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[2000:2700])
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	})
	dir := t.TempDir()
	spec := utils.TransferSpec{URL: server.URL, Dir: dir, FileName: "retry.bin", Size: int64(len(data)), Checksum: md5Hex(data)}

	result, err := Transfer(context.Background(), spec, testOptions(2, 2000), utils.NewHTTPClient(utils.HTTPClientConfig{}), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), failures.Load())
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, int64(len(data)), result.Written)
	got, err := os.ReadFile(spec.Path())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetcherNetsSegmentLength(t *testing.T) {
	data := testPayload(3000)
	var failures atomic.Int32
	server := rangeServer(t, data, func(w http.ResponseWriter, r *http.Request, start int64) bool {
		if failures.Add(1) > 3 {
			return false
		}
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : start+400])
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	})
	chunkCh := make(chan WriteChunk, 1)
	progressCh := make(chan ProgressDelta, 1024)
	f := &fetcher{
		client:     utils.NewHTTPClient(utils.HTTPClientConfig{}),
		url:        server.URL,
		opts:       utils.TransferOptions{ChunkSize: 128, Retries: 4, RetryBackoff: time.Millisecond},
		chunkCh:    chunkCh,
		progressCh: progressCh,
	}
	seg := Segment{Index: 1, Start: 1000, End: 1999}
	res := f.fetch(context.Background(), seg)
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Attempts)
	close(progressCh)

	var net int64
	var sawRollback bool
	for d := range progressCh {
		if d < 0 {
			sawRollback = true
		}
		net += int64(d)
	}
	assert.True(t, sawRollback)
	assert.Equal(t, seg.Length(), net)
	chunk := <-chunkCh
	assert.Equal(t, data[1000:2000], chunk.Data)
}

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func TestFetcherRequestHeaders(t *testing.T) {
	data := testPayload(100)
	var sent http.Header
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		sent = req.Header.Clone()
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusPartialContent)
		rec.Write(data[10:20])
		return rec.Result(), nil
	})
	f := &fetcher{
		client:     client,
		url:        "http://files.test/a.bin",
		opts:       utils.TransferOptions{ChunkSize: 64, Retries: 1},
		chunkCh:    make(chan WriteChunk, 1),
		progressCh: make(chan ProgressDelta, 16),
	}
	res := f.fetch(context.Background(), Segment{Index: 0, Start: 10, End: 19})
	require.NoError(t, res.Err)
	assert.Equal(t, "bytes=10-19", sent.Get("Range"))
	assert.Empty(t, sent.Get("Connection"))
}

func TestTransferAbandonedSegmentFailsFast(t *testing.T) {
	data := testPayload(8000)
	server := rangeServer(t, data, func(w http.ResponseWriter, r *http.Request, start int64) bool {
		if start == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return true
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		return false
	})
	dir := t.TempDir()
	spec := utils.TransferSpec{URL: server.URL, Dir: dir, FileName: "broken.bin", Size: int64(len(data))}
	opts := testOptions(4, 2000)
	opts.Retries = 2

	begin := time.Now()
	result, err := Transfer(context.Background(), spec, opts, utils.NewHTTPClient(utils.HTTPClientConfig{}), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(begin), 4*time.Second)
	assert.Equal(t, StateIncomplete, result.State)

	var incomplete *IncompleteTransferError
	require.True(t, errors.As(err, &incomplete))
	require.NotEmpty(t, incomplete.Abandoned)
	assert.Equal(t, 0, incomplete.Abandoned[0].Segment.Index)
	assert.Equal(t, 2, incomplete.Abandoned[0].Attempts)
	assert.Contains(t, incomplete.Abandoned[0].Err.Error(), "500")

	var fetchErr *SegmentFetchError
	assert.True(t, errors.As(err, &fetchErr))
	_, statErr := os.Stat(spec.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestTransferRangeIgnored(t *testing.T) {
	data := testPayload(4000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer server.Close()
	spec := utils.TransferSpec{URL: server.URL, Dir: t.TempDir(), FileName: "plain.bin", Size: int64(len(data))}
	opts := testOptions(2, 1000)
	opts.Retries = 1

	result, err := Transfer(context.Background(), spec, opts, utils.NewHTTPClient(utils.HTTPClientConfig{}), nil)
	assert.ErrorIs(t, err, ErrRangeNotSupported)
	assert.Equal(t, StateIncomplete, result.State)
}

func TestTransferChecksumMismatch(t *testing.T) {
	data := testPayload(5000)
	server := rangeServer(t, data, nil)
	flipped := append([]byte(nil), data...)
	flipped[1234] ^= 0xff
	spec := utils.TransferSpec{URL: server.URL, Dir: t.TempDir(), FileName: "bad.bin", Size: int64(len(data)), Checksum: md5Hex(flipped)}

	result, err := Transfer(context.Background(), spec, testOptions(2, 1000), utils.NewHTTPClient(utils.HTTPClientConfig{}), nil)
	var integrityErr *IntegrityError
	require.True(t, errors.As(err, &integrityErr))
	assert.Equal(t, StateCorrupted, result.State)
	assert.Equal(t, md5Hex(data), integrityErr.Actual)
	_, statErr := os.Stat(spec.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestVerifyChecksumFlippedByte(t *testing.T) {
	data := testPayload(2048)
	path := filepath.Join(t.TempDir(), "file.bin")
	corrupted := append([]byte(nil), data...)
	corrupted[100] ^= 0x01
	require.NoError(t, os.WriteFile(path, corrupted, 0644))

	err := verifyChecksum(path, strings.ToUpper(md5Hex(data)))
	var integrityErr *IntegrityError
	require.True(t, errors.As(err, &integrityErr))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, os.WriteFile(path, data, 0644))
	sum := sha256.Sum256(data)
	assert.NoError(t, verifyChecksum(path, "sha256:"+hex.EncodeToString(sum[:])))
	assert.NoError(t, verifyChecksum(path, md5Hex(data)))
	assert.Error(t, verifyChecksum(path, "crc32:abcd"))
}

func TestTransferProbesSize(t *testing.T) {
	data := testPayload(7000)
	server := rangeServer(t, data, nil)
	spec := utils.TransferSpec{URL: server.URL, Dir: t.TempDir(), FileName: "probe.bin"}

	result, err := Transfer(context.Background(), spec, testOptions(3, 1000), utils.NewHTTPClient(utils.HTTPClientConfig{}), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.Size)
	got, err := os.ReadFile(spec.Path())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetFileInfoFallsBackToRangeProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		w.Header().Set("Content-Range", "bytes 0-0/123456")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer server.Close()

	info, err := getFileInfo(context.Background(), utils.NewHTTPClient(utils.HTTPClientConfig{}), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), info.Size)
	assert.True(t, info.RangeSupported)
	assert.Equal(t, "report.pdf", info.FileName)
}

func TestGetFileInfoUnknownSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		w.Header().Set("Content-Range", "bytes 0-0/*")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	_, err := probeSize(context.Background(), utils.NewHTTPClient(utils.HTTPClientConfig{}), server.URL)
	assert.ErrorIs(t, err, ErrSizeUnknown)
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header            string
		start, end, total int64
	}{
		{"bytes 0-99/1000", 0, 99, 1000},
		{"bytes 100-199/1000", 100, 199, 1000},
		{"bytes 0-99/*", 0, 99, -1},
	}
	for _, tt := range tests {
		start, end, total, err := ParseContentRange(tt.header)
		require.NoError(t, err, tt.header)
		assert.Equal(t, [3]int64{tt.start, tt.end, tt.total}, [3]int64{start, end, total}, tt.header)
	}
	_, _, _, err := ParseContentRange("bytes 5/10")
	assert.Error(t, err)
}

func TestAggregatorClampsDisplayedTotal(t *testing.T) {
	progress := &progressLog{}
	agg := &progressAggregator{id: "x", size: 100, report: progress.record, interval: time.Millisecond}
	ch := make(chan ProgressDelta)
	done := make(chan int64, 1)
	go func() { done <- agg.run(ch) }()
	for _, d := range []ProgressDelta{-20, 60, 80, -80, 40} {
		ch <- d
		time.Sleep(3 * time.Millisecond)
	}
	close(ch)
	assert.Equal(t, int64(80), <-done)
	for _, u := range progress.updates {
		assert.GreaterOrEqual(t, u.Completed, int64(0))
		assert.LessOrEqual(t, u.Completed, int64(100))
		assert.GreaterOrEqual(t, u.Speed, float64(0))
	}
	assert.Equal(t, int64(80), progress.updates[len(progress.updates)-1].Completed)
}

func TestPreallocateSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparse.bin")
	file, err := preallocate(path, 4096)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())

	_, err = preallocate(filepath.Join(t.TempDir(), "missing", "dir", "x.bin"), 10)
	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))
}

func TestWriterGapCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaps.bin")
	file, err := preallocate(path, 30)
	require.NoError(t, err)
	segments, err := PlanSegments(30, 10)
	require.NoError(t, err)

	w := newFileWriter(file, path)
	ch := make(chan WriteChunk, 3)
	ch <- WriteChunk{Segment: segments[0], Data: make([]byte, 10)}
	ch <- WriteChunk{Segment: segments[2], Data: make([]byte, 10)}
	close(ch)
	require.NoError(t, w.run(ch, func() {}))
	assert.Equal(t, []Segment{segments[1]}, w.gaps(segments, 30))
}
