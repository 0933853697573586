package rangehttp

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// preallocate creates the destination at its final size without writing the
// body so segments can land at any offset.
func preallocate(path string, size int64) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &WriteError{Op: "create", Path: path, Err: err}
	}
	if _, err := file.Seek(size-1, io.SeekStart); err != nil {
		file.Close()
		return nil, &WriteError{Op: "preallocate", Path: path, Err: err}
	}
	if _, err := file.Write([]byte{0}); err != nil {
		file.Close()
		return nil, &WriteError{Op: "preallocate", Path: path, Err: err}
	}
	return file, nil
}

// fileWriter is the only owner of the destination handle.
type fileWriter struct {
	file    *os.File
	path    string
	written map[int]int64 // segment index -> bytes written
	writes  map[int]int
}

func newFileWriter(file *os.File, path string) *fileWriter {
	return &fileWriter{
		file:    file,
		path:    path,
		written: make(map[int]int64),
		writes:  make(map[int]int),
	}
}

// run applies chunks until chunkCh is closed. After the first failed write it
// keeps draining without writing so fetchers never block on a dead consumer.
func (w *fileWriter) run(chunkCh <-chan WriteChunk, abort func()) error {
	var writeErr error
	for chunk := range chunkCh {
		if writeErr != nil {
			continue
		}
		n, err := w.file.WriteAt(chunk.Data, chunk.Segment.Start)
		w.written[chunk.Segment.Index] += int64(n)
		w.writes[chunk.Segment.Index]++
		if err != nil {
			writeErr = &WriteError{Op: "write", Path: w.path, Err: err}
			log.Error().Str("op", "http/writer").Str("range", chunk.Segment.String()).Err(err).Msg("Write failed, aborting transfer")
			abort()
		}
	}
	if err := w.file.Sync(); err != nil && writeErr == nil {
		writeErr = &WriteError{Op: "sync", Path: w.path, Err: err}
	}
	if err := w.file.Close(); err != nil && writeErr == nil {
		writeErr = &WriteError{Op: "close", Path: w.path, Err: err}
	}
	return writeErr
}

// gaps returns planned segments that were not written exactly once at their
// full length. An open-ended segment only needs a non-empty write, and must
// reach the file size when it started at offset zero.
func (w *fileWriter) gaps(segments []Segment, size int64) []Segment {
	var missing []Segment
	for _, seg := range segments {
		got := w.written[seg.Index]
		switch {
		case w.writes[seg.Index] != 1:
			missing = append(missing, seg)
		case seg.End == OpenEnd && got < size-seg.Start:
			missing = append(missing, seg)
		case seg.End != OpenEnd && got != seg.Length():
			missing = append(missing, seg)
		}
	}
	return missing
}

// verifyChecksum hashes the written file and removes it on mismatch.
// Expected values are hex, optionally prefixed with md5:, sha1: or sha256:.
func verifyChecksum(path, expected string) error {
	algo, want := splitChecksum(expected)
	var h hash.Hash
	switch algo {
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	case "sha256":
		h = sha256.New()
	default:
		return fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening file for verification: %w", err)
	}
	_, err = io.Copy(h, file)
	file.Close()
	if err != nil {
		return fmt.Errorf("error hashing file: %w", err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, want) {
		os.Remove(path)
		return &IntegrityError{Path: path, Expected: want, Actual: actual}
	}
	log.Debug().Str("op", "http/writer").Str("algo", algo).Str("path", path).Msg("Checksum verified")
	return nil
}

func splitChecksum(value string) (string, string) {
	value = strings.TrimSpace(value)
	if algo, digest, found := strings.Cut(value, ":"); found {
		return strings.ToLower(algo), digest
	}
	return "md5", value
}
