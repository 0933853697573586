package yande

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var postIDPattern = regexp.MustCompile(`yande\.re (\d+)`)

// ScanIDs maps post identifiers found in the file names of dir to those
// names, sorted. A missing directory holds no identifiers.
func ScanIDs(dir string) (map[int64][]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[int64][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", dir, err)
	}
	ids := make(map[int64][]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := postIDPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		ids[id] = append(ids[id], entry.Name())
	}
	for id := range ids {
		sort.Strings(ids[id])
	}
	return ids, nil
}

// Duplicates returns the identifiers that appear in more than one file name.
func Duplicates(dir string) (map[int64][]string, error) {
	ids, err := ScanIDs(dir)
	if err != nil {
		return nil, err
	}
	for id, names := range ids {
		if len(names) < 2 {
			delete(ids, id)
		}
	}
	return ids, nil
}

// RemoveDuplicates keeps the first name of every duplicate group and deletes
// the rest, returning the removed paths.
func RemoveDuplicates(dir string, dups map[int64][]string) ([]string, error) {
	var removed []string
	for _, id := range SortedIDs(dups) {
		for _, name := range dups[id][1:] {
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("error removing %s: %w", path, err)
			}
			removed = append(removed, path)
		}
	}
	return removed, nil
}

func SortedIDs(ids map[int64][]string) []int64 {
	keys := make([]int64, 0, len(ids))
	for id := range ids {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
