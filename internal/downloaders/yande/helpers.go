package yande

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var postPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?yande\.re/post/show/(\d+)`),
	regexp.MustCompile(`^yande\.re/post/show/(\d+)`),
	regexp.MustCompile(`^(\d+)$`),
}

func parsePostID(value string) (int64, error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), "/")
	for _, pattern := range postPatterns {
		if matches := pattern.FindStringSubmatch(value); len(matches) == 2 {
			return strconv.ParseInt(matches[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("invalid post reference: %s", value)
}

// ReadTagList loads a YAML list of {tag, stop_id} entries.
func ReadTagList(path string) ([]TagEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading tag list: %w", err)
	}
	var entries []TagEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing tag list: %w", err)
	}
	for i, entry := range entries {
		if strings.TrimSpace(entry.Tag) == "" {
			return nil, fmt.Errorf("missing tag for entry %d", i+1)
		}
	}
	return entries, nil
}
