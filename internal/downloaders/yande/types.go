package yande

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tanq16/yandl/internal/utils"
)

const DefaultBaseURL = "https://yande.re"

type Post struct {
	ID          int64  `json:"id"`
	Tags        string `json:"tags"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	CreatorID   *int64 `json:"creator_id"`
	Author      string `json:"author"`
	Source      string `json:"source"`
	Score       int    `json:"score"`
	MD5         string `json:"md5"`
	FileSize    int64  `json:"file_size"`
	FileExt     string `json:"file_ext"`
	FileURL     string `json:"file_url"`
	Rating      string `json:"rating"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ParentID    *int64 `json:"parent_id"`
	HasChildren bool   `json:"has_children"`
	Status      string `json:"status"`
}

func (p Post) Created() time.Time {
	return time.Unix(p.CreatedAt, 0)
}

// FileName is the unescaped last element of the file URL, made safe for the
// local filesystem.
func (p Post) FileName() string {
	return utils.SanitizeFileName(utils.FileNameFromURL(p.FileURL))
}

func (p Post) TransferSpec(dir string) utils.TransferSpec {
	return utils.TransferSpec{
		URL:      p.FileURL,
		Dir:      dir,
		FileName: p.FileName(),
		Size:     p.FileSize,
		Checksum: p.MD5,
		ID:       strconv.FormatInt(p.ID, 10),
	}
}

type Rating string

const (
	RatingSafe         Rating = "safe"
	RatingQuestionable Rating = "questionable"
	RatingExplicit     Rating = "explicit"
)

// Code is the single letter the post API uses in rating: queries.
func (r Rating) Code() string {
	switch r {
	case RatingSafe:
		return "s"
	case RatingQuestionable:
		return "q"
	case RatingExplicit:
		return "e"
	}
	return ""
}

func ParseRating(value string) (Rating, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "any":
		return "", nil
	case "s", "safe":
		return RatingSafe, nil
	case "q", "questionable":
		return RatingQuestionable, nil
	case "e", "explicit":
		return RatingExplicit, nil
	}
	return "", fmt.Errorf("unknown rating %q", value)
}

// SearchTags are filters appended to the free-form tag query.
type SearchTags struct {
	MinWidth int
	Rating   Rating
}

func (s SearchTags) Query(tags string) string {
	parts := strings.Fields(tags)
	if s.MinWidth > 0 {
		parts = append(parts, fmt.Sprintf("width:>=%d", s.MinWidth))
	}
	if code := s.Rating.Code(); code != "" {
		parts = append(parts, "rating:"+code)
	}
	return strings.Join(parts, " ")
}

type RunConfig struct {
	SaveDir   string // defaults to ./<tags>
	StartPage int
	EndPage   int // exclusive; 0 uses the crawler's page limit
	StopID    int64
	Tags      string
}

type TagEntry struct {
	Tag    string `yaml:"tag"`
	StopID int64  `yaml:"stop_id"`
}
