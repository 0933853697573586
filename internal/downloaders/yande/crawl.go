package yande

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/yandl/internal/utils"
)

const DefaultMaxPages = 100

// Item is one post selected for download.
type Item struct {
	Post Post
	Spec utils.TransferSpec
}

type CrawlStats struct {
	Pages   int
	Emitted int
	Skipped int
	Stopped bool // the stop identifier was reached
}

type Crawler struct {
	Client   *Client
	Search   SearchTags
	MaxPages int
	// Known reports identifiers recorded elsewhere, such as the metadata store.
	Known func(ctx context.Context, id int64) bool
}

// Crawl walks pages [start, end) and emits every post that is not already on
// disk. It ends on an empty page, on the first post at or below StopID, or
// when emit returns false.
func (c *Crawler) Crawl(ctx context.Context, cfg RunConfig, emit func(Item) bool) (CrawlStats, error) {
	var stats CrawlStats
	start, end := c.pageRange(cfg)
	saveDir := cfg.SaveDir
	if saveDir == "" {
		saveDir = filepath.Join(".", utils.SanitizeFileName(cfg.Tags))
	}
	if err := os.MkdirAll(saveDir, 0755); err != nil {
		return stats, fmt.Errorf("error creating save directory: %w", err)
	}
	existing, err := ScanIDs(saveDir)
	if err != nil {
		return stats, err
	}
	query := c.Search.Query(cfg.Tags)
	logger := log.With().Str("op", "yande/crawl").Str("tags", query).Str("dir", saveDir).Logger()
	logger.Debug().Int("start", start).Int("end", end).Int64("stopID", cfg.StopID).Msg("Crawl started")

	for page := start; page < end; page++ {
		posts, err := c.Client.Posts(ctx, page, query)
		if err != nil {
			return stats, err
		}
		stats.Pages++
		if len(posts) == 0 {
			logger.Info().Int("page", page).Msg("No more posts")
			break
		}
		for _, post := range posts {
			if post.ID <= cfg.StopID {
				logger.Info().Int64("id", post.ID).Msg("Reached stop identifier")
				stats.Stopped = true
				return stats, nil
			}
			spec := post.TransferSpec(saveDir)
			if c.skip(ctx, post, spec, existing) {
				stats.Skipped++
				continue
			}
			existing[post.ID] = append(existing[post.ID], spec.FileName)
			stats.Emitted++
			if !emit(Item{Post: post, Spec: spec}) {
				return stats, ctx.Err()
			}
		}
	}
	return stats, nil
}

func (c *Crawler) skip(ctx context.Context, post Post, spec utils.TransferSpec, existing map[int64][]string) bool {
	if post.FileURL == "" || spec.FileName == "" {
		return true
	}
	if len(existing[post.ID]) > 0 {
		return true
	}
	if _, err := os.Stat(spec.Path()); err == nil {
		return true
	}
	return c.Known != nil && c.Known(ctx, post.ID)
}

func (c *Crawler) pageRange(cfg RunConfig) (int, int) {
	start := max(1, cfg.StartPage)
	end := cfg.EndPage
	if end <= 0 {
		end = c.MaxPages
		if end <= 0 {
			end = DefaultMaxPages
		}
	}
	if start > end {
		start, end = end, start
	}
	return start, end
}

// UpdateTags crawls every tag into baseDir/<tag>, stopping each at its
// recorded identifier.
func (c *Crawler) UpdateTags(ctx context.Context, entries []TagEntry, baseDir string, cfg RunConfig, emit func(Item) bool) (CrawlStats, error) {
	var total CrawlStats
	for _, entry := range entries {
		cfg.Tags = entry.Tag
		cfg.StopID = entry.StopID
		cfg.SaveDir = filepath.Join(baseDir, utils.SanitizeFileName(entry.Tag))
		stats, err := c.Crawl(ctx, cfg, emit)
		total.Pages += stats.Pages
		total.Emitted += stats.Emitted
		total.Skipped += stats.Skipped
		if err != nil {
			return total, fmt.Errorf("tag %s: %w", entry.Tag, err)
		}
	}
	return total, nil
}
