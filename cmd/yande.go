package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/yandl/internal/downloaders/yande"
	"github.com/tanq16/yandl/internal/output"
	"github.com/tanq16/yandl/internal/scheduler"
	"github.com/tanq16/yandl/internal/utils"
)

type searchFlags struct {
	rating   string
	minWidth int
	start    int
	end      int
	dir      string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.rating, "rating", "", "Restrict to a rating (safe, questionable, explicit)")
	cmd.Flags().IntVar(&f.minWidth, "min-width", 0, "Minimum image width in pixels")
	cmd.Flags().IntVar(&f.start, "start", 1, "First page to fetch")
	cmd.Flags().IntVar(&f.end, "end", 0, "Page to stop before (defaults to catalog.max_pages)")
}

func newPostCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "post [ID|URL]",
		Short: "Download a single yande.re post by identifier or post page URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(true)
			opts, err := transferOptions()
			if err != nil {
				return err
			}
			recorder, err := openRecorder()
			if err != nil {
				return err
			}
			if recorder != nil {
				defer recorder.Store.Close()
			}
			job := newJob("yande", args[0], opts)
			job.Spec.Dir = dir
			job.Metadata["baseURL"] = appConfig.Catalog.BaseURL
			return runJobs(cmd.Context(), []utils.Job{job}, recorder)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to save the file in")
	return cmd
}

func newPostsCmd() *cobra.Command {
	var flags searchFlags
	var stopID int64
	cmd := &cobra.Command{
		Use:   "posts [TAGS]",
		Short: "Crawl the post listing for a tag query and download every new post",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags := ""
			if len(args) == 1 {
				tags = args[0]
			}
			cfg := yande.RunConfig{SaveDir: flags.dir, StartPage: flags.start, EndPage: flags.end, StopID: stopID, Tags: tags}
			return runCrawl(cmd.Context(), flags, func(ctx context.Context, c *yande.Crawler, emit func(yande.Item) bool) (yande.CrawlStats, error) {
				return c.Crawl(ctx, cfg, emit)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.dir, "dir", "d", "", "Directory to save posts in (defaults to ./<tags>)")
	cmd.Flags().Int64Var(&stopID, "stop-id", 0, "Stop at the first post with this identifier or lower")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "update [TAG_LIST_YAML]",
		Short: "Crawl every tag of a YAML list (tag, stop_id) into its own directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := yande.ReadTagList(args[0])
			if err != nil {
				return err
			}
			cfg := yande.RunConfig{StartPage: flags.start, EndPage: flags.end}
			return runCrawl(cmd.Context(), flags, func(ctx context.Context, c *yande.Crawler, emit func(yande.Item) bool) (yande.CrawlStats, error) {
				return c.UpdateTags(ctx, entries, flags.dir, cfg, emit)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.dir, "dir", "d", ".", "Base directory holding one folder per tag")
	return cmd
}

type crawlFunc func(ctx context.Context, c *yande.Crawler, emit func(yande.Item) bool) (yande.CrawlStats, error)

// runCrawl feeds crawled posts into the scheduler while the crawl is still
// paging, so downloads start with the first page.
func runCrawl(ctx context.Context, flags searchFlags, crawl crawlFunc) error {
	setupLogging(true)
	opts, err := transferOptions()
	if err != nil {
		return err
	}
	rating, err := yande.ParseRating(flags.rating)
	if err != nil {
		return err
	}
	httpCfg := appConfig.HTTPClientConfig()
	client := yande.NewClient(yande.ClientConfig{
		BaseURL: appConfig.Catalog.BaseURL,
		Retry:   appConfig.Catalog.Retry,
		Rate:    appConfig.Catalog.Rate,
		Burst:   appConfig.Catalog.Burst,
	}, utils.NewHTTPClient(httpCfg))
	crawler := &yande.Crawler{
		Client:   client,
		Search:   yande.SearchTags{MinWidth: flags.minWidth, Rating: rating},
		MaxPages: appConfig.Catalog.MaxPages,
	}

	recorder, err := openRecorder()
	if err != nil {
		return err
	}
	if recorder != nil {
		defer recorder.Store.Close()
		crawler.Known = recorder.Known
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobCh := make(chan utils.Job)
	var stats yande.CrawlStats
	var crawlErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(jobCh)
		stats, crawlErr = crawl(ctx, crawler, func(item yande.Item) bool {
			if recorder != nil {
				recorder.Queue(ctx, item.Post)
			}
			job := newJob("http", item.Spec.URL, opts)
			job.Spec = item.Spec
			job.Metadata["post"] = item.Post
			select {
			case jobCh <- job:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	runErr := scheduler.RunStream(ctx, jobCh, appConfig.Downloader.Transfers, schedulerOptions(recorder))
	<-done

	log.Info().Str("op", "cmd/crawl").Int("pages", stats.Pages).Int("emitted", stats.Emitted).
		Int("skipped", stats.Skipped).Bool("stopped", stats.Stopped).Msg("Crawl finished")
	output.PrintInfo(fmt.Sprintf("Crawled %d page(s): %d queued, %d skipped", stats.Pages, stats.Emitted, stats.Skipped))
	if recorder != nil {
		output.PrintDetail("Run ID " + recorder.RunID)
	}
	if crawlErr != nil {
		return fmt.Errorf("crawl failed: %w", crawlErr)
	}
	if runErr != nil {
		return fmt.Errorf("encountered failed operation(s): %w", runErr)
	}
	return nil
}
