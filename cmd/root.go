package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/yandl/internal/config"
	"github.com/tanq16/yandl/internal/output"
	"github.com/tanq16/yandl/internal/scheduler"
	"github.com/tanq16/yandl/internal/store"
	"github.com/tanq16/yandl/internal/utils"
)

var (
	configPath    string
	workers       int
	transfers     int
	splitSize     string
	chunkSize     string
	retries       int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	logFile       string
	debug         bool

	appConfig config.Config
)

var YandlVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "yandl",
	Short:   "yandl downloads files and yande.re posts with parallel range requests",
	Version: YandlVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, cfg)
		appConfig = *cfg
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML configuration file (written with defaults if missing)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Parallel range requests per file (above 5 enables high-thread-mode)")
	rootCmd.PersistentFlags().IntVarP(&transfers, "transfers", "n", 0, "Number of files downloaded in parallel")
	rootCmd.PersistentFlags().StringVarP(&splitSize, "split-size", "s", "", "Bytes per segment (eg. 5MiB)")
	rootCmd.PersistentFlags().StringVar(&chunkSize, "chunk-size", "", "Streaming read size (eg. 10KiB)")
	rootCmd.PersistentFlags().IntVarP(&retries, "retry", "r", 0, "Attempts per segment")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "Per-request timeout (eg. 30s, 2m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 0, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", "", "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Referer: https://yande.re/'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of "+utils.LogFile)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newHTTPCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newPostCmd())
	rootCmd.AddCommand(newPostsCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newDedupeCmd())
	rootCmd.AddCommand(newServeCmd())
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Downloader.Workers = workers
	}
	if flags.Changed("transfers") {
		cfg.Downloader.Transfers = transfers
	}
	if flags.Changed("split-size") {
		cfg.Downloader.SplitSize = splitSize
	}
	if flags.Changed("chunk-size") {
		cfg.Downloader.ChunkSize = chunkSize
	}
	if flags.Changed("retry") {
		cfg.Downloader.Retry = retries
	}
	if flags.Changed("timeout") {
		cfg.HTTP.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		cfg.HTTP.KeepAliveTimeout = kaTimeout
	}
	if flags.Changed("proxy") {
		cfg.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.HTTP.ProxyPassword = proxyPassword
	}
	if flags.Changed("user-agent") {
		cfg.HTTP.UserAgent = userAgent
	}
	if cfg.HTTP.UserAgent == "randomize" {
		cfg.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	if cfg.HTTP.Headers == nil {
		cfg.HTTP.Headers = make(map[string]string)
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		cfg.HTTP.Headers[k] = v
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if debug {
		cfg.Log.Debug = true
	}
}

// setupLogging sends logs to a file so they do not tear the live display.
func setupLogging(toFile bool) {
	file := appConfig.Log.File
	if file == "" && toFile {
		file = utils.LogFile
	}
	if err := utils.InitLogger(appConfig.Log.Debug, file); err != nil {
		output.PrintWarning(fmt.Sprintf("Could not open log file %s: %v", file, err))
		utils.InitLogger(appConfig.Log.Debug, "")
	}
}

func transferOptions() (utils.TransferOptions, error) {
	if _, err := config.ParseSize(appConfig.Downloader.SplitSize); err != nil {
		return utils.TransferOptions{}, fmt.Errorf("invalid split size: %w", err)
	}
	chunk, err := config.ParseSize(appConfig.Downloader.ChunkSize)
	if err != nil {
		return utils.TransferOptions{}, fmt.Errorf("invalid chunk size: %w", err)
	}
	if chunk > config.MaxChunkSize {
		return utils.TransferOptions{}, fmt.Errorf("chunk size %s is above the %d byte limit", appConfig.Downloader.ChunkSize, config.MaxChunkSize)
	}
	if appConfig.Downloader.Workers <= 0 || appConfig.Downloader.Retry <= 0 {
		return utils.TransferOptions{}, fmt.Errorf("workers and retry must be positive")
	}
	return appConfig.TransferOptions(), nil
}

func newJob(jobType, link string, opts utils.TransferOptions) utils.Job {
	return utils.Job{
		JobType:          jobType,
		URL:              link,
		Transfer:         opts,
		HTTPClientConfig: appConfig.HTTPClientConfig(),
		Metadata:         make(map[string]any),
	}
}

// openRecorder returns nil when the store is disabled.
func openRecorder() (*store.Recorder, error) {
	if !appConfig.Store.Enable {
		return nil, nil
	}
	s, err := store.Open(storeConfig())
	if err != nil {
		return nil, err
	}
	return &store.Recorder{Store: s, RunID: store.NewRunID()}, nil
}

func storeConfig() store.Config {
	return store.Config{Driver: appConfig.Store.Driver, DSN: appConfig.Store.DSN, Table: appConfig.Store.Table}
}

func schedulerOptions(recorder *store.Recorder) scheduler.Options {
	var opts scheduler.Options
	if recorder != nil {
		opts.OnFinish = recorder.OnFinish
	}
	return opts
}

func runJobs(ctx context.Context, jobs []utils.Job, recorder *store.Recorder) error {
	if len(jobs) == 0 {
		return fmt.Errorf("no valid jobs")
	}
	if err := scheduler.Run(ctx, jobs, appConfig.Downloader.Transfers, schedulerOptions(recorder)); err != nil {
		return fmt.Errorf("encountered failed operation(s): %w", err)
	}
	return nil
}
