package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/tanq16/yandl/internal/utils"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "yandl.yaml"

// MaxChunkSize bounds the per-read buffer each segment worker allocates.
const MaxChunkSize = 16 * 1024 * 1024

type Config struct {
	Downloader DownloaderConfig `mapstructure:"downloader" yaml:"downloader"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	Catalog    CatalogConfig    `mapstructure:"catalog" yaml:"catalog"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Serve      ServeConfig      `mapstructure:"serve" yaml:"serve"`
}

type DownloaderConfig struct {
	Workers      int           `mapstructure:"workers" yaml:"workers"`
	ChunkSize    string        `mapstructure:"chunk_size" yaml:"chunk_size"`
	SplitSize    string        `mapstructure:"split_size" yaml:"split_size"`
	Retry        int           `mapstructure:"retry" yaml:"retry"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	Transfers    int           `mapstructure:"transfers" yaml:"transfers"`
}

type HTTPConfig struct {
	Timeout          time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	KeepAliveTimeout time.Duration     `mapstructure:"keep_alive_timeout" yaml:"keep_alive_timeout"`
	Proxy            string            `mapstructure:"proxy" yaml:"proxy"`
	ProxyUsername    string            `mapstructure:"proxy_username" yaml:"proxy_username"`
	ProxyPassword    string            `mapstructure:"proxy_password" yaml:"proxy_password"`
	UserAgent        string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers          map[string]string `mapstructure:"headers" yaml:"headers"`
}

type CatalogConfig struct {
	BaseURL  string  `mapstructure:"base_url" yaml:"base_url"`
	Retry    int     `mapstructure:"retry" yaml:"retry"`
	Rate     float64 `mapstructure:"rate" yaml:"rate"` // requests per second
	Burst    int     `mapstructure:"burst" yaml:"burst"`
	MaxPages int     `mapstructure:"max_pages" yaml:"max_pages"`
}

type StoreConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Table  string `mapstructure:"table" yaml:"table"`
}

type LogConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Debug bool   `mapstructure:"debug" yaml:"debug"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

func Default() Config {
	return Config{
		Downloader: DownloaderConfig{
			Workers:      4,
			ChunkSize:    "10KiB",
			SplitSize:    "5MiB",
			Retry:        3,
			RetryBackoff: 6 * time.Second,
			Transfers:    1,
		},
		HTTP: HTTPConfig{
			Timeout:          30 * time.Second,
			KeepAliveTimeout: 90 * time.Second,
			Headers:          map[string]string{"Referer": "https://yande.re/"},
		},
		Catalog: CatalogConfig{
			BaseURL:  "https://yande.re",
			Retry:    3,
			Rate:     2,
			Burst:    1,
			MaxPages: 100,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "yandl.db",
			Table:  "posts",
		},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("downloader.workers", d.Downloader.Workers)
	v.SetDefault("downloader.chunk_size", d.Downloader.ChunkSize)
	v.SetDefault("downloader.split_size", d.Downloader.SplitSize)
	v.SetDefault("downloader.retry", d.Downloader.Retry)
	v.SetDefault("downloader.retry_backoff", d.Downloader.RetryBackoff)
	v.SetDefault("downloader.transfers", d.Downloader.Transfers)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.keep_alive_timeout", d.HTTP.KeepAliveTimeout)
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.proxy_username", "")
	v.SetDefault("http.proxy_password", "")
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.headers", d.HTTP.Headers)
	v.SetDefault("catalog.base_url", d.Catalog.BaseURL)
	v.SetDefault("catalog.retry", d.Catalog.Retry)
	v.SetDefault("catalog.rate", d.Catalog.Rate)
	v.SetDefault("catalog.burst", d.Catalog.Burst)
	v.SetDefault("catalog.max_pages", d.Catalog.MaxPages)
	v.SetDefault("store.enable", d.Store.Enable)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.table", d.Store.Table)
	v.SetDefault("log.file", "")
	v.SetDefault("log.debug", false)
	v.SetDefault("serve.addr", d.Serve.Addr)
}

// Load reads path, writing the default file first when it does not exist.
// Environment variables prefixed YANDL_ override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
		log.Info().Str("op", "config/Load").Str("path", path).Msg("Default configuration written")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	v.SetEnvPrefix("YANDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("error encoding default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing default config: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Downloader.Workers <= 0 {
		return errors.New("downloader.workers must be positive")
	}
	if c.Downloader.Retry <= 0 {
		return errors.New("downloader.retry must be positive")
	}
	if c.Downloader.Transfers <= 0 {
		c.Downloader.Transfers = 1
	}
	chunk, err := ParseSize(c.Downloader.ChunkSize)
	if err != nil {
		return fmt.Errorf("downloader.chunk_size: %w", err)
	}
	if chunk > MaxChunkSize {
		return fmt.Errorf("downloader.chunk_size: %s exceeds %s", c.Downloader.ChunkSize, humanize.IBytes(MaxChunkSize))
	}
	if _, err := ParseSize(c.Downloader.SplitSize); err != nil {
		return fmt.Errorf("downloader.split_size: %w", err)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Catalog.Rate <= 0 {
		c.Catalog.Rate = 2
	}
	if c.Catalog.Burst <= 0 {
		c.Catalog.Burst = 1
	}
	if c.Catalog.Retry <= 0 {
		c.Catalog.Retry = 1
	}
	c.Catalog.BaseURL = strings.TrimRight(c.Catalog.BaseURL, "/")
	return nil
}

// ParseSize accepts byte counts such as "5MiB", "10KiB", "64k" or "1048576".
func ParseSize(value string) (int64, error) {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("size must be positive")
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %s is too large", value)
	}
	return int64(n), nil
}

// TransferOptions converts the downloader section. It assumes validate passed.
func (c Config) TransferOptions() utils.TransferOptions {
	chunk, _ := ParseSize(c.Downloader.ChunkSize)
	split, _ := ParseSize(c.Downloader.SplitSize)
	return utils.TransferOptions{
		Workers:      c.Downloader.Workers,
		ChunkSize:    int(chunk),
		SplitSize:    split,
		Retries:      c.Downloader.Retry,
		RetryBackoff: c.Downloader.RetryBackoff,
	}
}

func (c Config) HTTPClientConfig() utils.HTTPClientConfig {
	proxy, user, pass := utils.SplitProxyAuth(c.HTTP.Proxy, c.HTTP.ProxyUsername, c.HTTP.ProxyPassword)
	headers := make(map[string]string, len(c.HTTP.Headers))
	for k, v := range c.HTTP.Headers {
		headers[k] = v
	}
	return utils.HTTPClientConfig{
		Timeout:       c.HTTP.Timeout,
		KATimeout:     c.HTTP.KeepAliveTimeout,
		ProxyURL:      proxy,
		ProxyUsername: user,
		ProxyPassword: pass,
		UserAgent:     c.HTTP.UserAgent,
		Headers:       headers,
	}
}
