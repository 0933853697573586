package utils

import (
	"maps"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	dialTimeout           = 30 * time.Second
)

type HTTPClientConfig struct {
	Timeout        time.Duration // per request, including the body read
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // larger socket buffers for many parallel segments
}

// HTTPDoer sends one request. Implementations may add default headers but
// never replace a header the caller already set, so a segment's Range
// survives a configured default.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient is the HTTPDoer shared by the range engine and the post API client.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = ToolUserAgent
	}
	return &HTTPClient{
		client:    &http.Client{Timeout: cfg.Timeout, Transport: newTransport(cfg)},
		userAgent: userAgent,
		headers:   maps.Clone(cfg.Headers),
	}
}

func newTransport(cfg HTTPClientConfig) *http.Transport {
	idle := cfg.KATimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: idle}
	if cfg.HighThreadMode {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(setSocketOptions)
		}
	}
	return &http.Transport{
		Proxy:               proxyFunc(cfg),
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     idle,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		// segments are counted in raw bytes
		DisableCompression: true,
	}
}

// proxyFunc returns nil for a missing or unparsable proxy, which dials directly.
func proxyFunc(cfg HTTPClientConfig) func(*http.Request) (*url.URL, error) {
	if cfg.ProxyURL == "" {
		return nil
	}
	proxy, err := url.Parse(cfg.ProxyURL)
	if err != nil {
		return nil
	}
	switch {
	case cfg.ProxyUsername != "" && cfg.ProxyPassword != "":
		proxy.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
	case cfg.ProxyUsername != "":
		proxy.User = url.User(cfg.ProxyUsername)
	}
	return http.ProxyURL(proxy)
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.client.Do(req)
}
