package yande

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/yandl/internal/utils"
	"golang.org/x/time/rate"
)

var ErrAPIStatus = errors.New("post API returned an error status")

type ClientConfig struct {
	BaseURL string
	Retry   int
	Rate    float64 // requests per second
	Burst   int
}

type Client struct {
	baseURL string
	http    utils.HTTPDoer
	limiter *rate.Limiter
	retry   int
}

func NewClient(cfg ClientConfig, doer utils.HTTPDoer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 3
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    doer,
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		retry:   cfg.Retry,
	}
}

// Posts fetches one page of the post listing. Error statuses are returned
// right away; transport and decoding failures are retried.
func (c *Client) Posts(ctx context.Context, page int, tags string) ([]Post, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if tags != "" {
		query.Set("tags", tags)
	}
	endpoint := c.baseURL + "/post.json?" + query.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.retry; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		posts, err := c.fetch(ctx, endpoint)
		if err == nil {
			log.Debug().Str("op", "yande/client").Int("page", page).Str("tags", tags).Int("count", len(posts)).Msg("Page fetched")
			return posts, nil
		}
		if errors.Is(err, ErrAPIStatus) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		log.Warn().Str("op", "yande/client").Int("page", page).Str("tags", tags).Int("attempt", attempt).Err(err).Msg("Request failed")
	}
	return nil, fmt.Errorf("page %d failed after %d attempts: %w", page, c.retry, lastErr)
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating API request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode > 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d %s", ErrAPIStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var posts []Post
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("error decoding posts: %w", err)
	}
	return posts, nil
}

// Post looks a single post up by its identifier.
func (c *Client) Post(ctx context.Context, id int64) (Post, error) {
	posts, err := c.Posts(ctx, 1, fmt.Sprintf("id:%d", id))
	if err != nil {
		return Post{}, err
	}
	for _, p := range posts {
		if p.ID == id {
			return p, nil
		}
	}
	return Post{}, fmt.Errorf("post %d not found", id)
}
