package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"github.com/MarcoPoloResearchLab/bookworm/internal/books"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL           = "https://www.googleapis.com/books/v1/volumes"
	defaultRequestsPerSecond = 5
	defaultTimeout           = 10 * time.Second
	searchMaxResults         = 40
	englishLanguage          = "en"
	maxResponseBytes         = 4 << 20

	opSearch = "catalog.search"
	opFetch  = "catalog.fetch"
)

var errUnexpectedStatus = errors.New("unexpected catalog status")

// Config describes how to reach the external catalog.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
	Cache             Cache
	CacheTTL          time.Duration
	Logger            *zap.Logger
}

// Client queries the Google Books volumes API.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	cache       Cache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewClient builds a throttled catalog client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	perSecond := cfg.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = defaultRequestsPerSecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		cache:       cfg.Cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// Search returns English volumes whose title matches title.
func (c *Client) Search(ctx context.Context, title string) ([]Volume, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Reject(opSearch, "empty_query", apperr.ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("q", "intitle:"+title)
	params.Set("maxResults", strconv.Itoa(searchMaxResults))
	params.Set("printType", "books")
	params.Set("langRestrict", englishLanguage)

	body, err := c.get(ctx, opSearch, cacheKey("search", strings.ToLower(title)), c.baseURL, params)
	if err != nil {
		return nil, err
	}

	volumes := []Volume{}
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		volume := parseVolume(item)
		if volume.Language == englishLanguage && volume.ID != "" {
			volumes = append(volumes, volume)
		}
		return true
	})
	return volumes, nil
}

// Fetch returns the full description of one volume.
func (c *Client) Fetch(ctx context.Context, volumeID string) (Volume, error) {
	volumeID = strings.TrimSpace(volumeID)
	if volumeID == "" {
		return Volume{}, apperr.Reject(opFetch, "empty_volume_id", apperr.ErrInvalidBook)
	}
	body, err := c.get(ctx, opFetch, cacheKey("volume", volumeID), c.baseURL+"/"+url.PathEscape(volumeID), url.Values{})
	if err != nil {
		return Volume{}, err
	}
	volume := parseVolume(gjson.ParseBytes(body))
	if volume.ID == "" {
		volume.ID = volumeID
	}
	return volume, nil
}

// FetchSeed adapts Fetch to the local book catalog.
func (c *Client) FetchSeed(ctx context.Context, volumeID string) (books.BookSeed, error) {
	volume, err := c.Fetch(ctx, volumeID)
	if err != nil {
		return books.BookSeed{}, err
	}
	return books.BookSeed{
		Title:       volume.Title,
		Cover:       volume.Thumbnail,
		Authors:     volume.Authors,
		Categories:  volume.Categories,
		Description: volume.Description,
		PageCount:   volume.PageCount,
	}, nil
}

func (c *Client) get(ctx context.Context, operation, key, endpoint string, params url.Values) ([]byte, error) {
	if cached, ok := c.cached(ctx, key); ok {
		return cached, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, apperr.New(operation, "rate_limited", apperr.ErrCatalogUnavailable, err)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	requestURL := endpoint
	if encoded := params.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, apperr.Internal(operation, "request_build_failed", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("catalog request failed", zap.String("operation", operation), zap.Error(err))
		return nil, apperr.New(operation, "transport_failed", apperr.ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && operation == opFetch {
		return nil, apperr.Reject(operation, "volume_not_found", apperr.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("catalog returned error status", zap.String("operation", operation), zap.Int("status", resp.StatusCode))
		return nil, apperr.New(operation, "upstream_status", apperr.ErrCatalogUnavailable,
			fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.New(operation, "body_read_failed", apperr.ErrCatalogUnavailable, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, apperr.New(operation, "invalid_payload", apperr.ErrCatalogUnavailable, errors.New("catalog returned malformed json"))
	}
	c.store(ctx, key, body)
	return body, nil
}

func (c *Client) cached(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	value, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, ok
}

func (c *Client) store(ctx context.Context, key string, value []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, value, c.cacheTTL); err != nil {
		c.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}
