package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bookworm/internal/apperr"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPayload = `{
  "totalItems": 3,
  "items": [
    {"id": "en-1", "volumeInfo": {"title": "Emma", "authors": ["Jane Austen"], "language": "en",
      "publishedDate": "1815", "imageLinks": {"thumbnail": "http://covers/emma.jpg"}}},
    {"id": "fr-1", "volumeInfo": {"title": "Emma (édition)", "authors": ["Jane Austen"], "language": "fr"}},
    {"id": "en-2", "volumeInfo": {"title": "Emma Annotated", "language": "en"}}
  ]
}`

const volumePayload = `{
  "id": "en-1",
  "volumeInfo": {
    "title": "Emma",
    "authors": ["Jane Austen"],
    "categories": ["Fiction", "Classics"],
    "publisher": "John Murray",
    "description": "A comedy of manners.",
    "pageCount": 474,
    "averageRating": 4.5,
    "imageLinks": {"thumbnail": "http://covers/emma.jpg"},
    "language": "en"
  }
}`

type memoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func newFakeCatalog(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Path {
		case "/volumes":
			query := r.URL.Query()
			if query.Get("q") != "intitle:emma" || query.Get("langRestrict") != "en" ||
				query.Get("printType") != "books" || query.Get("maxResults") != "40" || query.Get("key") != "test-key" {
				http.Error(w, "bad query", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(searchPayload))
		case "/volumes/en-1":
			_, _ = w.Write([]byte(volumePayload))
		case "/volumes/broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(serverURL string, cache Cache) *Client {
	return NewClient(Config{
		BaseURL:           serverURL + "/volumes",
		APIKey:            "test-key",
		RequestsPerSecond: 100,
		Cache:             cache,
	})
}

func TestSearchKeepsEnglishVolumes(t *testing.T) {
	var hits int32
	server := newFakeCatalog(t, &hits)
	client := newTestClient(server.URL, nil)

	volumes, err := client.Search(context.Background(), " emma ")
	require.NoError(t, err)
	require.Len(t, volumes, 2)
	assert.Equal(t, "en-1", volumes[0].ID)
	assert.Equal(t, []string{"Jane Austen"}, volumes[0].Authors)
	assert.Equal(t, "http://covers/emma.jpg", volumes[0].Thumbnail)
	assert.Equal(t, "en-2", volumes[1].ID)
	assert.Empty(t, volumes[1].Authors)
}

func TestSearchRequiresQuery(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Search(context.Background(), "  ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestFetchParsesVolume(t *testing.T) {
	var hits int32
	server := newFakeCatalog(t, &hits)
	client := newTestClient(server.URL, nil)

	volume, err := client.Fetch(context.Background(), "en-1")
	require.NoError(t, err)
	assert.Equal(t, "Emma", volume.Title)
	assert.Equal(t, []string{"Fiction", "Classics"}, volume.Categories)
	assert.Equal(t, 474, volume.PageCount)
	assert.InDelta(t, 4.5, volume.AverageRating, 0.001)

	seed, err := client.FetchSeed(context.Background(), "en-1")
	require.NoError(t, err)
	assert.Equal(t, "Emma", seed.Title)
	assert.Equal(t, "http://covers/emma.jpg", seed.Cover)
}

func TestFetchMapsFailures(t *testing.T) {
	var hits int32
	server := newFakeCatalog(t, &hits)
	client := newTestClient(server.URL, nil)
	ctx := context.Background()

	_, err := client.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = client.Fetch(ctx, "broken")
	assert.ErrorIs(t, err, apperr.ErrCatalogUnavailable)

	offline := NewClient(Config{BaseURL: "http://127.0.0.1:1/volumes", Timeout: time.Second})
	_, err = offline.Fetch(ctx, "en-1")
	assert.ErrorIs(t, err, apperr.ErrCatalogUnavailable)
}

func TestCacheServesRepeatedRequests(t *testing.T) {
	var hits int32
	server := newFakeCatalog(t, &hits)
	cache := newMemoryCache()
	client := newTestClient(server.URL, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.Fetch(ctx, "en-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	_, ok, _ := cache.Get(ctx, cacheKey("volume", "en-1"))
	assert.True(t, ok)
}

func TestUnreachableRedisFallsBackToUpstream(t *testing.T) {
	var hits int32
	server := newFakeCatalog(t, &hits)
	redisCache := NewRedisCacheWithClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	t.Cleanup(func() { _ = redisCache.Close() })
	client := newTestClient(server.URL, redisCache)

	volume, err := client.Fetch(context.Background(), "en-1")
	require.NoError(t, err)
	assert.Equal(t, "Emma", volume.Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
