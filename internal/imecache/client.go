package imecache

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"k8s.io/klog/v2"

	"github.com/yaskkserv/yaskkserv-go/internal/metrics"
)

// Default HTTP client tuning, grounded on split-car-fetcher/http.go's
// NewHTTPTransport/NewHTTPClient pair: a dedicated *http.Transport with its
// own dial timeout and idle-connection limits rather than DefaultTransport.
// The IME collaborator is a single remote host hit on every cache miss, so
// the per-host connection ceiling here is small compared to that teacher's
// many-CAR-storage-host fetcher.
var (
	DefaultTimeout             = 2500 * time.Millisecond
	DefaultMaxIdleConnsPerHost = 8
	DefaultIdleConnTimeout     = 90 * time.Second
)

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		DialContext: (&net.Dialer{
			Timeout: DefaultTimeout,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newHTTPTransport(),
	}
}

// Client implements dispatch.IMELookup: it answers a lookup from the cache
// when present, otherwise calls the remote transliteration endpoint
// (§4.6's GoogleJapaneseInput collaborator) and stores the result for next
// time.
type Client struct {
	httpClient *http.Client
	endpoint   string
	cache      *Cache
}

// NewClient builds a Client against endpoint (a base URL the query midasi
// is appended to as a query parameter, matching the original's
// GoogleJapaneseInput transliteration request shape) with the given
// request timeout and a cache created with fastEntries/largeEntries tier
// sizes. A nil cache (fastEntries == largeEntries == 0) disables caching
// and every lookup round-trips to endpoint.
func NewClient(endpoint string, timeout time.Duration, fastEntries, largeEntries int) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var cache *Cache
	if fastEntries > 0 || largeEntries > 0 {
		cache = New(fastEntries, largeEntries)
	}
	return &Client{
		httpClient: newHTTPClient(timeout),
		endpoint:   endpoint,
		cache:      cache,
	}
}

// LoadCache restores persisted cache entries from path (--ime-cache-file);
// a no-op if caching is disabled.
func (c *Client) LoadCache(path string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Load(path)
}

// SaveCache persists the cache to path; a no-op if caching is disabled.
func (c *Client) SaveCache(path string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Save(path)
}

// Lookup answers query, checking the cache first. A remote miss or
// transport error is logged at warning level and reported as ok == false,
// letting the dispatcher fall through to its own not-found response
// rather than failing the whole request.
func (c *Client) Lookup(query []byte) ([]byte, bool) {
	if c.cache == nil {
		metrics.IMECacheResultTotal.WithLabelValues("disabled").Inc()
	} else if v, ok := c.cache.Get(query); ok {
		metrics.IMECacheResultTotal.WithLabelValues("hit").Inc()
		return v, true
	} else {
		metrics.IMECacheResultTotal.WithLabelValues("miss").Inc()
	}

	candidates, ok := c.fetch(query)
	if !ok {
		return nil, false
	}
	if c.cache != nil {
		if err := c.cache.Put(query, candidates); err != nil {
			klog.V(4).Infof("imecache: not caching %q: %v", query, err)
		}
	}
	return candidates, true
}

func (c *Client) fetch(query []byte) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.httpClient.Timeout)
	defer cancel()

	u := c.endpoint + "?text=" + url.QueryEscape(string(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		klog.Warningf("imecache: building request for %q: %v", query, err)
		return nil, false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		klog.Warningf("imecache: request for %q failed: %v", query, err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		klog.V(4).Infof("imecache: %q returned status %d", query, resp.StatusCode)
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		klog.Warningf("imecache: reading response for %q: %v", query, err)
		return nil, false
	}
	if len(body) == 0 {
		return nil, false
	}
	return body, true
}
