// Package fetch retrieves web pages over HTTP with rate limiting and an
// optional on-disk conditional-GET cache.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/patchgraph/internal/config"
	"github.com/rohankatakam/patchgraph/internal/errors"
)

const (
	bucketName      = "responses"
	maxBodyBytes    = 10 * 1024 * 1024
	defaultTimeout  = 20 * time.Second
	defaultAgent    = "patchgraph/1.0"
	cacheOpenWait   = time.Second
	cacheFileMode   = 0600
	cacheDirMode    = 0755
	maxRedirectHops = 5
)

// Options configures a Fetcher
type Options struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables limiting
	UserAgent string
	CacheFile string // bbolt file; empty disables caching

	// MaxBodyBytes caps a response body; larger bodies are an error.
	// Defaults to 10 MiB.
	MaxBodyBytes int64
}

// OptionsFromConfig maps the fetch config section onto Options
func OptionsFromConfig(cfg config.FetchConfig) Options {
	return Options{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		UserAgent: cfg.UserAgent,
		CacheFile: cfg.CacheFile,
	}
}

// cachedResponse is what the cache stores per URL
type cachedResponse struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Body         []byte `json:"body"`
}

// Fetcher performs GET requests. It satisfies roster.Getter.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	cache   *bolt.DB
	logger  *logrus.Entry
}

// New creates a Fetcher, opening the cache file when one is configured
func New(opts Options, logger *logrus.Logger) (*Fetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = maxBodyBytes
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirectHops {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		opts:   opts,
		logger: logger.WithField("component", "fetch"),
	}
	if opts.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	if opts.CacheFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.CacheFile), cacheDirMode); err != nil {
			return nil, errors.FileSystemErrorf(err, "failed to create cache directory for %s", opts.CacheFile)
		}
		db, err := bolt.Open(opts.CacheFile, cacheFileMode, &bolt.Options{Timeout: cacheOpenWait})
		if err != nil {
			return nil, errors.FileSystemErrorf(err, "failed to open fetch cache %s", opts.CacheFile)
		}
		f.cache = db
	}
	return f, nil
}

// Get fetches url and returns the response body. With a cache configured,
// the request carries If-None-Match / If-Modified-Since and a 304 serves the
// cached body. Non-2xx statuses are network errors; there are no retries.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, errors.NetworkErrorf(err, "rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.ValidationErrorf("invalid url %q: %v", url, err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	cached := f.lookup(url)
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NetworkErrorf(err, "GET %s failed", url)
	}
	defer resp.Body.Close()

	log := f.logger.WithFields(logrus.Fields{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		log.Debug("not modified; serving cached body")
		return cached.Body, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NetworkError(fmt.Sprintf("GET %s returned HTTP %d", url, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, errors.NetworkErrorf(err, "failed to read body of %s", url)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, errors.NetworkError(fmt.Sprintf("GET %s: body exceeds %d bytes", url, f.opts.MaxBodyBytes))
	}
	log.WithField("bytes", len(body)).Debug("fetched")

	f.store(url, &cachedResponse{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Body:         body,
	})
	return body, nil
}

// lookup returns the cached response for url, or nil
func (f *Fetcher) lookup(url string) *cachedResponse {
	if f.cache == nil {
		return nil
	}
	var entry cachedResponse
	err := f.cache.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get([]byte(url))
		if data == nil {
			return bolt.ErrBucketNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil
	}
	return &entry
}

// store caches a response that carries a validator; cache failures are
// logged and never fail the fetch
func (f *Fetcher) store(url string, entry *cachedResponse) {
	if f.cache == nil || (entry.ETag == "" && entry.LastModified == "") {
		return
	}
	err := f.cache.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(url), data)
	})
	if err != nil {
		f.logger.WithError(err).WithField("url", url).Warn("failed to cache response")
	}
}

// Close releases the cache file
func (f *Fetcher) Close() error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Close()
}
