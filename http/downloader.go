// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/file"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	// DialTimeout bounds connection setup of downloads.
	DialTimeout = 3 * time.Second
	// ResponseTimeout bounds the wait for response headers of downloads.
	ResponseTimeout = 27 * time.Second
	// DefaultAttempts is how often a download is tried before giving up.
	DefaultAttempts = 3
)

// Downloader implements dlite.Fetcher. It reads http and https URLs with
// retries and per-host rate limiting, file URLs and plain paths from disk,
// and hands any other scheme to the Fetcher registered for it.
type Downloader struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
	cache    dlite.Cache
	log      dlite.Logger
	schemes  map[string]dlite.Fetcher

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// DownloaderOption is a functional option type for Downloader.
type DownloaderOption func(d *Downloader)

// OptClient sets the http client used for http and https URLs.
func OptClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.client = c
	}
}

// OptAttempts sets how often a download is tried. Values below 1 are
// ignored.
func OptAttempts(n int) DownloaderOption {
	return func(d *Downloader) {
		if n > 0 {
			d.attempts = n
		}
	}
}

// OptBackoff sets the wait before the second attempt. Later attempts wait
// proportionally longer.
func OptBackoff(b time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.backoff = b
	}
}

// OptRateLimit limits requests to each host to rps per second with the
// given burst.
func OptRateLimit(rps float64, burst int) DownloaderOption {
	return func(d *Downloader) {
		d.limit = rate.Limit(rps)
		d.burst = burst
	}
}

// OptDownloadCache keeps downloaded bytes in c, keyed by the sha256 of the
// URL, and serves later downloads of the same URL from it.
func OptDownloadCache(c dlite.Cache) DownloaderOption {
	return func(d *Downloader) {
		d.cache = c
	}
}

// OptDownloadLogger sets the logger.
func OptDownloadLogger(l dlite.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.log = l
	}
}

// OptScheme registers f for URLs with the given scheme, e.g. "s3".
func OptScheme(scheme string, f dlite.Fetcher) DownloaderOption {
	return func(d *Downloader) {
		d.schemes[scheme] = f
	}
}

// NewDownloader returns a Downloader with the default timeouts, three
// attempts and no rate limit unless options say otherwise.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client:   NewClient(),
		attempts: DefaultAttempts,
		backoff:  500 * time.Millisecond,
		log:      dlite.NopLogger{},
		schemes:  make(map[string]dlite.Fetcher),
		limit:    rate.Inf,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewClient returns an http client with the download timeouts.
func NewClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: ResponseTimeout,
			MaxIdleConnsPerHost:   4,
		},
	}
}

// CacheKey is the key a download of rawurl is cached under.
func CacheKey(rawurl string) string {
	sum := sha256.Sum256([]byte(rawurl))
	return hex.EncodeToString(sum[:])
}

// Fetch implements dlite.Fetcher.
func (d *Downloader) Fetch(ctx context.Context, rawurl string) ([]byte, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, dlite.ConfigError(err, "parse url %s", rawurl)
	}
	if d.cache != nil {
		if data, err := d.cache.Get(CacheKey(rawurl)); err == nil {
			d.log.Debugf("serving %s from cache", rawurl)
			return data, nil
		}
	}

	var data []byte
	switch u.Scheme {
	case "", "file":
		data, err = file.ReadAll(rawurl)
		if err != nil {
			return nil, dlite.MissingError("read %s: %v", rawurl, err)
		}
	case "http", "https":
		data, err = d.get(ctx, u)
		if err != nil {
			return nil, err
		}
	default:
		f, ok := d.schemes[u.Scheme]
		if !ok {
			return nil, dlite.ConfigError(errors.Errorf("unsupported scheme %q", u.Scheme), "download %s", rawurl)
		}
		data, err = f.Fetch(ctx, rawurl)
		if err != nil {
			return nil, err
		}
	}

	if d.cache != nil {
		if _, err := d.cache.Add(data, CacheKey(rawurl)); err != nil {
			d.log.Printf("caching %s: %v", rawurl, err)
		}
	}
	return data, nil
}

func (d *Downloader) limiter(host string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[host]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[host] = l
	}
	return l
}

func (d *Downloader) get(ctx context.Context, u *url.URL) ([]byte, error) {
	rawurl := u.String()
	var lastErr error
	for attempt := 0; attempt < d.attempts; attempt++ {
		if attempt > 0 {
			d.log.Printf("retrying %s (attempt %d): %v", rawurl, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, dlite.NetworkError(ctx.Err(), "download %s", rawurl)
			case <-time.After(time.Duration(attempt) * d.backoff):
			}
		}
		if err := d.limiter(u.Host).Wait(ctx); err != nil {
			return nil, dlite.NetworkError(err, "rate limit %s", u.Host)
		}
		data, retry, err := d.do(ctx, rawurl)
		if err == nil {
			return data, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// do performs one request. retry reports whether a failure is worth another
// attempt.
func (d *Downloader) do(ctx context.Context, rawurl string) (data []byte, retry bool, err error) {
	req, err := http.NewRequest(http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, false, dlite.ConfigError(err, "download %s", rawurl)
	}
	resp, err := d.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, ctx.Err() == nil, dlite.NetworkError(err, "download %s", rawurl)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, false, dlite.MissingError("download %s: %s", rawurl, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, true, dlite.NetworkError(errors.New(resp.Status), "download %s", rawurl)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, false, dlite.NetworkError(errors.New(resp.Status), "download %s", rawurl)
	}
	data, err = ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, true, dlite.NetworkError(err, "reading body of %s", rawurl)
	}
	return data, false, nil
}
