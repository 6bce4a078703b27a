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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// Remote implements harvest.Remote over HTTP(S). Directory listings are the
// HTML index pages served by the archive; their entries are the targets of
// the page's links.
type Remote struct {
	client    *http.Client
	retries   int
	backoff   time.Duration
	userAgent string
	maxBytes  int64

	log   harvest.Logger
	stats harvest.Statter
}

// RemoteOption is a functional option type for Remote.
type RemoteOption func(r *Remote)

// WithClient is an option for Remote which makes it issue requests with the
// given client.
func WithClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		r.client = c
	}
}

// WithRetries sets how many times a request is tried before a transient
// failure is returned.
func WithRetries(n int) RemoteOption {
	return func(r *Remote) {
		if n > 0 {
			r.retries = n
		}
	}
}

// WithBackoff sets the delay before the first retry. Later retries wait
// proportionally longer.
func WithBackoff(d time.Duration) RemoteOption {
	return func(r *Remote) {
		r.backoff = d
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) RemoteOption {
	return func(r *Remote) {
		r.userAgent = ua
	}
}

// WithMaxBytes limits the size of a fetched resource.
func WithMaxBytes(n int64) RemoteOption {
	return func(r *Remote) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l harvest.Logger) RemoteOption {
	return func(r *Remote) {
		r.log = l
	}
}

// WithStatter sets the statter which counts downloaded bytes.
func WithStatter(s harvest.Statter) RemoteOption {
	return func(r *Remote) {
		r.stats = s
	}
}

// NewRemote creates a Remote - it takes RemoteOptions which modify its
// behavior.
func NewRemote(opts ...RemoteOption) *Remote {
	r := &Remote{
		client:    &http.Client{Timeout: 10 * time.Minute},
		retries:   3,
		backoff:   2 * time.Second,
		userAgent: "pdsharvest",
		maxBytes:  1 << 30,
		log:       harvest.NopLogger{},
		stats:     harvest.NopStatter{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List fetches a directory listing and returns the names of the entries it
// links to.
func (r *Remote) List(ctx context.Context, dir string) ([]string, error) {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	page, err := r.Fetch(ctx, dir)
	if err != nil {
		return nil, errors.Wrap(err, "fetching listing")
	}
	names, err := Links(bytes.NewReader(page), dir)
	if err != nil {
		return nil, harvest.Malformed("parsing listing %s: %v", dir, err)
	}
	return names, nil
}

// Fetch gets a resource, retrying transient failures.
func (r *Remote) Fetch(ctx context.Context, u string) (data []byte, err error) {
	for try := 0; try < r.retries; try++ {
		if try > 0 {
			wait := r.backoff * time.Duration(try)
			r.log.Debugf("retrying %s in %v after: %v", u, wait, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		data, err = r.fetchTry(ctx, u)
		if err == nil || !harvest.IsTransient(err) {
			return data, err
		}
	}
	return nil, errors.Wrapf(err, "couldn't fetch '%s' - tried %d times, latest", u, r.retries)
}

func (r *Remote) fetchTry(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", r.userAgent)
	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, harvest.Transient(errors.Wrap(err, "getting via http"))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errors.Wrapf(harvest.ErrNotFound, "%s: %s", u, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, harvest.Transient(errors.Errorf("%s: %s", u, resp.Status))
	default:
		return nil, errors.Errorf("%s: unexpected status %s", u, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, harvest.Transient(errors.Wrap(err, "reading body"))
	}
	if int64(len(data)) > r.maxBytes {
		return nil, errors.Errorf("%s is larger than %v", u, harvest.Bytes(r.maxBytes))
	}
	r.stats.Count("bytes", int64(len(data)), 1)
	r.stats.Timing("fetch", time.Since(start), 1)
	r.log.Debugf("fetched %s (%v) in %v", u, harvest.Bytes(len(data)), time.Since(start))
	return data, nil
}

// Links returns the last path element of every link on an HTML page which
// points at or below base. Sorting links, parent directory links, and
// duplicates are dropped.
func Links(page io.Reader, base string) ([]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrap(err, "parsing base url")
	}
	basePath := strings.TrimSuffix(baseURL.Path, "/") + "/"
	seen := make(map[string]struct{})
	var names []string

	z := html.NewTokenizer(page)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return names, nil
			}
			return names, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key != "href" {
					continue
				}
				name, ok := entryName(baseURL, basePath, attr.Val)
				if !ok {
					continue
				}
				if _, dup := seen[name]; dup {
					continue
				}
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
}

func entryName(base *url.URL, basePath, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || ref.RawQuery != "" && ref.Path == "" {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Host != base.Host || !strings.HasPrefix(abs.Path, basePath) {
		return "", false
	}
	rel := strings.TrimSuffix(strings.TrimPrefix(abs.Path, basePath), "/")
	if rel == "" || strings.Contains(rel, "/") {
		return "", false
	}
	return path.Base(rel), true
}
