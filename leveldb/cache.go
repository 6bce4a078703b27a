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


// Package leveldb keeps downloaded products in a leveldb so that a harvest
// which is restarted, or run again for a new output folder, does not
// download them again.
package leveldb

import (
	"context"
	"os"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var _ harvest.Remote = &Cache{}

// Cache is a harvest.Remote which stores the content of every fetched
// resource. Listings are never cached since new partitions appear in them.
type Cache struct {
	remote harvest.Remote
	db     *leveldb.DB
	filter func(url string) bool
	stats  harvest.Statter
}

// CacheOption configures a Cache.
type CacheOption func(c *Cache)

// WithFilter restricts caching to the URLs for which keep returns true.
// Resources which change in place should be left out.
func WithFilter(keep func(url string) bool) CacheOption {
	return func(c *Cache) {
		c.filter = keep
	}
}

// WithStatter sets the Statter which counts "cache_hits", "cache_misses",
// and "cache_errors".
func WithStatter(s harvest.Statter) CacheOption {
	return func(c *Cache) {
		c.stats = s
	}
}

// NewCache opens or creates a cache in dirname in front of remote.
func NewCache(dirname string, remote harvest.Remote, opts ...CacheOption) (*Cache, error) {
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	c := &Cache{
		remote: remote,
		filter: func(string) bool { return true },
		stats:  harvest.NopStatter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.db, err = leveldb.OpenFile(dirname, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return c, nil
}

// Close closes the underlying leveldb.
func (c *Cache) Close() error {
	return errors.Wrap(c.db.Close(), "closing leveldb")
}

// List passes through to the wrapped Remote.
func (c *Cache) List(ctx context.Context, url string) ([]string, error) {
	return c.remote.List(ctx, url)
}

// Fetch returns the stored content of url, fetching and storing it on a
// miss. A failure to store is only counted, as "cache_errors".
func (c *Cache) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !c.filter(url) {
		return c.remote.Fetch(ctx, url)
	}
	key := []byte(url)
	data, err := c.db.Get(key, nil)
	if err == nil {
		c.stats.Count("cache_hits", 1, 1)
		return data, nil
	} else if err != leveldb.ErrNotFound {
		return nil, errors.Wrap(err, "reading from cache")
	}
	c.stats.Count("cache_misses", 1, 1)
	data, err = c.remote.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := c.db.Put(key, data, nil); err != nil {
		c.stats.Count("cache_errors", 1, 1)
	}
	return data, nil
}

// Forget drops url from the cache.
func (c *Cache) Forget(url string) error {
	return errors.Wrap(c.db.Delete([]byte(url), nil), "deleting from cache")
}
