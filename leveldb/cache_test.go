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


package leveldb

import (
	"context"
	"path/filepath"
	"testing"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/ingest"
	"github.com/pilosa/pdsharvest/mock"
	"github.com/pilosa/pdsharvest/test"
	"github.com/pkg/errors"
)

var _ ingest.Forgetter = &Cache{}

func TestCache(t *testing.T) {
	levelDir := filepath.Join(t.TempDir(), "cache")
	r := mock.NewRemote()
	r.Put("http://pds/sol00001/a.csv", []byte("a"))
	r.Put("http://pds/comps.csv", []byte("v1"))
	stats := &mock.RecordingStatter{}
	ctx := context.Background()

	c, err := NewCache(levelDir, r, WithStatter(stats), WithFilter(func(u string) bool {
		return u != "http://pds/comps.csv"
	}))
	test.ErrNil(t, err, "opening")

	for i := 0; i < 3; i++ {
		data, err := c.Fetch(ctx, "http://pds/sol00001/a.csv")
		test.ErrNil(t, err, "fetching")
		test.MustBe(t, "a", string(data))
	}
	test.MustBe(t, 1, r.Fetches["http://pds/sol00001/a.csv"])
	test.MustBe(t, int64(2), stats.Get("cache_hits"))
	test.MustBe(t, int64(1), stats.Get("cache_misses"))

	_, err = c.Fetch(ctx, "http://pds/comps.csv")
	test.ErrNil(t, err, "fetching comps")
	r.Put("http://pds/comps.csv", []byte("v2"))
	data, err := c.Fetch(ctx, "http://pds/comps.csv")
	test.ErrNil(t, err, "fetching comps again")
	test.MustBe(t, "v2", string(data), "filtered URL is not cached")

	names, err := c.List(ctx, "http://pds/")
	test.ErrNil(t, err, "listing")
	test.MustBe(t, []string{"comps.csv", "sol00001"}, names)

	r.FailNext("http://pds/sol00001/b.csv", harvest.Transient(errors.New("reset")))
	_, err = c.Fetch(ctx, "http://pds/sol00001/b.csv")
	if !harvest.IsTransient(err) {
		t.Fatalf("expected the remote's transient error, got %v", err)
	}

	test.ErrNil(t, c.Close(), "closing")
	c, err = NewCache(levelDir, r)
	test.ErrNil(t, err, "reopening")
	defer c.Close()
	_, err = c.Fetch(ctx, "http://pds/sol00001/a.csv")
	test.ErrNil(t, err, "fetching after reopen")
	test.MustBe(t, 1, r.Fetches["http://pds/sol00001/a.csv"], "served from disk")

	test.ErrNil(t, c.Forget("http://pds/sol00001/a.csv"), "forgetting")
	_, err = c.Fetch(ctx, "http://pds/sol00001/a.csv")
	test.ErrNil(t, err, "fetching after forget")
	test.MustBe(t, 2, r.Fetches["http://pds/sol00001/a.csv"])
}
