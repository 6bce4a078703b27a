// Package mock has in-memory doubles for the harvest interfaces.
package mock

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
)

// Remote is an in-memory harvest.Remote. Directories are keys ending in "/"
// whose entries are computed from the files beneath them, unless a listing
// was set explicitly with SetListing.
type Remote struct {
	mu       sync.Mutex
	files    map[string][]byte
	listings map[string][]string
	fails    map[string][]error

	Fetches map[string]int
	Lists   map[string]int
}

// NewRemote returns an empty Remote.
func NewRemote() *Remote {
	return &Remote{
		files:    make(map[string][]byte),
		listings: make(map[string][]string),
		fails:    make(map[string][]error),
		Fetches:  make(map[string]int),
		Lists:    make(map[string]int),
	}
}

// Put adds a file.
func (r *Remote) Put(url string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[url] = data
}

// SetListing overrides the entries returned for a directory.
func (r *Remote) SetListing(dir string, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[dirKey(dir)] = names
}

// FailNext makes the next calls for url (list or fetch) return errs, one per
// call, before behaving normally again.
func (r *Remote) FailNext(url string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails[url] = append(r.fails[url], errs...)
}

func (r *Remote) popFail(url string) error {
	errs := r.fails[url]
	if len(errs) == 0 {
		return nil
	}
	r.fails[url] = errs[1:]
	return errs[0]
}

func dirKey(dir string) string {
	return strings.TrimSuffix(dir, "/") + "/"
}

// List implements harvest.Remote.
func (r *Remote) List(ctx context.Context, url string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Lists[url]++
	if err := r.popFail(url); err != nil {
		return nil, err
	}
	dir := dirKey(url)
	if names, ok := r.listings[dir]; ok {
		return names, nil
	}
	seen := make(map[string]struct{})
	var names []string
	for u := range r.files {
		if !strings.HasPrefix(u, dir) {
			continue
		}
		name := strings.SplitN(strings.TrimPrefix(u, dir), "/", 2)[0]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if names == nil {
		return nil, errors.Wrap(harvest.ErrNotFound, url)
	}
	sort.Strings(names)
	return names, nil
}

// Fetch implements harvest.Remote.
func (r *Remote) Fetch(ctx context.Context, url string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fetches[url]++
	if err := r.popFail(url); err != nil {
		return nil, err
	}
	data, ok := r.files[url]
	if !ok {
		return nil, errors.Wrap(harvest.ErrNotFound, url)
	}
	return data, nil
}

// Parser is a harvest.Parser which returns canned tables keyed by the full
// content of the file.
type Parser struct {
	Results map[string][]*harvest.Table
}

// Parse implements harvest.Parser.
func (p *Parser) Parse(r io.ReaderAt, size int64) ([]*harvest.Table, error) {
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "reading")
	}
	tables, ok := p.Results[string(buf)]
	if !ok {
		return nil, harvest.Malformed("no canned tables for %d byte file", size)
	}
	return tables, nil
}
