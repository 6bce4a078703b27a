// Package ingest runs the incremental harvest: it finds partitions newer
// than the checkpoint, ingests them one at a time, and keeps the metadata
// and spectra tables on disk in step with each other.
package ingest

import (
	"context"
	"path"
	"strings"

	harvest "github.com/pilosa/pdsharvest"
)

// Instrument knows the layout of one instrument's archive.
type Instrument interface {
	// Name identifies the instrument in logs, sinks, and the ledger.
	Name() string

	// ParsePartition recognizes a partition directory in the base listing.
	ParsePartition(entry string) (harvest.Sol, bool)

	// PartitionPath is the path of a partition directory relative to the
	// base URL, with a trailing slash.
	PartitionPath(sol harvest.Sol) string

	// MetaColumns are the metadata columns produced by Ingest. The first two
	// are always "pkey" and "sol".
	MetaColumns() []string

	// Candidates filters a partition listing down to the products to ingest,
	// preserving order.
	Candidates(entries []string) []string

	// Ingest fetches and parses one product. Errors marked with
	// harvest.Transient end the attempt; any other error skips the product.
	Ingest(ctx context.Context, r harvest.Remote, sol harvest.Sol, url, name string) (*harvest.Observation, error)
}

// Finisher is implemented by instruments which derive more artifacts from
// the harvested tables once ingestion is done, e.g. merging composition
// estimates. It returns the paths it wrote.
type Finisher interface {
	Finish(ctx context.Context, r harvest.Remote, st *State) ([]string, error)
}

// ObservationID returns the id of the product with the given file name: the
// name without its extension.
func ObservationID(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// JoinURL joins a directory URL and a relative path.
func JoinURL(dir, rel string) string {
	return strings.TrimSuffix(dir, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// Match returns the names matched by every predicate, preserving order.
func Match(names []string, preds ...func(string) bool) []string {
	var ret []string
outer:
	for _, n := range names {
		for _, p := range preds {
			if !p(n) {
				continue outer
			}
		}
		ret = append(ret, n)
	}
	return ret
}
