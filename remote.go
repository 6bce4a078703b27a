package harvest

import (
	"context"
	"io"
)

// Remote is the interface to an archive. Implementations should return
// errors marked with Transient when retrying could help, and ErrNotFound
// (possibly wrapped) for missing resources.
type Remote interface {
	// List returns the names of the entries of a directory listing, in the
	// order they appear and without duplicates.
	List(ctx context.Context, url string) ([]string, error)

	// Fetch returns the content of a resource.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser turns a structured scientific file into its tables. The returned
// slice is indexed by position in the file (e.g. FITS HDU number); parts of
// the file which are not tables are returned as tables without columns so
// that positions are preserved.
type Parser interface {
	Parse(r io.ReaderAt, size int64) ([]*Table, error)
}

// Observation is one ingested product.
type Observation struct {
	// ID is the primary key shared by the metadata and spectra tables.
	ID  string
	Sol Sol

	// Meta is the metadata row, in the order of the instrument's metadata
	// columns. Meta[0] is ID.
	Meta []string

	Wave     []float64
	Spectrum []float64
}

// Batch is the set of observations committed for one partition.
type Batch struct {
	Instrument string
	Sol        Sol
	Columns    []string
	Rows       [][]string
}

// Sink is told about every committed partition.
type Sink interface {
	Commit(ctx context.Context, b *Batch) error
	Close() error
}

// Publisher copies artifacts somewhere else once a run has written them.
type Publisher interface {
	Publish(ctx context.Context, paths []string) error
}
