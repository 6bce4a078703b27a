// Package chemcam harvests the ChemCam LIBS CCS products of the Mars
// Science Laboratory from the PDS Geosciences node.
package chemcam

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/csv"
	"github.com/pilosa/pdsharvest/ingest"
	"github.com/pkg/errors"
)

// BaseURL is the data directory of the CCS RDR volume.
const BaseURL = "https://pds-geosciences.wustl.edu/msl/msl-m-chemcam-libs-4_5-rdr-v1/mslccm_1xxx/data/"

const (
	ccsPreamble = 16
	mocPreamble = 6
	mocDir      = "moc/"
	waveColumn  = "# wave"
	meanColumn  = "mean"

	sourceColumn = "Source File"
)

var (
	solPattern = regexp.MustCompile(`^sol\d{5}$`)
	ccsPattern = regexp.MustCompile(`^.{13}ccs_.{19}\.csv$`)
	mocPattern = regexp.MustCompile(`^moc.{10}\.csv$`)
)

// Columns of the ChemCam metadata table.
var Columns = []string{"pkey", "sol", "sclock", "seq_n", "version"}

// ChemCam is the ingest.Instrument for ChemCam. Its outputs are written to
// Folder, with Stamp in every file name.
type ChemCam struct {
	BaseURL string
	Folder  string
	Stamp   string
	Log     harvest.Logger
}

// New returns a ChemCam reading from BaseURL.
func New(folder, stamp string, log harvest.Logger) *ChemCam {
	if log == nil {
		log = harvest.NopLogger{}
	}
	return &ChemCam{BaseURL: BaseURL, Folder: folder, Stamp: stamp, Log: log}
}

func (c *ChemCam) path(format string) string {
	return filepath.Join(c.Folder, strings.Replace(format, "{}", c.Stamp, 1))
}

// Store returns where the metadata and mean spectra tables are kept.
func (c *ChemCam) Store() *ingest.Store {
	return &ingest.Store{
		MetadataPath: c.path("LIBS_CCS_metadata_{}.csv"),
		SpectraPath:  c.path("LIBS_CCS_mean_spectra_{}.csv"),
		Log:          c.Log,
	}
}

func (c *ChemCam) Name() string { return "chemcam" }

func (c *ChemCam) ParsePartition(entry string) (harvest.Sol, bool) {
	entry = strings.TrimSuffix(entry, "/")
	if !solPattern.MatchString(entry) {
		return 0, false
	}
	s, err := harvest.ParseSol(entry)
	return s, err == nil
}

func (c *ChemCam) PartitionPath(sol harvest.Sol) string { return sol.Format("sol") + "/" }

func (c *ChemCam) MetaColumns() []string { return Columns }

func (c *ChemCam) Candidates(entries []string) []string {
	return ingest.Match(entries, ccsPattern.MatchString)
}

// Ingest reads the mean spectrum of a CCS file. The name encodes the
// spacecraft clock, sequence, and product version, e.g.
// cl5_398560052ccs_f0050104ccam01013p3.csv.
func (c *ChemCam) Ingest(ctx context.Context, r harvest.Remote, sol harvest.Sol, url, name string) (*harvest.Observation, error) {
	meta, err := ParseName(name, sol)
	if err != nil {
		return nil, err
	}
	data, err := r.Fetch(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "fetching")
	}
	tbl, err := csv.ReadBytes(data, csv.WithSkipRows(ccsPreamble), csv.WithTrimSpace())
	if err != nil {
		return nil, harvest.Malformed("%s: %v", name, err)
	}
	wave, err := tbl.Floats(waveColumn)
	if err != nil {
		return nil, harvest.Malformed("%s: %v", name, err)
	}
	mean, err := tbl.Floats(meanColumn)
	if err != nil {
		return nil, harvest.Malformed("%s: %v", name, err)
	}
	return &harvest.Observation{
		ID:       meta[0],
		Sol:      sol,
		Meta:     meta,
		Wave:     wave,
		Spectrum: mean,
	}, nil
}

// ParseName returns the metadata row for a CCS file name.
func ParseName(name string, sol harvest.Sol) ([]string, error) {
	if !ccsPattern.MatchString(name) {
		return nil, harvest.Malformed("'%s' is not a CCS file name", name)
	}
	id := ingest.ObservationID(name)
	return []string{id, sol.String(), id[4:13], id[25:34], id[34:36]}, nil
}

// Finish brings the MOC composite up to date and joins it with the
// metadata. An existing composite is extended with the MOC files it does
// not list in its source column yet. It writes the composite and the joined
// table.
func (c *ChemCam) Finish(ctx context.Context, r harvest.Remote, st *ingest.State) ([]string, error) {
	mocPath := c.path("moc_composite_{}.csv")
	var prev *harvest.Table
	exists, err := csv.Exists(mocPath)
	if err != nil {
		return nil, errors.Wrap(err, "checking MOC composite")
	}
	if exists {
		if prev, err = csv.ReadFile(mocPath); err != nil {
			return nil, errors.Wrap(err, "reading MOC composite")
		}
	}
	moc, err := c.Composite(ctx, r, prev)
	if err != nil {
		return nil, errors.Wrap(err, "building MOC composite")
	}
	if moc.Len() == 0 {
		c.Log.Warnf("no MOC files found under %s", ingest.JoinURL(c.BaseURL, mocDir))
		return nil, nil
	}
	if err := csv.WriteFile(mocPath, moc); err != nil {
		return nil, errors.Wrap(err, "writing MOC composite")
	}
	joined, err := st.Metadata.Merge(moc)
	if err != nil {
		return []string{mocPath}, errors.Wrap(err, "joining metadata with MOC")
	}
	joinedPath := c.path("LIBS_CCS_metadata_w_moc_{}.csv")
	if err := csv.WriteFile(joinedPath, joined); err != nil {
		return []string{mocPath}, errors.Wrap(err, "writing metadata with MOC")
	}
	c.Log.Printf("%d of %d observations have MOC compositions", joined.Len(), st.Metadata.Len())
	return []string{mocPath, joinedPath}, nil
}

// Composite appends the MOC files which are not yet in prev to a copy of
// it. prev may be nil. Uncertainty columns are dropped, and each row is
// keyed by the lower cased product name it was derived from. A file whose
// columns differ from the composite's is still added, with a warning.
func (c *ChemCam) Composite(ctx context.Context, r harvest.Remote, prev *harvest.Table) (*harvest.Table, error) {
	composite := &harvest.Table{}
	done := make(map[string]struct{})
	if prev != nil {
		composite.Union(prev)
		sources, err := prev.Column(sourceColumn)
		if err != nil {
			return nil, errors.Wrap(err, "reading existing composite")
		}
		for _, src := range sources {
			done[src] = struct{}{}
		}
	}

	dir := ingest.JoinURL(c.BaseURL, mocDir)
	entries, err := r.List(ctx, dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing")
	}
	names := ingest.Match(entries, mocPattern.MatchString)
	sort.Strings(names)

	added := 0
	for _, name := range names {
		source := ingest.ObservationID(name)
		if _, ok := done[source]; ok {
			continue
		}
		data, err := r.Fetch(ctx, ingest.JoinURL(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "fetching %s", name)
		}
		tbl, err := csv.ReadBytes(data, csv.WithSkipRows(mocPreamble))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", name)
		}
		tbl, err = normalize(tbl, source)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		if len(composite.Columns) > 0 && !sameColumns(composite.Columns, tbl.Columns) {
			c.Log.Warnf("columns of %s differ from the composite: %v vs %v", name, tbl.Columns, composite.Columns)
		}
		composite.Union(tbl)
		added++
	}
	c.Log.Printf("%d new MOC files, %d already in the composite", added, len(done))
	return composite, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

func normalize(tbl *harvest.Table, source string) (*harvest.Table, error) {
	files, err := tbl.Column("File")
	if err != nil {
		return nil, err
	}
	tbl = tbl.DropColumns(func(c string) bool {
		return strings.Contains(c, "+/-") || c == "File"
	})
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = strings.ToLower(ingest.ObservationID(f))
	}
	if err := tbl.InsertColumn(0, ingest.KeyColumn, keys); err != nil {
		return nil, err
	}
	return tbl, tbl.AddColumn(sourceColumn, source)
}
