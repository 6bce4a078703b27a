// Package supercam harvests the SuperCam LIBS RDR products of Mars 2020 from
// the PDS Geosciences node, and converts them to the PyHAT layout.
package supercam

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/csv"
	"github.com/pilosa/pdsharvest/ingest"
	"github.com/pkg/errors"
)

const (
	// BaseURL is the calibrated spectra collection of the SuperCam bundle.
	BaseURL = "https://pds-geosciences.wustl.edu/m2020/urn-nasa-pds-mars2020_supercam/data_calibrated_spectra/"
	// CompsURL is the table of compositions predicted by the MOC models.
	CompsURL = "https://pds-geosciences.wustl.edu/m2020/urn-nasa-pds-mars2020_supercam/data_derived_spectra/supercam_libs_moc.csv"
)

// Folders for the per-product artifacts.
const (
	FitsFolder    = "LIBS RDR fits files"
	LaserFolder   = "LIBS RDR laser data"
	SpectraFolder = "LIBS RDR spectra"
)

// HDUs of an RDR file.
const (
	hduLaser      = 5
	hduSpectra    = 6
	hduStats      = 7
	hduWave       = 8
	hduSaturation = 9
)

const (
	nameLen       = 65
	compsPreamble = 8
	waveColumn    = "Wavelength"
	meanColumn    = "Mean"
)

var (
	solPattern  = regexp.MustCompile(`^sol_\d{5}$`)
	fitsPattern = regexp.MustCompile(`^.{65}\.fits$`)
	typePattern = regexp.MustCompile(`^cl.$`)
)

// Columns of the SuperCam metadata table.
var Columns = []string{"pkey", "sol", "sclock", "seq_n", "target", "location_n", "producer", "version"}

// SuperCam is the ingest.Instrument for SuperCam.
type SuperCam struct {
	BaseURL  string
	CompsURL string
	Folder   string
	Stamp    string

	// Artifacts keeps the raw FITS file, the laser log, and the joined
	// per-product table of every product ingested.
	Artifacts bool
	// PyHAT writes the combined table used by PyHAT after the compositions
	// are merged.
	PyHAT bool

	Parser harvest.Parser
	Log    harvest.Logger
}

// Option configures a SuperCam.
type Option func(s *SuperCam)

func OptArtifacts(on bool) Option { return func(s *SuperCam) { s.Artifacts = on } }

func OptPyHAT(on bool) Option { return func(s *SuperCam) { s.PyHAT = on } }

func OptBaseURL(u string) Option { return func(s *SuperCam) { s.BaseURL = u } }

func OptCompsURL(u string) Option { return func(s *SuperCam) { s.CompsURL = u } }

func OptLogger(l harvest.Logger) Option { return func(s *SuperCam) { s.Log = l } }

// New returns a SuperCam which parses FITS files with p and writes to
// folder. The PyHAT table is written unless disabled.
func New(folder, stamp string, p harvest.Parser, opts ...Option) *SuperCam {
	s := &SuperCam{
		BaseURL:  BaseURL,
		CompsURL: CompsURL,
		Folder:   folder,
		Stamp:    stamp,
		PyHAT:    true,
		Parser:   p,
		Log:      harvest.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SuperCam) path(format string) string {
	return filepath.Join(s.Folder, strings.Replace(format, "{}", s.Stamp, 1))
}

// Store returns where the metadata and mean spectra tables are kept.
func (s *SuperCam) Store() *ingest.Store {
	return &ingest.Store{
		MetadataPath: s.path("LIBS_RDR_metadata_{}.csv"),
		SpectraPath:  s.path("LIBS_RDR_mean_spectra_{}.csv"),
		Log:          s.Log,
	}
}

func (s *SuperCam) Name() string { return "supercam" }

func (s *SuperCam) ParsePartition(entry string) (harvest.Sol, bool) {
	entry = strings.TrimSuffix(entry, "/")
	if !solPattern.MatchString(entry) {
		return 0, false
	}
	sol, err := harvest.ParseSol(entry)
	return sol, err == nil
}

func (s *SuperCam) PartitionPath(sol harvest.Sol) string { return sol.Format("sol_") + "/" }

func (s *SuperCam) MetaColumns() []string { return Columns }

// Candidates keeps the RDR FITS files whose product type is a LIBS one
// (cl followed by one character).
func (s *SuperCam) Candidates(entries []string) []string {
	return ingest.Match(entries, fitsPattern.MatchString, isLIBS)
}

func isLIBS(name string) bool {
	parts := strings.Split(name, "_")
	return len(parts) > 4 && typePattern.MatchString(parts[4])
}

// ParseName returns the metadata row for an RDR file name. Fields are
// positional: the target name occupies a fixed width padded with
// underscores.
func ParseName(name string) ([]string, error) {
	if !fitsPattern.MatchString(name) {
		return nil, harvest.Malformed("'%s' is not an RDR file name", name)
	}
	id := name[:nameLen]
	info := strings.Split(id, "_")
	if len(info) < 6 {
		return nil, harvest.Malformed("'%s' has %d fields", name, len(info))
	}
	sol, err := strconv.Atoi(info[1])
	if err != nil {
		return nil, harvest.Malformed("sol of '%s': %v", name, err)
	}
	return []string{
		id,
		strconv.Itoa(sol),
		info[2] + "_" + info[3],
		info[5],
		strings.TrimSpace(strings.Replace(id[39:60], "_", " ", -1)),
		id[60:62],
		id[62:63],
		id[63:65],
	}, nil
}

// Ingest fetches and parses one RDR file. The mean spectrum is taken from
// the statistics HDU on the wavelength axis of the wavelength HDU.
func (s *SuperCam) Ingest(ctx context.Context, r harvest.Remote, sol harvest.Sol, url, name string) (*harvest.Observation, error) {
	meta, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	id := meta[0]
	data, err := r.Fetch(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "fetching")
	}
	tables, err := s.Parser.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", name)
	}
	if len(tables) <= hduSaturation {
		return nil, harvest.Malformed("%s has %d HDUs", name, len(tables))
	}
	joined, err := tables[hduWave].HStack(tables[hduStats], tables[hduSpectra], tables[hduSaturation])
	if err != nil {
		return nil, harvest.Malformed("%s: joining HDUs: %v", name, err)
	}
	wave, err := joined.Floats(waveColumn)
	if err != nil {
		return nil, harvest.Malformed("%s: %v", name, err)
	}
	mean, err := joined.Floats(meanColumn)
	if err != nil {
		return nil, harvest.Malformed("%s: %v", name, err)
	}

	if s.Artifacts {
		if err := s.saveArtifacts(name, id, data, tables[hduLaser], joined); err != nil {
			return nil, errors.Wrap(err, "saving artifacts")
		}
	}
	return &harvest.Observation{
		ID:       id,
		Sol:      sol,
		Meta:     meta,
		Wave:     wave,
		Spectrum: mean,
	}, nil
}

func (s *SuperCam) saveArtifacts(name, id string, raw []byte, laser, joined *harvest.Table) error {
	if err := csv.WriteBytesFile(filepath.Join(s.Folder, FitsFolder, name), raw); err != nil {
		return err
	}
	if err := csv.WriteFile(filepath.Join(s.Folder, LaserFolder, id+".csv"), laser); err != nil {
		return err
	}
	return csv.WriteFile(filepath.Join(s.Folder, SpectraFolder, id+".csv"), joined)
}
