package supercam

import (
	"context"
	"strings"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/csv"
	"github.com/pilosa/pdsharvest/ingest"
	"github.com/pkg/errors"
)

// PyHAT column categories.
const (
	CategoryMeta = "meta"
	CategoryComp = "comp"
	CategoryWave = "wvl"
)

// Finish merges the predicted compositions into the metadata and, if
// enabled, writes the PyHAT table.
func (s *SuperCam) Finish(ctx context.Context, r harvest.Remote, st *ingest.State) ([]string, error) {
	var written []string
	raw, err := r.Fetch(ctx, s.CompsURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetching compositions")
	}
	rawPath := s.path("supercam_libs_moc_{}.csv")
	if err := csv.WriteBytesFile(rawPath, raw); err != nil {
		return nil, errors.Wrap(err, "saving compositions")
	}
	written = append(written, rawPath)

	comps, err := Comps(raw)
	if err != nil {
		return written, err
	}
	joined, err := st.Metadata.Merge(comps)
	if err != nil {
		return written, errors.Wrap(err, "joining metadata with compositions")
	}
	joinedPath := s.path("LIBS_RDR_metadata_w_pred_comps_{}.csv")
	if err := csv.WriteFile(joinedPath, joined); err != nil {
		return written, errors.Wrap(err, "writing metadata with compositions")
	}
	written = append(written, joinedPath)
	s.Log.Printf("%d of %d observations have predicted compositions", joined.Len(), st.Metadata.Len())

	if !s.PyHAT {
		return written, nil
	}
	rows, err := PyHAT(joined, st.Metadata.Columns, st.Spectra)
	if err != nil {
		return written, errors.Wrap(err, "building PyHAT table")
	}
	pyhatPath := s.path("LIBS_RDR_data_PyHAT_{}.csv")
	if err := csv.WriteRowsFile(pyhatPath, rows); err != nil {
		return written, errors.Wrap(err, "writing PyHAT table")
	}
	return append(written, pyhatPath), nil
}

// Comps reads the predicted compositions table. The table is keyed by CDR
// file name, which is the RDR id without its two digit version, so version
// 01 is appended to make the keys match.
func Comps(raw []byte) (*harvest.Table, error) {
	comps, err := csv.ReadBytes(raw, csv.WithSkipRows(compsPreamble), csv.WithTrimSpace())
	if err != nil {
		return nil, errors.Wrap(err, "reading compositions")
	}
	if err := comps.Rename("cdr_fname", ingest.KeyColumn); err != nil {
		return nil, errors.Wrap(err, "keying compositions")
	}
	k := comps.Index(ingest.KeyColumn)
	for _, row := range comps.Rows {
		row[k] += "01"
	}
	return comps, nil
}

// PyHAT lays out the metadata joined with compositions next to the spectra,
// one row per observation. The first row labels each column as metadata,
// composition, or wavelength and the second holds the column names.
func PyHAT(joined *harvest.Table, metaColumns []string, spectra *harvest.Spectra) ([][]string, error) {
	tr := spectra.Transpose(ingest.KeyColumn)
	tr = tr.DropColumns(func(c string) bool { return strings.TrimSpace(c) == "" })
	big, err := joined.Merge(tr)
	if err != nil {
		return nil, err
	}

	isMeta := make(map[string]bool, len(metaColumns))
	for _, c := range metaColumns {
		isMeta[c] = true
	}
	cats := make([]string, len(big.Columns))
	for i, c := range big.Columns {
		switch {
		case isMeta[c]:
			cats[i] = CategoryMeta
		case i < len(joined.Columns):
			cats[i] = CategoryComp
		default:
			cats[i] = CategoryWave
		}
	}
	rows := make([][]string, 0, big.Len()+2)
	rows = append(rows, cats, big.Columns)
	return append(rows, big.Rows...), nil
}
