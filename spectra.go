package harvest

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// WaveColumn is the name of the wavelength axis column in a spectra table.
const WaveColumn = "wave"

// Spectra is a wide table of spectra sharing one wavelength axis: one row
// per wavelength sample and one column per observation.
type Spectra struct {
	wave []float64
	ids  []string
	cols map[string][]float64
}

// NewSpectra returns an empty Spectra.
func NewSpectra() *Spectra {
	return &Spectra{cols: make(map[string][]float64)}
}

// Len returns the number of observations.
func (s *Spectra) Len() int { return len(s.ids) }

// Samples returns the number of wavelength samples.
func (s *Spectra) Samples() int { return len(s.wave) }

// IDs returns the observation ids in column order.
func (s *Spectra) IDs() []string {
	ret := make([]string, len(s.ids))
	copy(ret, s.ids)
	return ret
}

// Has reports whether an observation is present.
func (s *Spectra) Has(id string) bool {
	_, ok := s.cols[id]
	return ok
}

// Wave returns the wavelength axis.
func (s *Spectra) Wave() []float64 {
	ret := make([]float64, len(s.wave))
	copy(ret, s.wave)
	return ret
}

// Values returns the intensities of an observation.
func (s *Spectra) Values(id string) []float64 {
	return s.cols[id]
}

// Add adds an observation. The first observation added to an empty Spectra
// sets the wavelength axis; every later one must be on the same axis or
// ErrWaveMismatch is returned. Adding an id which is already present is a
// no-op.
func (s *Spectra) Add(id string, wave, values []float64) error {
	if len(wave) != len(values) {
		return errors.Wrapf(ErrWaveMismatch, "%s has %d wavelengths and %d values", id, len(wave), len(values))
	}
	if s.Has(id) {
		return nil
	}
	if len(s.ids) == 0 && len(s.wave) == 0 {
		s.wave = append([]float64(nil), wave...)
	} else if !sameAxis(s.wave, wave) {
		return errors.Wrapf(ErrWaveMismatch, "%s", id)
	}
	s.ids = append(s.ids, id)
	s.cols[id] = append([]float64(nil), values...)
	return nil
}

func sameAxis(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if waveKey(a[i]) != waveKey(b[i]) {
			return false
		}
	}
	return true
}

func waveKey(w float64) string {
	return FormatFloat(w)
}

// Merge inner joins o into s on the wavelength axis. Observations of o which
// are already in s are ignored. Wavelength samples which are not in both
// axes are dropped from the result.
func (s *Spectra) Merge(o *Spectra) {
	if o.Len() == 0 {
		return
	}
	if s.Len() == 0 && len(s.wave) == 0 {
		for _, id := range o.ids {
			_ = s.Add(id, o.wave, o.cols[id]) // o is consistent
		}
		return
	}
	if sameAxis(s.wave, o.wave) {
		for _, id := range o.ids {
			if !s.Has(id) {
				s.ids = append(s.ids, id)
				s.cols[id] = append([]float64(nil), o.cols[id]...)
			}
		}
		return
	}

	// positions in o of each wavelength
	opos := make(map[string][]int, len(o.wave))
	for j, w := range o.wave {
		k := waveKey(w)
		opos[k] = append(opos[k], j)
	}
	var left, right []int
	for i, w := range s.wave {
		for _, j := range opos[waveKey(w)] {
			left = append(left, i)
			right = append(right, j)
		}
	}
	wave := make([]float64, len(left))
	for n, i := range left {
		wave[n] = s.wave[i]
	}
	cols := make(map[string][]float64, len(s.ids)+len(o.ids))
	for _, id := range s.ids {
		cols[id] = gather(s.cols[id], left)
	}
	for _, id := range o.ids {
		if _, ok := cols[id]; ok {
			continue
		}
		cols[id] = gather(o.cols[id], right)
		s.ids = append(s.ids, id)
	}
	s.wave = wave
	s.cols = cols
}

func gather(vals []float64, idx []int) []float64 {
	ret := make([]float64, len(idx))
	for n, i := range idx {
		ret[n] = vals[i]
	}
	return ret
}

// Keep drops every observation for which keep returns false and returns the
// dropped ids.
func (s *Spectra) Keep(keep func(id string) bool) (dropped []string) {
	ids := s.ids[:0]
	for _, id := range s.ids {
		if keep(id) {
			ids = append(ids, id)
			continue
		}
		dropped = append(dropped, id)
		delete(s.cols, id)
	}
	s.ids = ids
	return dropped
}

// Table renders the spectra as a table whose first column is WaveColumn.
func (s *Spectra) Table() *Table {
	t := NewTable(append([]string{WaveColumn}, s.ids...)...)
	t.Rows = make([][]string, len(s.wave))
	for i, w := range s.wave {
		row := make([]string, 0, len(t.Columns))
		row = append(row, FormatFloat(w))
		for _, id := range s.ids {
			row = append(row, FormatFloat(s.cols[id][i]))
		}
		t.Rows[i] = row
	}
	return t
}

// Transpose renders the spectra with one row per observation. The first
// column is named idColumn and holds the observation ids, and the remaining
// columns are labelled with the wavelengths.
func (s *Spectra) Transpose(idColumn string) *Table {
	cols := make([]string, 0, len(s.wave)+1)
	cols = append(cols, idColumn)
	for _, w := range s.wave {
		cols = append(cols, FormatFloat(w))
	}
	t := NewTable(cols...)
	for _, id := range s.ids {
		row := make([]string, 0, len(cols))
		row = append(row, id)
		for _, v := range s.cols[id] {
			row = append(row, FormatFloat(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// SpectraFromTable is the inverse of Spectra.Table. The table must have
// exactly one WaveColumn; every other column is an observation.
func SpectraFromTable(t *Table) (*Spectra, error) {
	widx := -1
	for i, c := range t.Columns {
		if c == WaveColumn {
			if widx >= 0 {
				return nil, errors.Errorf("'%s' appears at both %d and %d", WaveColumn, widx, i)
			}
			widx = i
		}
	}
	if widx < 0 {
		return nil, errors.Errorf("no '%s' column in %v", WaveColumn, t.Columns)
	}
	s := NewSpectra()
	var err error
	if s.wave, err = t.Floats(WaveColumn); err != nil {
		return nil, errors.Wrap(err, "reading wavelengths")
	}
	for i, c := range t.Columns {
		if i == widx {
			continue
		}
		if s.Has(c) {
			return nil, errors.Errorf("observation '%s' appears twice", c)
		}
		vals, err := t.Floats(c)
		if err != nil {
			return nil, errors.Wrap(err, "reading spectrum")
		}
		s.ids = append(s.ids, c)
		s.cols[c] = vals
	}
	return s, nil
}

// ParseFloat parses a table cell. Empty cells and any spelling of NaN give
// NaN.
func ParseFloat(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(v, 64)
}

// FormatFloat writes a float in the shortest form which parses back to the
// same value. NaN is written as an empty cell.
func FormatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
