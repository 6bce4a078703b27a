// Package fits reads the binary tables of FITS files into harvest tables
// using github.com/astrogo/fitsio.
package fits

import (
	"io"
	"math"
	"reflect"
	"strconv"

	"github.com/astrogo/fitsio"
	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
)

// Parser implements harvest.Parser for FITS files. Numeric columns are
// converted to float64; string and logical columns are kept as text.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser { return &Parser{} }

// Parse returns one table per HDU. HDUs which are not tables (the primary
// image, for instance) come back as tables without columns.
func (p *Parser) Parse(r io.ReaderAt, size int64) ([]*harvest.Table, error) {
	f, err := fitsio.Open(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, harvest.Malformed("opening fits: %v", err)
	}
	defer f.Close()

	hdus := f.HDUs()
	ret := make([]*harvest.Table, len(hdus))
	for i, hdu := range hdus {
		tbl, ok := hdu.(*fitsio.Table)
		if !ok {
			ret[i] = &harvest.Table{Name: hdu.Name()}
			continue
		}
		ret[i], err = readTable(tbl)
		if err != nil {
			return nil, errors.Wrapf(err, "reading HDU %d (%s)", i, hdu.Name())
		}
	}
	return ret, nil
}

func readTable(tbl *fitsio.Table) (*harvest.Table, error) {
	cols := tbl.Cols()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	ret := harvest.NewTable(names...)
	ret.Name = tbl.Name()

	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return nil, harvest.Malformed("reading rows: %v", err)
	}
	defer rows.Close()

	dest := make([]interface{}, len(cols))
	for i := range cols {
		dest[i] = reflect.New(cols[i].Type()).Interface()
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, harvest.Malformed("scanning row %d: %v", ret.Len(), err)
		}
		row := make([]string, len(cols))
		for i, d := range dest {
			row[i], err = cell(reflect.ValueOf(d).Elem())
			if err != nil {
				return nil, harvest.Malformed("column %s: %v", names[i], err)
			}
		}
		ret.Rows = append(ret.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, harvest.Malformed("iterating rows: %v", err)
	}
	return ret, nil
}

func cell(v reflect.Value) (string, error) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return harvest.FormatFloat(v.Float()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return harvest.FormatFloat(float64(v.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return harvest.FormatFloat(float64(v.Uint())), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		if math.IsNaN(real(c)) {
			return "", nil
		}
		return strconv.FormatComplex(c, 'g', -1, 128), nil
	}
	return "", errors.Errorf("unsupported cell type %v", v.Type())
}
