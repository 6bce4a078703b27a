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

package csv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
)

// Option configures how a table is read.
type Option func(r *reader)

type reader struct {
	skip int
	trim bool
}

// WithSkipRows skips n raw lines before the header, the way product files
// carry a free-text preamble.
func WithSkipRows(n int) Option {
	return func(r *reader) {
		if n > 0 {
			r.skip = n
		}
	}
}

// WithTrimSpace strips surrounding whitespace from header names and cells.
func WithTrimSpace() Option {
	return func(r *reader) {
		r.trim = true
	}
}

// Read reads a table whose first row (after skipped rows) is the header.
func Read(in io.Reader, opts ...Option) (*harvest.Table, error) {
	rd := &reader{}
	for _, opt := range opts {
		opt(rd)
	}
	br := bufio.NewReader(in)
	for line := 0; line < rd.skip; line++ {
		_, err := br.ReadString('\n')
		if err == io.EOF {
			return nil, errors.Errorf("file ended after %d of %d skipped rows", line, rd.skip)
		} else if err != nil {
			return nil, errors.Wrapf(err, "skipping row %d", line)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("no header row")
	} else if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	header = stripBOM(header)
	if rd.trim {
		trimAll(header)
	}
	if err := validateHeader(header); err != nil {
		return nil, errors.Wrap(err, "validating header")
	}

	t := harvest.NewTable(header...)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "reading row %d", len(t.Rows)+1)
		}
		if rd.trim {
			trimAll(row)
		}
		rec, err := parseRecord(header, row)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing row %d", len(t.Rows)+1)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ReadBytes is Read over an in-memory file.
func ReadBytes(data []byte, opts ...Option) (*harvest.Table, error) {
	return Read(bytes.NewReader(data), opts...)
}

// ReadFile reads a table from disk.
func ReadFile(path string, opts ...Option) (*harvest.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	defer f.Close()
	t, err := Read(f, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return t, nil
}

func stripBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}

func trimAll(row []string) {
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
}

// validateHeader names blank columns "Unnamed: <n>" and rejects duplicates.
func validateHeader(header []string) error {
	fields := make(map[string]int)
	for i, h := range header {
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
			header[i] = h
		}
		if pos, exists := fields[h]; exists {
			return errors.Errorf("%s appeared at both %d and %d in header", h, pos, i)
		}
		fields[h] = i
	}
	return nil
}

// parseRecord pads short rows with empty cells. Longer rows are accepted as
// long as the extra cells are blank.
func parseRecord(header []string, row []string) ([]string, error) {
	if len(row) > len(header) {
		for i := len(header); i < len(row); i++ {
			if strings.TrimSpace(row[i]) != "" {
				return nil, errors.Errorf("data in non headered field %d: %v", i, row)
			}
		}
		return row[:len(header)], nil
	}
	for len(row) < len(header) {
		row = append(row, "")
	}
	return row, nil
}

// Write writes t with its header.
func Write(w io.Writer, t *harvest.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return errors.Wrap(err, "writing header")
	}
	return writeRows(cw, t.Rows)
}

// WriteRows writes rows without a header.
func WriteRows(w io.Writer, rows [][]string) error {
	return writeRows(csv.NewWriter(w), rows)
}

func writeRows(cw *csv.Writer, rows [][]string) error {
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "writing row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing")
}

// WriteFile writes t to path. The file is written next to its destination
// and renamed into place, so an interrupted write leaves the previous
// version intact.
func WriteFile(path string, t *harvest.Table) error {
	return writeFile(path, func(w io.Writer) error { return Write(w, t) })
}

// WriteRowsFile is WriteFile without a header row.
func WriteRowsFile(path string, rows [][]string) error {
	return writeFile(path, func(w io.Writer) error { return WriteRows(w, rows) })
}

// WriteBytesFile writes data to path unchanged, the same way as WriteFile.
func WriteBytesFile(path string, data []byte) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return errors.Wrap(err, "writing")
	})
}

func writeFile(path string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "making directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename
	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "flushing %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "renaming into place")
}

// Exists reports whether a file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	} else if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "statting")
}
