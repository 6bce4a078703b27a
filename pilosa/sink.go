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


// Package pilosa indexes harvested observations in Pilosa so that they can
// be counted and filtered by sol, target, sequence, and so on.
package pilosa

import (
	"context"
	"crypto/tls"
	"time"

	gopilosa "github.com/pilosa/go-pilosa"
	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
)

var _ harvest.Sink = &Sink{}

const (
	instrumentField = "instrument"
	solField        = "sol"
)

// DefaultFields are the metadata columns indexed when none are given.
var DefaultFields = []string{"target", "seq_n", "producer", "location_n", "version"}

// Querier runs a query against Pilosa.
type Querier func(q gopilosa.PQLQuery) error

// Sink is a harvest.Sink which sets one keyed column per observation. Each
// indexed metadata column becomes a keyed set field, and sol an int field.
type Sink struct {
	index  *gopilosa.Index
	fields map[string]*gopilosa.Field
	query  Querier
}

// NewSink creates the index and its fields on the cluster. tlsConfig may be
// nil.
func NewSink(hosts []string, indexName string, tlsConfig *tls.Config, fields ...string) (*Sink, error) {
	opts := []gopilosa.ClientOption{
		gopilosa.OptClientSocketTimeout(time.Minute * 5),
		gopilosa.OptClientConnectTimeout(time.Second * 60),
	}
	if tlsConfig != nil {
		opts = append(opts, gopilosa.OptClientTLSConfig(tlsConfig))
	}
	client, err := gopilosa.NewClient(hosts, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating pilosa cluster client")
	}
	schema := gopilosa.NewSchema()
	s := newSink(schema, indexName, fields, func(q gopilosa.PQLQuery) error {
		_, err := client.Query(q)
		return err
	})
	if err := client.SyncSchema(schema); err != nil {
		return nil, errors.Wrap(err, "synchronizing schema")
	}
	return s, nil
}

// NewSinkWithQuerier builds the schema locally and sends queries to q.
func NewSinkWithQuerier(indexName string, q Querier, fields ...string) *Sink {
	return newSink(gopilosa.NewSchema(), indexName, fields, q)
}

func newSink(schema *gopilosa.Schema, indexName string, fields []string, q Querier) *Sink {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	index := schema.Index(indexName, gopilosa.OptIndexKeys(true))
	s := &Sink{
		index:  index,
		fields: make(map[string]*gopilosa.Field, len(fields)+2),
		query:  q,
	}
	for _, name := range append([]string{instrumentField}, fields...) {
		s.fields[name] = index.Field(name, gopilosa.OptFieldTypeSet(gopilosa.CacheTypeRanked, 100000), gopilosa.OptFieldKeys(true))
	}
	s.fields[solField] = index.Field(solField, gopilosa.OptFieldTypeInt(0, 1<<31-1))
	return s
}

// Index returns the index the sink writes to.
func (s *Sink) Index() *gopilosa.Index { return s.index }

// Queries returns the queries which index a batch, one per value set.
func (s *Sink) Queries(b *harvest.Batch) []gopilosa.PQLQuery {
	key := -1
	cols := make(map[int]*gopilosa.Field)
	for i, c := range b.Columns {
		switch c {
		case "pkey":
			key = i
		case instrumentField, solField:
		default:
			if f, ok := s.fields[c]; ok {
				cols[i] = f
			}
		}
	}
	if key < 0 {
		return nil
	}
	var qs []gopilosa.PQLQuery
	for _, row := range b.Rows {
		id := row[key]
		qs = append(qs,
			s.fields[instrumentField].Set(b.Instrument, id),
			s.fields[solField].SetIntValue(id, int(b.Sol)))
		for i := range b.Columns {
			if f, ok := cols[i]; ok && row[i] != "" {
				qs = append(qs, f.Set(row[i], id))
			}
		}
	}
	return qs
}

// Commit implements harvest.Sink by sending the batch's queries in one
// request.
func (s *Sink) Commit(ctx context.Context, b *harvest.Batch) error {
	qs := s.Queries(b)
	if len(qs) == 0 {
		return errors.Errorf("batch for sol %v has no pkey column", b.Sol)
	}
	batch := s.index.BatchQuery(qs...)
	if err := batch.Error(); err != nil {
		return errors.Wrap(err, "building query")
	}
	return errors.Wrapf(s.query(batch), "indexing sol %v", b.Sol)
}

// Close implements harvest.Sink.
func (s *Sink) Close() error { return nil }
