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


package pilosa_test

import (
	"context"
	"testing"

	gopilosa "github.com/pilosa/go-pilosa"
	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/pilosa"
	"github.com/pilosa/pdsharvest/test"
	"github.com/pkg/errors"
)

func TestSink(t *testing.T) {
	var sent []gopilosa.PQLQuery
	var fail error
	s := pilosa.NewSinkWithQuerier("libs", func(q gopilosa.PQLQuery) error {
		sent = append(sent, q)
		return fail
	}, "target", "seq_n")
	test.MustBe(t, "libs", s.Index().Name())

	b := &harvest.Batch{
		Instrument: "supercam",
		Sol:        77,
		Columns:    []string{"pkey", "sol", "seq_n", "target", "version"},
		Rows: [][]string{
			{"scam_a", "77", "scam02077", "Rocknest", "01"},
			{"scam_b", "77", "scam02078", "", "01"},
		},
	}
	// instrument and sol for each row, then seq_n and target when present
	test.MustBe(t, 7, len(s.Queries(b)))

	test.ErrNil(t, s.Commit(context.Background(), b), "committing")
	test.MustBe(t, 1, len(sent))
	test.MustBe(t, "libs", sent[0].Index().Name())
	test.ErrNil(t, sent[0].Error(), "query error")

	fail = errors.New("connection refused")
	if err := s.Commit(context.Background(), b); errors.Cause(err) != fail {
		t.Fatalf("expected query error, got %v", err)
	}

	noKey := &harvest.Batch{Columns: []string{"sol"}, Rows: [][]string{{"1"}}}
	if err := s.Commit(context.Background(), noKey); err == nil {
		t.Fatal("expected error for a batch without pkey")
	}
	test.ErrNil(t, s.Close(), "closing")
}
