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


package boltdb

import (
	"path/filepath"
	"testing"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/ingest"
	"github.com/pilosa/pdsharvest/test"
)

var _ ingest.Ledger = &Ledger{}

func TestLedger(t *testing.T) {
	boltFile := filepath.Join(t.TempDir(), "ledger.db")
	l, err := NewLedger(boltFile)
	test.ErrNil(t, err, "opening")

	_, ok, err := l.Last("chemcam")
	test.ErrNil(t, err, "last of empty ledger")
	test.MustBe(t, false, ok)

	test.ErrNil(t, l.MarkPartition("chemcam", 300, []string{"a", "b"}), "marking 300")
	test.ErrNil(t, l.MarkPartition("chemcam", 12, []string{"c"}), "marking 12")
	test.ErrNil(t, l.MarkPartition("chemcam", 301, nil), "marking empty 301")
	test.ErrNil(t, l.MarkPartition("supercam", 900, []string{"d"}), "marking supercam")

	last, ok, err := l.Last("chemcam")
	test.ErrNil(t, err, "last")
	test.MustBe(t, true, ok)
	test.MustBe(t, harvest.Sol(301), last)

	test.ErrNil(t, l.Close(), "closing")
	l, err = NewLedger(boltFile)
	test.ErrNil(t, err, "reopening")
	defer l.Close()

	last, _, err = l.Last("chemcam")
	test.ErrNil(t, err, "last after reopen")
	test.MustBe(t, harvest.Sol(301), last)
	sol, ok, err := l.SolOf("chemcam", "b")
	test.ErrNil(t, err, "sol of b")
	test.MustBe(t, true, ok)
	test.MustBe(t, harvest.Sol(300), sol)

	test.ErrNil(t, l.Reset("chemcam"), "resetting")
	test.ErrNil(t, l.Reset("chemcam"), "resetting twice")
	_, ok, err = l.Last("chemcam")
	test.ErrNil(t, err, "last after reset")
	test.MustBe(t, false, ok)
	_, ok, err = l.SolOf("chemcam", "b")
	test.ErrNil(t, err, "sol of b after reset")
	test.MustBe(t, false, ok)

	last, ok, err = l.Last("supercam")
	test.ErrNil(t, err, "supercam last")
	test.MustBe(t, true, ok)
	test.MustBe(t, harvest.Sol(900), last)
}
