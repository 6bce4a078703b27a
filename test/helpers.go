// Package test holds assertions shared by the package tests.
package test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// MustBe fails the test if got and exp differ, printing a diff.
func MustBe(t testing.TB, exp, got interface{}, context ...string) {
	t.Helper()
	var ctx string
	if len(context) > 0 {
		ctx = context[0] + ": "
	}
	if diff := cmp.Diff(exp, got, cmpopts.EquateNaNs(), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("%vunexpected result (-exp +got):\n%s", ctx, diff)
	}
}

// ErrNil asserts that the err is nil and fails otherwise.
func ErrNil(t testing.TB, err error, ctx string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%v: %v", ctx, err)
	}
}

// WriteFile writes data to name under dir, creating parent directories, and
// returns the full path.
func WriteFile(t testing.TB, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("making directory for %s: %v", name, err)
	}
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return p
}
