package http_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	harvest "github.com/pilosa/pdsharvest"
	pdshttp "github.com/pilosa/pdsharvest/http"
	"github.com/pilosa/pdsharvest/mock"
	"github.com/pilosa/pdsharvest/test"
)

const listing = `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 3.2 Final//EN">
<html><head><title>Index of /data</title></head><body>
<h1>Index of /data</h1>
<table>
<tr><th><a href="?C=N;O=D">Name</a></th><th><a href="?C=M;O=A">Last modified</a></th></tr>
<tr><td><a href="/">Parent Directory</a></td></tr>
<tr><td><a href="sol00012/">sol00012/</a></td></tr>
<tr><td><a href="/data/sol00003/">sol00003/</a></td></tr>
<tr><td><a href="sol00012/">sol00012/</a></td></tr>
<tr><td><a href="https://elsewhere.example/data/sol00099/">elsewhere</a></td></tr>
<tr><td><a href="sol00003/cl5_x.csv">deeper</a></td></tr>
<tr><td><a href="moc/">moc/</a></td></tr>
</table></body></html>`

func TestLinks(t *testing.T) {
	names, err := pdshttp.Links(strings.NewReader(listing), "https://pds.example/data/")
	test.ErrNil(t, err, "extracting links")
	test.MustBe(t, []string{"sol00012", "sol00003", "moc"}, names)
}

func TestRemote(t *testing.T) {
	var flaky int32
	mux := http.NewServeMux()
	mux.HandleFunc("/data/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing)
	})
	mux.HandleFunc("/file.csv", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, "a,b\n1,2\n")
	})
	mux.HandleFunc("/flaky.csv", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&flaky, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/down.csv", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusBadGateway)
	})
	mux.HandleFunc("/forbidden.csv", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	stats := &mock.RecordingStatter{}
	r := pdshttp.NewRemote(
		pdshttp.WithClient(srv.Client()),
		pdshttp.WithRetries(3),
		pdshttp.WithBackoff(time.Millisecond),
		pdshttp.WithUserAgent("test-agent"),
		pdshttp.WithStatter(stats),
	)
	ctx := context.Background()

	names, err := r.List(ctx, srv.URL+"/data")
	test.ErrNil(t, err, "listing")
	test.MustBe(t, []string{"sol00012", "sol00003", "moc"}, names)

	data, err := r.Fetch(ctx, srv.URL+"/file.csv")
	test.ErrNil(t, err, "fetching")
	test.MustBe(t, "a,b\n1,2\n", string(data))
	if stats.Get("bytes") == 0 {
		t.Fatal("bytes were not counted")
	}

	data, err = r.Fetch(ctx, srv.URL+"/flaky.csv")
	test.ErrNil(t, err, "fetching flaky")
	test.MustBe(t, "ok", string(data))

	_, err = r.Fetch(ctx, srv.URL+"/down.csv")
	if !harvest.IsTransient(err) {
		t.Fatalf("expected transient error after retries, got %v", err)
	}

	_, err = r.Fetch(ctx, srv.URL+"/missing.csv")
	if !errors.Is(err, harvest.ErrNotFound) || harvest.IsTransient(err) {
		t.Fatalf("expected permanent not found, got %v", err)
	}

	_, err = r.Fetch(ctx, srv.URL+"/forbidden.csv")
	if err == nil || harvest.IsTransient(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := r.Fetch(cctx, srv.URL+"/file.csv"); err == nil || harvest.IsTransient(err) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestRemoteMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()
	ctx := context.Background()

	small := pdshttp.NewRemote(pdshttp.WithClient(srv.Client()), pdshttp.WithMaxBytes(10))
	_, err := small.Fetch(ctx, srv.URL+"/big.fits")
	if err == nil || harvest.IsTransient(err) {
		t.Fatalf("expected permanent size error, got %v", err)
	}

	exact := pdshttp.NewRemote(pdshttp.WithClient(srv.Client()), pdshttp.WithMaxBytes(100))
	data, err := exact.Fetch(ctx, srv.URL+"/big.fits")
	test.ErrNil(t, err, "fetching at the limit")
	test.MustBe(t, 100, len(data))
}
