package ingest

import (
	"context"
	"time"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
)

// Ledger remembers which partitions were completely ingested, including
// partitions which held no products and so left no trace in the metadata,
// and which partition each product came from.
type Ledger interface {
	Last(instrument string) (sol harvest.Sol, ok bool, err error)
	MarkPartition(instrument string, sol harvest.Sol, ids []string) error
	SolOf(instrument, id string) (sol harvest.Sol, ok bool, err error)
	Reset(instrument string) error
}

// Forgetter is implemented by remotes which keep what they fetch, such as a
// download cache.
type Forgetter interface {
	Forget(url string) error
}

// Discover lists the base URL and returns the partitions after the state's
// checkpoint in ascending order.
func Discover(ctx context.Context, r harvest.Remote, inst Instrument, baseURL string, st *State) (harvest.Sols, error) {
	entries, err := r.List(ctx, baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "listing partitions")
	}
	var sols harvest.Sols
	for _, e := range entries {
		if sol, ok := inst.ParsePartition(e); ok {
			sols = append(sols, sol)
		}
	}
	return sols.After(st.Checkpoint, st.HasCheckpoint), nil
}

// Report summarizes a run.
type Report struct {
	Sols         harvest.Sols
	Observations int
	Skipped      []string
	Retries      int
	Written      []string
}

// Harvester brings the stored tables of one instrument up to date with the
// remote archive.
type Harvester struct {
	Remote     harvest.Remote
	Instrument Instrument
	Store      *Store
	BaseURL    string

	// Ledger is optional.
	Ledger Ledger
	Sinks  []harvest.Sink
	// Publisher, if set, receives every file written by the run.
	Publisher harvest.Publisher

	// MaxRetries bounds how many times discovery is restarted after a
	// transient failure.
	MaxRetries int
	// Backoff is the wait before the first retry. It doubles each time.
	Backoff time.Duration
	// FlushEvery saves the state after every n committed partitions as well
	// as at the end of each attempt. Zero disables it.
	FlushEvery int

	Stats harvest.Statter
	Log   harvest.Logger

	pending []mark
}

type mark struct {
	sol harvest.Sol
	ids []string
}

// HarvesterOption configures a Harvester.
type HarvesterOption func(h *Harvester)

func OptHarvesterLedger(l Ledger) HarvesterOption {
	return func(h *Harvester) { h.Ledger = l }
}

func OptHarvesterSinks(s ...harvest.Sink) HarvesterOption {
	return func(h *Harvester) { h.Sinks = append(h.Sinks, s...) }
}

func OptHarvesterPublisher(p harvest.Publisher) HarvesterOption {
	return func(h *Harvester) { h.Publisher = p }
}

func OptHarvesterRetries(max int, backoff time.Duration) HarvesterOption {
	return func(h *Harvester) {
		h.MaxRetries = max
		h.Backoff = backoff
	}
}

func OptHarvesterFlushEvery(n int) HarvesterOption {
	return func(h *Harvester) { h.FlushEvery = n }
}

func OptHarvesterStats(s harvest.Statter) HarvesterOption {
	return func(h *Harvester) { h.Stats = s }
}

func OptHarvesterLogger(l harvest.Logger) HarvesterOption {
	return func(h *Harvester) { h.Log = l }
}

// NewHarvester returns a Harvester with three retries starting at a two
// second backoff.
func NewHarvester(r harvest.Remote, inst Instrument, store *Store, baseURL string, opts ...HarvesterOption) *Harvester {
	h := &Harvester{
		Remote:     r,
		Instrument: inst,
		Store:      store,
		BaseURL:    baseURL,
		MaxRetries: 3,
		Backoff:    2 * time.Second,
		Stats:      harvest.NopStatter{},
		Log:        harvest.NopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.Store.Log == nil {
		h.Store.Log = h.Log
	}
	return h
}

// Run loads the stored state, ingests every new partition, and runs the
// instrument's Finisher. Each attempt ends by saving the state, so a
// transient failure loses at most the partition being ingested; the next
// attempt resumes after the last committed partition.
func (h *Harvester) Run(ctx context.Context) (*Report, error) {
	st, err := h.load()
	if err != nil {
		return nil, err
	}
	rep := &Report{}
	for attempt := 0; ; attempt++ {
		err := h.attempt(ctx, st, rep)
		if err == nil {
			// every partition after the lowered checkpoint was listed
			st.repair = false
		}
		if perr := h.persist(st, rep); perr != nil {
			if err != nil {
				h.Log.Warnf("attempt failed before saving: %v", err)
			}
			return rep, errors.Wrap(perr, "saving state")
		}
		if err == nil {
			break
		}
		if !harvest.IsTransient(err) || ctx.Err() != nil {
			return rep, err
		}
		if attempt >= h.MaxRetries {
			return rep, errors.Wrapf(err, "giving up after %d retries", attempt)
		}
		wait := h.Backoff << uint(attempt)
		h.Log.Printf("transient failure, retrying from sol %v in %v: %v", st.Checkpoint, wait, err)
		rep.Retries++
		h.Stats.Count("retries", 1, 1)
		select {
		case <-ctx.Done():
			return rep, ctx.Err()
		case <-time.After(wait):
		}
	}

	if f, ok := h.Instrument.(Finisher); ok {
		paths, err := f.Finish(ctx, h.Remote, st)
		rep.Written = append(rep.Written, paths...)
		if err != nil {
			return rep, errors.Wrap(err, "finishing")
		}
	}
	if h.Publisher != nil && len(rep.Written) > 0 {
		if err := h.Publisher.Publish(ctx, dedupe(rep.Written)); err != nil {
			return rep, errors.Wrap(err, "publishing")
		}
	}
	return rep, nil
}

func (h *Harvester) load() (*State, error) {
	name := h.Instrument.Name()
	exists, err := h.Store.Exists()
	if err != nil {
		return nil, err
	}
	st, err := h.Store.Load(h.Instrument.MetaColumns())
	if err != nil {
		return nil, errors.Wrap(err, "loading state")
	}
	if h.Ledger == nil {
		return st, nil
	}
	if !exists {
		return st, errors.Wrap(h.Ledger.Reset(name), "resetting ledger")
	}
	for _, id := range st.orphans {
		sol, ok, err := h.Ledger.SolOf(name, id)
		if err != nil {
			return nil, errors.Wrap(err, "reading ledger")
		}
		if ok {
			h.Log.Printf("%s lost its metadata row, ingesting sol %v again", id, sol)
			st.reingest(sol)
		}
	}
	last, ok, err := h.Ledger.Last(name)
	if err != nil {
		return nil, errors.Wrap(err, "reading ledger")
	}
	if ok && (!st.HasCheckpoint || last > st.Checkpoint) && !st.Dirty() {
		st.Checkpoint, st.HasCheckpoint = last, true
	}
	return st, nil
}

func (h *Harvester) attempt(ctx context.Context, st *State, rep *Report) error {
	sols, err := Discover(ctx, h.Remote, h.Instrument, h.BaseURL, st)
	if err != nil {
		return err
	}
	h.Log.Printf("%s: %d new sols after %v", h.Instrument.Name(), len(sols), checkpointString(st))
	for n, sol := range sols {
		stage, err := h.partition(ctx, st, sol, rep)
		if err != nil {
			return errors.Wrapf(err, "ingesting sol %v", sol)
		}
		if err := st.Commit(stage); err != nil {
			return errors.Wrapf(err, "committing sol %v", sol)
		}
		h.pending = append(h.pending, mark{sol: sol, ids: stage.IDs()})
		rep.Sols = append(rep.Sols, sol)
		rep.Observations += len(stage.IDs())
		h.Stats.Count("sols", 1, 1)
		h.Stats.Count("observations", int64(len(stage.IDs())), 1)
		h.commitSinks(ctx, stage)

		if h.FlushEvery > 0 && (n+1)%h.FlushEvery == 0 {
			if err := h.persist(st, rep); err != nil {
				return errors.Wrap(err, "flushing")
			}
		}
	}
	return nil
}

func (h *Harvester) partition(ctx context.Context, st *State, sol harvest.Sol, rep *Report) (*Stage, error) {
	dir := JoinURL(h.BaseURL, h.Instrument.PartitionPath(sol))
	entries, err := h.Remote.List(ctx, dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing partition")
	}
	stage := NewStage(sol, h.Instrument.MetaColumns())
	for _, name := range h.Instrument.Candidates(entries) {
		if st.Has(ObservationID(name)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.Stats.Count("files", 1, 1)
		url := JoinURL(dir, name)
		obs, err := h.Instrument.Ingest(ctx, h.Remote, sol, url, name)
		if err == nil {
			err = stage.Add(obs)
		}
		if err != nil {
			if harvest.IsTransient(err) || ctx.Err() != nil {
				return nil, errors.Wrap(err, name)
			}
			h.Log.Warnf("skipping %s: %v", name, err)
			h.Stats.Count("skipped", 1, 1)
			if f, ok := h.Remote.(Forgetter); ok {
				// a truncated copy must not be served again
				if ferr := f.Forget(url); ferr != nil {
					h.Log.Warnf("forgetting %s: %v", url, ferr)
				}
			}
			rep.Skipped = append(rep.Skipped, name)
			continue
		}
		h.Log.Debugf("ingested %s", obs.ID)
	}
	return stage, nil
}

func (h *Harvester) commitSinks(ctx context.Context, stage *Stage) {
	if len(stage.IDs()) == 0 {
		return
	}
	b := stage.Batch(h.Instrument.Name())
	for _, s := range h.Sinks {
		if err := s.Commit(ctx, b); err != nil {
			h.Log.Warnf("sink commit for sol %v: %v", stage.Sol, err)
		}
	}
}

// persist saves the state if it changed, then records the committed
// partitions in the ledger. A Repairing state is not saved, since that would
// replace the files which still name the partitions to ingest again.
func (h *Harvester) persist(st *State, rep *Report) error {
	if st.Repairing() {
		h.Log.Debugf("not saving until sols dropped on load are ingested again")
		return nil
	}
	if st.Dirty() {
		if err := h.Store.Save(st); err != nil {
			return err
		}
		rep.Written = append(rep.Written, h.Store.SpectraPath, h.Store.MetadataPath)
	}
	if h.Ledger == nil {
		h.pending = nil
		return nil
	}
	for len(h.pending) > 0 {
		m := h.pending[0]
		if err := h.Ledger.MarkPartition(h.Instrument.Name(), m.sol, m.ids); err != nil {
			return errors.Wrap(err, "updating ledger")
		}
		h.pending = h.pending[1:]
	}
	return nil
}

func checkpointString(st *State) string {
	if !st.HasCheckpoint {
		return "the beginning"
	}
	return "sol " + st.Checkpoint.String()
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	ret := paths[:0:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		ret = append(ret, p)
	}
	return ret
}
