package mock

import (
	"context"
	"sync"

	harvest "github.com/pilosa/pdsharvest"
)

// Sink records every batch committed to it. If Err is set, Commit returns
// it after recording.
type Sink struct {
	mu      sync.Mutex
	Batches []*harvest.Batch
	Err     error
	Closed  bool
}

// Commit implements harvest.Sink.
func (s *Sink) Commit(ctx context.Context, b *harvest.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Batches = append(s.Batches, b)
	return s.Err
}

// Close implements harvest.Sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Publisher records the paths of every Publish call.
type Publisher struct {
	Paths [][]string
	Err   error
}

// Publish implements harvest.Publisher.
func (p *Publisher) Publish(ctx context.Context, paths []string) error {
	p.Paths = append(p.Paths, append([]string(nil), paths...))
	return p.Err
}

// Ledger is an in-memory ingest ledger.
type Ledger struct {
	mu     sync.Mutex
	Sols   map[string][]harvest.Sol
	IDs    map[string][]string
	Owners map[string]map[string]harvest.Sol
	Resets int
}

// Last returns the greatest marked sol.
func (l *Ledger) Last(instrument string) (harvest.Sol, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var max harvest.Sol
	sols := l.Sols[instrument]
	for _, s := range sols {
		if s > max {
			max = s
		}
	}
	return max, len(sols) > 0, nil
}

// MarkPartition records a partition.
func (l *Ledger) MarkPartition(instrument string, sol harvest.Sol, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Sols == nil {
		l.Sols = make(map[string][]harvest.Sol)
		l.IDs = make(map[string][]string)
	}
	if l.Owners == nil {
		l.Owners = make(map[string]map[string]harvest.Sol)
	}
	if l.Owners[instrument] == nil {
		l.Owners[instrument] = make(map[string]harvest.Sol)
	}
	l.Sols[instrument] = append(l.Sols[instrument], sol)
	l.IDs[instrument] = append(l.IDs[instrument], ids...)
	for _, id := range ids {
		l.Owners[instrument][id] = sol
	}
	return nil
}

// SolOf returns the sol a product was marked in.
func (l *Ledger) SolOf(instrument, id string) (harvest.Sol, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sol, ok := l.Owners[instrument][id]
	return sol, ok, nil
}

// Reset forgets every partition of an instrument.
func (l *Ledger) Reset(instrument string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.Sols, instrument)
	delete(l.IDs, instrument)
	delete(l.Owners, instrument)
	l.Resets++
	return nil
}
