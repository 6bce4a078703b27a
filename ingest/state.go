package ingest

import (
	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
)

const (
	// KeyColumn is the observation id column of every metadata table.
	KeyColumn = "pkey"
	// SolColumn is the partition column of every metadata table.
	SolColumn = "sol"
)

// State is everything a harvest has accumulated: the tables, and the last
// partition known to be completely ingested.
type State struct {
	Checkpoint    harvest.Sol
	HasCheckpoint bool

	Metadata *harvest.Table
	Spectra  *harvest.Spectra

	dirty bool

	// repair is set while partitions whose rows were dropped on load have
	// not been ingested again. Until then the tables on disk are the only
	// record of what was lost, so they must not be overwritten.
	repair    bool
	repairSol harvest.Sol

	// orphans are the spectra dropped on load for want of a metadata row.
	orphans []string
}

// NewState returns an empty state with the given metadata columns.
func NewState(metaColumns []string) *State {
	return &State{
		Metadata: harvest.NewTable(metaColumns...),
		Spectra:  harvest.NewSpectra(),
	}
}

// Has reports whether an observation has been ingested.
func (s *State) Has(id string) bool {
	return s.Spectra.Has(id)
}

// Dirty reports whether the state changed since it was loaded or saved.
func (s *State) Dirty() bool { return s.dirty }

// Repairing reports whether partitions which lost observations on load are
// still waiting to be ingested again.
func (s *State) Repairing() bool { return s.repair }

// reingest moves the checkpoint back before sol and keeps the state
// Repairing until sol is committed again.
func (s *State) reingest(sol harvest.Sol) {
	if s.HasCheckpoint && sol <= s.Checkpoint {
		s.Checkpoint, s.HasCheckpoint = sol-1, sol > 0
	}
	if !s.repair || sol > s.repairSol {
		s.repairSol = sol
	}
	s.repair = true
}

// Stage collects the observations of one partition before they are
// committed to a State.
type Stage struct {
	Sol     harvest.Sol
	meta    *harvest.Table
	spectra *harvest.Spectra
	ids     []string
}

// NewStage returns an empty stage for a partition.
func NewStage(sol harvest.Sol, metaColumns []string) *Stage {
	return &Stage{
		Sol:     sol,
		meta:    harvest.NewTable(metaColumns...),
		spectra: harvest.NewSpectra(),
	}
}

// Add stages an observation. An observation already staged is ignored. The
// error wraps harvest.ErrWaveMismatch if the spectrum is not on the same
// wavelength axis as the observations staged before it.
func (s *Stage) Add(obs *harvest.Observation) error {
	if s.spectra.Has(obs.ID) {
		return nil
	}
	if len(obs.Meta) != len(s.meta.Columns) {
		return harvest.Malformed("%s: %d metadata values for %d columns", obs.ID, len(obs.Meta), len(s.meta.Columns))
	}
	if err := s.spectra.Add(obs.ID, obs.Wave, obs.Spectrum); err != nil {
		return err
	}
	if err := s.meta.Append(obs.Meta...); err != nil {
		return errors.Wrap(err, "staging metadata")
	}
	s.ids = append(s.ids, obs.ID)
	return nil
}

// IDs returns the staged observation ids.
func (s *Stage) IDs() []string { return s.ids }

// Batch describes the staged observations for sinks.
func (s *Stage) Batch(instrument string) *harvest.Batch {
	return &harvest.Batch{
		Instrument: instrument,
		Sol:        s.Sol,
		Columns:    s.meta.Columns,
		Rows:       s.meta.Rows,
	}
}

// Commit adds a completely ingested partition to the state and moves the
// checkpoint to it. Observations already in the state are not added again.
func (s *State) Commit(stage *Stage) error {
	fresh := stage.meta.Filter(func(row []string) bool {
		return !s.Has(row[0])
	})
	if err := s.Metadata.Concat(fresh); err != nil {
		return errors.Wrap(err, "appending metadata")
	}
	s.Metadata.DropDuplicates()
	s.Spectra.Merge(stage.spectra)
	if !s.HasCheckpoint || stage.Sol > s.Checkpoint {
		s.Checkpoint, s.HasCheckpoint = stage.Sol, true
	}
	if s.repair && stage.Sol >= s.repairSol {
		s.repair = false
	}
	s.dirty = true
	return nil
}
