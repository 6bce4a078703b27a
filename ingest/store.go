package ingest

import (
	"strconv"

	harvest "github.com/pilosa/pdsharvest"
	"github.com/pilosa/pdsharvest/csv"
	"github.com/pkg/errors"
)

// Store keeps a State in a metadata CSV file and a spectra CSV file.
type Store struct {
	MetadataPath string
	SpectraPath  string
	Log          harvest.Logger
}

// Exists reports whether the metadata file exists. Without it there is no
// checkpoint.
func (s *Store) Exists() (bool, error) {
	return csv.Exists(s.MetadataPath)
}

// Load reads the state. Missing files give an empty state. If the two files
// disagree about which observations were ingested, both tables are cut down
// to the observations they share, and the checkpoint is moved back before
// the earliest partition which lost an observation so that it is ingested
// again. Such a state is Repairing until the latest of those partitions is
// committed.
func (s *Store) Load(metaColumns []string) (*State, error) {
	st := NewState(metaColumns)
	metaOK, err := csv.Exists(s.MetadataPath)
	if err != nil {
		return nil, errors.Wrap(err, "checking metadata file")
	}
	specOK, err := csv.Exists(s.SpectraPath)
	if err != nil {
		return nil, errors.Wrap(err, "checking spectra file")
	}
	if metaOK {
		if st.Metadata, err = csv.ReadFile(s.MetadataPath); err != nil {
			return nil, errors.Wrap(err, "reading metadata")
		}
		if !st.Metadata.Has(KeyColumn) || !st.Metadata.Has(SolColumn) {
			return nil, errors.Errorf("metadata %s needs '%s' and '%s' columns, has %v", s.MetadataPath, KeyColumn, SolColumn, st.Metadata.Columns)
		}
		if st.Metadata.Index(KeyColumn) != 0 {
			return nil, errors.Errorf("metadata %s must start with '%s'", s.MetadataPath, KeyColumn)
		}
	}
	if specOK {
		tbl, err := csv.ReadFile(s.SpectraPath)
		if err != nil {
			return nil, errors.Wrap(err, "reading spectra")
		}
		if st.Spectra, err = harvest.SpectraFromTable(tbl); err != nil {
			return nil, errors.Wrap(err, "decoding spectra")
		}
	}
	if err := s.reconcile(st); err != nil {
		return nil, err
	}
	if specOK {
		s.logger().Printf("loaded %d observations on %d wavelengths from %s", st.Spectra.Len(), st.Spectra.Samples(), s.SpectraPath)
	}
	return st, nil
}

func (s *Store) reconcile(st *State) error {
	solIdx := st.Metadata.Index(SolColumn)
	inMeta := make(map[string]struct{}, st.Metadata.Len())
	var lost []int
	kept := st.Metadata.Filter(func(row []string) bool {
		inMeta[row[0]] = struct{}{}
		if st.Spectra.Has(row[0]) {
			return true
		}
		if n, err := solNumber(row[solIdx]); err == nil {
			lost = append(lost, n)
		}
		return false
	})
	if dropped := st.Metadata.Len() - kept.Len(); dropped > 0 {
		s.logger().Warnf("%d metadata rows have no spectrum in %s; dropping them", dropped, s.SpectraPath)
		st.dirty = true
	}
	kept.Name = st.Metadata.Name
	st.Metadata = kept
	orphans := st.Spectra.Keep(func(id string) bool {
		_, ok := inMeta[id]
		return ok
	})
	if len(orphans) > 0 {
		s.logger().Warnf("%d spectra have no metadata row in %s; dropping them", len(orphans), s.MetadataPath)
		st.dirty = true
	}

	st.orphans = orphans

	max, ok, err := st.Metadata.MaxInt(SolColumn)
	if err != nil {
		return errors.Wrap(err, "finding checkpoint")
	}
	st.Checkpoint, st.HasCheckpoint = harvest.Sol(max), ok
	for _, sol := range lost {
		st.reingest(harvest.Sol(sol))
	}
	return nil
}

func solNumber(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	s, err := harvest.ParseSol(v)
	return int(s), err
}

// Save writes the state. The spectra file is written before the metadata
// file since the checkpoint is derived from metadata.
func (s *Store) Save(st *State) error {
	if err := csv.WriteFile(s.SpectraPath, st.Spectra.Table()); err != nil {
		return errors.Wrap(err, "writing spectra")
	}
	if err := csv.WriteFile(s.MetadataPath, st.Metadata); err != nil {
		return errors.Wrap(err, "writing metadata")
	}
	st.dirty = false
	return nil
}

func (s *Store) logger() harvest.Logger {
	if s.Log == nil {
		return harvest.NopLogger{}
	}
	return s.Log
}
