// Package boltdb provides an ingest.Ledger stored in boltdb. It remembers
// every partition a harvest committed, including those which held no
// products.
package boltdb

import (
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	harvest "github.com/pilosa/pdsharvest"
	"github.com/pkg/errors"
)

var (
	solBucket = []byte("sols")
	idBucket  = []byte("ids")
)

// Ledger is an ingest.Ledger. Each instrument has a nested bucket under
// "sols" mapping sol to the number of products committed for it, and one
// under "ids" mapping product id to sol.
type Ledger struct {
	Db *bolt.DB
}

// Close syncs and closes the underlying boltdb.
func (l *Ledger) Close() error {
	err := l.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return l.Db.Close()
}

// NewLedger opens or creates the ledger in filename.
func NewLedger(filename string) (l *Ledger, err error) {
	l = &Ledger{}
	l.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = l.Db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(solBucket); err != nil {
			return errors.Wrap(err, "creating sols bucket")
		}
		_, err := tx.CreateBucketIfNotExists(idBucket)
		return errors.Wrap(err, "creating ids bucket")
	})
	if err != nil {
		l.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return l, nil
}

func solKey(s harvest.Sol) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s))
	return b
}

// Last returns the greatest sol marked for instrument. Keys are big endian
// so the last key of the bucket is the greatest.
func (l *Ledger) Last(instrument string) (sol harvest.Sol, ok bool, err error) {
	err = l.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(solBucket).Bucket([]byte(instrument))
		if b == nil {
			return nil
		}
		k, _ := b.Cursor().Last()
		if len(k) != 8 {
			return nil
		}
		sol, ok = harvest.Sol(binary.BigEndian.Uint64(k)), true
		return nil
	})
	return sol, ok, errors.Wrap(err, "reading last sol")
}

// MarkPartition records that sol was completely ingested with the given
// products.
func (l *Ledger) MarkPartition(instrument string, sol harvest.Sol, ids []string) error {
	return l.Db.Update(func(tx *bolt.Tx) error {
		sb, err := tx.Bucket(solBucket).CreateBucketIfNotExists([]byte(instrument))
		if err != nil {
			return errors.Wrap(err, "adding "+instrument+" to sols bucket")
		}
		ib, err := tx.Bucket(idBucket).CreateBucketIfNotExists([]byte(instrument))
		if err != nil {
			return errors.Wrap(err, "adding "+instrument+" to ids bucket")
		}
		key := solKey(sol)
		n := make([]byte, 8)
		binary.BigEndian.PutUint64(n, uint64(len(ids)))
		if err := sb.Put(key, n); err != nil {
			return errors.Wrap(err, "inserting into sols bucket")
		}
		for _, id := range ids {
			if err := ib.Put([]byte(id), key); err != nil {
				return errors.Wrap(err, "inserting into ids bucket")
			}
		}
		return nil
	})
}

// SolOf returns the sol in which a product was ingested.
func (l *Ledger) SolOf(instrument, id string) (sol harvest.Sol, ok bool, err error) {
	err = l.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(idBucket).Bucket([]byte(instrument))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(id)); len(v) == 8 {
			sol, ok = harvest.Sol(binary.BigEndian.Uint64(v)), true
		}
		return nil
	})
	return sol, ok, errors.Wrap(err, "looking up product")
}

// Reset forgets everything recorded for instrument.
func (l *Ledger) Reset(instrument string) error {
	return l.Db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{solBucket, idBucket} {
			b := tx.Bucket(name)
			if b.Bucket([]byte(instrument)) == nil {
				continue
			}
			if err := b.DeleteBucket([]byte(instrument)); err != nil {
				return errors.Wrapf(err, "deleting %s from %s", instrument, name)
			}
		}
		return nil
	})
}
