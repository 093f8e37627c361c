package main

import (
	"bytes"
	"encoding/gob"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var snapshotBucket = []byte("snapshots")

// cachingFetcher stores every fetched snapshot in a bolt file so a rerun
// can work from the cached copy without network access. The cache key
// includes the since bound because it changes which transactions the
// server returns.
type cachingFetcher struct {
	path      string
	inner     fetcher
	useCached bool
}

func cacheKey(budgetName, since string) []byte {
	name := budgetName
	if name == "" {
		name = "(default)"
	}
	return []byte(name + "|" + since)
}

func (f *cachingFetcher) Fetch(budgetName, since string) (*snapshot, error) {
	if f.useCached {
		return f.load(budgetName, since)
	}

	s, err := f.inner.Fetch(budgetName, since)
	if err != nil {
		return nil, err
	}
	if err := f.store(budgetName, since, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *cachingFetcher) load(budgetName, since string) (*snapshot, error) {
	db, err := bolt.Open(f.path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open snapshot cache %s", f.path)
	}
	defer db.Close()

	var s snapshot
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		if b == nil {
			return errors.Errorf("snapshot cache %s is empty", f.path)
		}
		v := b.Get(cacheKey(budgetName, since))
		if v == nil {
			return errors.Errorf("no cached snapshot for budget %q", budgetName)
		}
		return gob.NewDecoder(bytes.NewReader(v)).Decode(&s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (f *cachingFetcher) store(budgetName, since string, s *snapshot) error {
	db, err := bolt.Open(f.path, 0600, nil)
	if err != nil {
		return errors.Wrapf(err, "unable to open snapshot cache %s", f.path)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(snapshotBucket)
		if err != nil {
			return errors.Wrap(err, "unable to create snapshot bucket")
		}
		var val bytes.Buffer
		if err := gob.NewEncoder(&val).Encode(s); err != nil {
			return errors.Wrap(err, "unable to encode snapshot")
		}
		return b.Put(cacheKey(budgetName, since), val.Bytes())
	})
}
