// Package store wraps go.etcd.io/bbolt as this node's embedded,
// transactional key/value engine for desired state and secrets.
package store

import (
	"time"

	"go.etcd.io/bbolt"

	"github.com/rezn-project/rezn/internal/model"
)

var (
	desiredBucket     = []byte("desired-state")
	instructionBucket = []byte("instruction")
	secretsBucket     = []byte("secrets")
)

// Store is a thin, typed wrapper over a bbolt database handle. bbolt
// serializes all writers through a single read-write transaction, so no
// user-level retry loop is needed for concurrent Apply calls.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures the buckets this node uses exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, model.WrapOp("store.Open", path, model.ErrStorage, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{desiredBucket, instructionBucket, secretsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, model.WrapOp("store.Open", path, model.ErrStorage, err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDesired returns the raw bytes stored for name under the desired-state
// bucket, or model.ErrNotFound if nothing is stored for it.
func (s *Store) GetDesired(name string) ([]byte, error) {
	return get(s.db, desiredBucket, name)
}

// PutDesired stores raw bytes for name under the desired-state bucket.
func (s *Store) PutDesired(name string, value []byte) error {
	return put(s.db, desiredBucket, name, value)
}

// DeleteDesired removes name from the desired-state bucket, reporting
// whether it previously existed.
func (s *Store) DeleteDesired(name string) (bool, error) {
	return del(s.db, desiredBucket, name)
}

// UpdateDesired reads the raw bytes stored under key, passes them (and
// whether a value was found) to fn, and writes fn's result back — all
// inside a single bbolt read-write transaction, so the read-modify-write
// is atomic against concurrent callers. fn returning a non-nil error
// aborts the transaction without writing.
func (s *Store) UpdateDesired(key string, fn func(existing []byte, found bool) ([]byte, error)) error {
	var fnErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(desiredBucket)
		existing := b.Get([]byte(key))
		found := existing != nil
		var existingCopy []byte
		if found {
			existingCopy = append([]byte(nil), existing...)
		}

		next, err := fn(existingCopy, found)
		if err != nil {
			fnErr = err
			return err
		}
		return b.Put([]byte(key), next)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return model.WrapOp("store.UpdateDesired", key, model.ErrStorage, err)
	}
	return nil
}

// AllDesired returns every (name, raw program) pair in the desired-state
// bucket, iterated in bbolt's natural (sorted) key order.
func (s *Store) AllDesired() (map[string][]byte, error) {
	return all(s.db, desiredBucket)
}

// PutInstructionMeta stores the raw audit record for a given molecule name.
func (s *Store) PutInstructionMeta(name string, value []byte) error {
	return put(s.db, instructionBucket, name, value)
}

// GetInstructionMeta returns the raw audit record for name.
func (s *Store) GetInstructionMeta(name string) ([]byte, error) {
	return get(s.db, instructionBucket, name)
}

// PutSecret stores an encrypted envelope under key.
func (s *Store) PutSecret(key string, envelope []byte) error {
	return put(s.db, secretsBucket, key, envelope)
}

// GetSecret returns the encrypted envelope stored under key.
func (s *Store) GetSecret(key string) ([]byte, error) {
	return get(s.db, secretsBucket, key)
}

// DeleteSecret removes key from the secrets bucket, reporting whether it
// previously existed.
func (s *Store) DeleteSecret(key string) (bool, error) {
	return del(s.db, secretsBucket, key)
}

// SecretKeys lists every key currently stored in the secrets bucket.
func (s *Store) SecretKeys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(secretsBucket)
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, model.WrapOp("store.SecretKeys", "", model.ErrStorage, err)
	}
	return keys, nil
}

func get(db *bbolt.DB, bucket []byte, key string) ([]byte, error) {
	var value []byte
	err := db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return model.ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if err == model.ErrNotFound {
			return nil, model.WrapOp("store.get", key, model.ErrNotFound, err)
		}
		return nil, model.WrapOp("store.get", key, model.ErrStorage, err)
	}
	return value, nil
}

func put(db *bbolt.DB, bucket []byte, key string, value []byte) error {
	err := db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), value)
	})
	if err != nil {
		return model.WrapOp("store.put", key, model.ErrStorage, err)
	}
	return nil
}

func del(db *bbolt.DB, bucket []byte, key string) (bool, error) {
	var existed bool
	err := db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		existed = b.Get([]byte(key)) != nil
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, model.WrapOp("store.delete", key, model.ErrStorage, err)
	}
	return existed, nil
}

func all(db *bbolt.DB, bucket []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, model.WrapOp("store.all", "", model.ErrStorage, err)
	}
	return out, nil
}
