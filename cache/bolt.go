package cache

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements StoreProvider using bbolt, with one bucket per
// store version.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt creates or opens a bbolt database at the given path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Open(version string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(version))
		return err
	})
}

func (s *BoltStore) Get(version, key string) ([]byte, bool, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(version))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v != nil {
			val = make([]byte, len(v))
			copy(val, v)
		}
		return nil
	})
	return val, val != nil, err
}

func (s *BoltStore) Put(version, key string, bytes []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(version))
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		return b.Put([]byte(key), bytes)
	})
}

func (s *BoltStore) Versions() ([]string, error) {
	versions := make([]string, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			versions = append(versions, string(name))
			return nil
		})
	})
	return versions, err
}

func (s *BoltStore) DeleteVersion(version string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte(version))
	})
	if errors.Is(err, bolt.ErrBucketNotFound) {
		return nil
	}
	return err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
