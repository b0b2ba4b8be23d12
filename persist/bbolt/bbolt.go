// Package bbolt implements kvbridge.Store on top of go.etcd.io/bbolt, the
// default embedded key-value store backing a Controller's durable row
// store.
package bbolt

import (
	"context"
	"fmt"

	"github.com/go-mizu/ldb/persist/kvbridge"
	bolt "go.etcd.io/bbolt"
)

var _ kvbridge.Store = (*Store)(nil)

// Store opens a single bbolt database file, one bucket per table plus the
// bridge's reserved cursor bucket.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the bbolt database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bbolt: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Open(ctx context.Context, bucket string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			val = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bbolt: get %s/%s: %w", bucket, key, err)
	}
	return val, val != nil, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, val []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), val)
	})
	if err != nil {
		return fmt.Errorf("bbolt: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bbolt: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, bucket string, fn func(key string, val []byte) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
	if err != nil {
		return fmt.Errorf("bbolt: scan %s: %w", bucket, err)
	}
	return nil
}

func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			out = append(out, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bbolt: list buckets: %w", err)
	}
	return out, nil
}

func (s *Store) Reset(ctx context.Context) error {
	var names [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("bbolt: reset: list buckets: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bbolt: reset: %w", err)
	}
	return nil
}
