package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/agora/pkg/errdefs"
)

// BoltStore persists all control-plane state in a single embedded bbolt
// database. Rows are JSON values under tenant-scoped composite keys; see
// keys.go for the layout. BoltStore is safe for concurrent use.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database under dataDir and ensures
// every bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, "agora.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the location of the database file.
func (s *BoltStore) Path() string {
	return s.db.Path()
}

// put marshals v and stores it under key.
func put(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}

// get unmarshals the row at key into v, or reports absence via notFound.
func get(b *bolt.Bucket, key string, v any, notFound string) error {
	data := b.Get([]byte(key))
	if data == nil {
		return errdefs.NotFoundf("%s", notFound)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// scanPrefix walks every row whose key starts with prefix.
func scanPrefix(b *bolt.Bucket, prefix string, fn func(k, v []byte) error) error {
	c := b.Cursor()
	p := []byte(prefix)
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// listPrefix decodes every row under prefix into a slice of T.
func listPrefix[T any](b *bolt.Bucket, prefix string) ([]*T, error) {
	var out []*T
	err := scanPrefix(b, prefix, func(k, v []byte) error {
		item := new(T)
		if err := json.Unmarshal(v, item); err != nil {
			return fmt.Errorf("unmarshal %s: %w", k, err)
		}
		out = append(out, item)
		return nil
	})
	return out, err
}

// listAll decodes every row in the bucket into a slice of T.
func listAll[T any](b *bolt.Bucket) ([]*T, error) {
	var out []*T
	err := b.ForEach(func(k, v []byte) error {
		item := new(T)
		if err := json.Unmarshal(v, item); err != nil {
			return fmt.Errorf("unmarshal %s: %w", k, err)
		}
		out = append(out, item)
		return nil
	})
	return out, err
}

// deletePrefix removes every row under prefix and returns the count.
func deletePrefix(b *bolt.Bucket, prefix string) (int, error) {
	var keys [][]byte
	err := scanPrefix(b, prefix, func(k, _ []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// deleteValueMatches removes index rows whose value equals val. Used when an
// indexed attribute changes and stale pointers must go.
func deleteValueMatches(b *bolt.Bucket, val string) error {
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		if string(v) == val {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
