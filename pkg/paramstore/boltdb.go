package paramstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketParameters = []byte("parameters")
)

// DefaultOpenTimeout bounds how long an operation waits for another process
// holding the database file
const DefaultOpenTimeout = 10 * time.Second

// BoltStore implements Store on a BoltDB file. The file is opened for each
// operation and closed right after, so several greenfleet processes on one
// host only contend for the length of a single transaction.
type BoltStore struct {
	path        string
	openTimeout time.Duration
	now         func() time.Time
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore creates the database at path if needed
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &BoltStore{
		path:        path,
		openTimeout: DefaultOpenTimeout,
		now:         time.Now,
	}

	err := s.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists(bucketParameters); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucketParameters, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database file
func (s *BoltStore) Path() string {
	return s.path
}

// Close is a no-op; the file is never held open between operations
func (s *BoltStore) Close() error {
	return nil
}

func (s *BoltStore) withDB(fn func(db *bolt.DB) error) error {
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: s.openTimeout})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func (s *BoltStore) update(ctx context.Context, fn func(b *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			return fn(tx.Bucket(bucketParameters))
		})
	})
}

func (s *BoltStore) view(ctx context.Context, fn func(b *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withDB(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			return fn(tx.Bucket(bucketParameters))
		})
	})
}

// Get returns the parameter stored under name
func (s *BoltStore) Get(ctx context.Context, name string) (*Parameter, error) {
	var p Parameter
	err := s.view(ctx, func(b *bolt.Bucket) error {
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create stores value under name if nothing is stored there yet
func (s *BoltStore) Create(ctx context.Context, name, value string) (*Parameter, error) {
	var p *Parameter
	err := s.update(ctx, func(b *bolt.Bucket) error {
		if b.Get([]byte(name)) != nil {
			return fmt.Errorf("%s: %w", name, ErrAlreadyExists)
		}
		p = &Parameter{Name: name, Value: value, Version: 1, LastModified: s.now().UTC()}
		return put(b, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Put stores value under name, bumping its version
func (s *BoltStore) Put(ctx context.Context, name, value string) (*Parameter, error) {
	var p *Parameter
	err := s.update(ctx, func(b *bolt.Bucket) error {
		version := int64(1)
		if data := b.Get([]byte(name)); data != nil {
			var prev Parameter
			if err := json.Unmarshal(data, &prev); err != nil {
				return err
			}
			version = prev.Version + 1
		}
		p = &Parameter{Name: name, Value: value, Version: version, LastModified: s.now().UTC()}
		return put(b, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update derives a new value from the stored one inside a single write
// transaction, so concurrent updates of the same name never lose a write
func (s *BoltStore) Update(ctx context.Context, name string, fn func(current *Parameter) (string, error)) (*Parameter, error) {
	var p *Parameter
	err := s.update(ctx, func(b *bolt.Bucket) error {
		var current *Parameter
		if data := b.Get([]byte(name)); data != nil {
			current = &Parameter{}
			if err := json.Unmarshal(data, current); err != nil {
				return err
			}
		}

		value, err := fn(current)
		if err != nil {
			return err
		}

		version := int64(1)
		if current != nil {
			version = current.Version + 1
		}
		p = &Parameter{Name: name, Value: value, Version: version, LastModified: s.now().UTC()}
		return put(b, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes name
func (s *BoltStore) Delete(ctx context.Context, name string) error {
	return s.update(ctx, func(b *bolt.Bucket) error {
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return b.Delete([]byte(name))
	})
}

// List returns every parameter under prefix, in name order
func (s *BoltStore) List(ctx context.Context, prefix string) ([]*Parameter, error) {
	var params []*Parameter
	err := s.view(ctx, func(b *bolt.Bucket) error {
		c := b.Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			var param Parameter
			if err := json.Unmarshal(v, &param); err != nil {
				return err
			}
			params = append(params, &param)
		}
		return nil
	})
	return params, err
}

func put(b *bolt.Bucket, p *Parameter) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.Put([]byte(p.Name), data)
}
