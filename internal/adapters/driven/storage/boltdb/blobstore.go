// Package boltdb provides a BlobStore backed by a single bbolt file.
//
// Blobs live in one bucket keyed by their reference. References share
// scope prefixes, so DeletePrefix is a cursor seek plus a forward scan.
package boltdb

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

var bucketBlobs = []byte("blobs")

// Ensure BlobStore implements the interface.
var _ driven.BlobStore = (*BlobStore)(nil)

// BlobStore stores blobs in a bbolt database.
type BlobStore struct {
	db *bbolt.DB
}

// NewBlobStore opens or creates the database at path.
func NewBlobStore(path string) (*BlobStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening blob database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blob bucket: %w", err)
	}

	return &BlobStore{db: db}, nil
}

// Get returns the blob stored under ref.
func (s *BlobStore) Get(_ context.Context, ref string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBlobs).Get([]byte(ref))
		if data == nil {
			return domain.ErrNotFound
		}
		// bbolt memory is only valid inside the transaction.
		out = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores data under ref.
func (s *BlobStore) Put(_ context.Context, ref string, data []byte) error {
	if ref == "" {
		return domain.ErrInvalidInput
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(ref), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put blob %s: %v", domain.ErrTransientIO, ref, err)
	}
	return nil
}

// Delete removes a single blob.
func (s *BlobStore) Delete(_ context.Context, ref string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Delete([]byte(ref))
	})
	if err != nil {
		return fmt.Errorf("%w: delete blob %s: %v", domain.ErrTransientIO, ref, err)
	}
	return nil
}

// DeletePrefix removes every blob whose reference starts with prefix.
func (s *BlobStore) DeletePrefix(_ context.Context, prefix string) error {
	p := []byte(prefix)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete prefix %s: %v", domain.ErrTransientIO, prefix, err)
	}
	return nil
}

// Count returns the number of stored blobs.
func (s *BlobStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketBlobs).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database.
func (s *BlobStore) Close() error {
	return s.db.Close()
}
