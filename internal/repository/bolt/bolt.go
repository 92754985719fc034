// Package bolt is a single-file Repository backed by bbolt.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/cpage-pivotal/ipzs/internal/repository"
)

var bucketDocuments = []byte("documents")

type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("bolt: creating directory: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(_ context.Context, rec repository.DocumentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("bolt: record without id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(rec.ID), data)
	})
}

func (s *Store) Get(_ context.Context, id string) (repository.DocumentRecord, error) {
	var rec repository.DocumentRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", repository.ErrNotFound, id)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

func (s *Store) List(ctx context.Context, f repository.ListFilter) ([]repository.DocumentRecord, error) {
	var out []repository.DocumentRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec repository.DocumentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if f.Match(rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	repository.Sort(out)
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }
