package registry

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/maxfraieho/membridge/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketProjects = []byte("projects")

// Store is a BoltDB-backed registry of known projects, keyed by
// project name.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the registry database under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "registry.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProjects)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts a project entry.
func (s *Store) Put(entry types.ProjectEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.ProjectID), data)
	})
}

// Get fetches one project entry by project name.
func (s *Store) Get(projectID string) (types.ProjectEntry, error) {
	var entry types.ProjectEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data := b.Get([]byte(projectID))
		if data == nil {
			return fmt.Errorf("registry: project not found: %s", projectID)
		}
		return json.Unmarshal(data, &entry)
	})
	return entry, err
}

// List returns all known project entries.
func (s *Store) List() ([]types.ProjectEntry, error) {
	var entries []types.ProjectEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		return b.ForEach(func(k, v []byte) error {
			var entry types.ProjectEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Delete removes a project entry; idempotent.
func (s *Store) Delete(projectID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		return b.Delete([]byte(projectID))
	})
}
