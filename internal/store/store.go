// Package store persists raw document bytes under content-addressed paths.
// The store survives independently of the vector index; stray objects left
// behind by a crash are harmless because nothing references them.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no document with the given id is stored.
var ErrNotFound = errors.New("document not found")

// Info describes a stored document.
type Info struct {
	DocumentID string
	Size       int64
	Path       string
}

// Store is a content-addressed file store for original document bytes.
type Store struct {
	rootDir string
}

// NewStore creates or opens a document store rooted at the given directory.
func NewStore(rootDir string) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", rootDir, err)
	}
	return &Store{rootDir: rootDir}, nil
}

// DocumentID derives the content-addressed id for raw bytes. Identical
// content always yields the same id.
func DocumentID(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Save writes the bytes under their content hash and returns the document id.
// Re-saving identical content overwrites the same object and is not an error.
func (s *Store) Save(content []byte) (string, error) {
	id := DocumentID(content)
	if err := os.WriteFile(s.objectPath(id), content, 0o644); err != nil {
		return "", fmt.Errorf("write document %s: %w", id, err)
	}
	return id, nil
}

// Load returns the stored bytes for a document id, or ErrNotFound.
func (s *Store) Load(id string) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}
	return data, nil
}

// Stat returns size information for a stored document, or ErrNotFound.
func (s *Store) Stat(id string) (Info, error) {
	path := s.objectPath(id)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return Info{}, fmt.Errorf("stat document %s: %w", id, err)
	}
	return Info{DocumentID: id, Size: fi.Size(), Path: path}, nil
}

// Delete removes the stored bytes. Deleting an absent id is a no-op.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.objectPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (s *Store) objectPath(id string) string {
	return filepath.Join(s.rootDir, id+".pdf")
}
