// Package store implements the content-addressed tree store and its
// three-way merge primitive. Blobs live in a go-git object storer; trees
// are immutable path->blob maps addressed by a hash over their entries.
package store

import (
	"fmt"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Store owns the blob storage shared by every tree of one repository.
// It is not safe for concurrent use.
type Store struct {
	objects storage.Storer
	empty   *Tree
}

// NewStore creates a store backed by in-memory object storage.
func NewStore() *Store {
	s := &Store{objects: memory.NewStorage()}
	s.empty = newTree(s, nil, nil)
	return s
}

// WriteBlob stores content and returns its hash. Writing the same content
// twice is a no-op returning the same hash.
func (s *Store) WriteBlob(content []byte) (plumbing.Hash, error) {
	obj := s.objects.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to open blob writer: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to close blob writer: %w", err)
	}
	return s.objects.SetEncodedObject(obj)
}

// ReadBlob returns the content stored under hash.
func (s *Store) ReadBlob(h plumbing.Hash) ([]byte, error) {
	obj, err := s.objects.EncodedObject(plumbing.BlobObject, h)
	if err != nil {
		return nil, fmt.Errorf("blob %s not found: %w", h.String()[:7], err)
	}
	r, err := obj.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", h.String()[:7], err)
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", h.String()[:7], err)
	}
	return content, nil
}

// Empty returns the canonical empty tree.
func (s *Store) Empty() *Tree {
	return s.empty
}

// BuildTree writes every file's content as a blob and returns the resulting
// tree. Intended for snapshots and test fixtures.
func (s *Store) BuildTree(files map[string][]byte) (*Tree, error) {
	entries := make(map[string]plumbing.Hash, len(files))
	for path, content := range files {
		h, err := s.WriteBlob(content)
		if err != nil {
			return nil, err
		}
		entries[path] = h
	}
	return newTree(s, entries, nil), nil
}
