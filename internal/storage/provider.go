// Package storage defines the snapshot-directory file-system abstraction.
package storage

import "github.com/starford/tafl/internal/models"

// Provider is the interface for snapshot file operations.
type Provider interface {
	// List returns metadata for every .json file under dir (relative to the
	// snapshot root).
	List(dir string) ([]models.SnapshotMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to the root).
	Move(oldPath, newPath string) error
}
