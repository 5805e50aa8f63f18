package models

import "time"

// SnapshotMetadata describes one board snapshot file on disk.
type SnapshotMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
