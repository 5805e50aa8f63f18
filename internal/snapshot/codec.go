// Package snapshot exports boards to JSON documents in a snapshot directory
// and imports external edits back into the store, keeping the two in sync by
// checksum.
package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/starford/tafl/internal/models"
)

// formatVersion is bumped when the document layout changes incompatibly.
const formatVersion = 1

// Document is one board serialized with all its contents.
type Document struct {
	Version    int                 `json:"version"`
	Board      models.Board        `json:"board"`
	Cards      []*models.Card      `json:"cards"`
	Connectors []*models.Connector `json:"connectors"`
}

// Encode serializes a document to indented JSON.
func Encode(doc *Document) ([]byte, error) {
	doc.Version = formatVersion
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses and validates a snapshot document. Every entity must pass
// model validation and belong to the document's board.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if doc.Version > formatVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported %d", doc.Version, formatVersion)
	}
	if err := doc.Board.Validate(); err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	for _, c := range doc.Cards {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		if c.BoardID != doc.Board.ID {
			return nil, fmt.Errorf("card %s belongs to board %s, not %s", c.ID, c.BoardID, doc.Board.ID)
		}
	}
	for _, c := range doc.Connectors {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("connector %s: %w", c.ID, err)
		}
		if c.BoardID != doc.Board.ID {
			return nil, fmt.Errorf("connector %s belongs to board %s, not %s", c.ID, c.BoardID, doc.Board.ID)
		}
	}
	return &doc, nil
}
