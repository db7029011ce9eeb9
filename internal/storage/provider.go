// Package storage reads Markdown documents from a vault directory.
package storage

import "github.com/starford/cardsync/internal/models"

// Provider is the interface for vault document access.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
}
