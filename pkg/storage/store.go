package storage

import (
	"errors"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

// ErrCorruptDocument is returned when the stored document cannot be decoded.
// A corrupt document is never replaced silently.
var ErrCorruptDocument = errors.New("stored configuration document is corrupt")

// Store defines the interface for configuration document storage
// This is implemented by BoltDB-backed storage
type Store interface {
	// LoadDocument returns the current document. A store that holds no
	// document yet returns the default document and persists it.
	LoadDocument() (*types.Document, error)

	// SaveDocument validates and fully replaces the stored document
	SaveDocument(doc *types.Document) error

	// Utility
	Close() error
}
