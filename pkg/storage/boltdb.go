package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
	bolt "go.etcd.io/bbolt"
)

const (
	// DatabaseFile is the bolt file name inside the data directory
	DatabaseFile = "manager.db"

	// LegacyStateFile is the JSON file written by earlier releases
	LegacyStateFile = "state.json"
)

var (
	// Bucket names
	bucketDocument = []byte("document")
	bucketMeta     = []byte("meta")

	keyCurrent      = []byte("current")
	keyUpdatedAt    = []byte("updated_at")
	keyLegacyImport = []byte("legacy_import")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db      *bolt.DB
	dataDir string
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDocument, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, dataDir: dataDir}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.db.Path()
}

// LoadDocument returns the stored document. On first use it imports a
// legacy state.json from the data directory if one exists, otherwise it
// stores the default document. A document written by a release that
// predates global settings is replaced by the default document.
func (s *BoltStore) LoadDocument() (*types.Document, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketDocument).Get(keyCurrent); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	logger := log.WithComponent("storage")

	if data == nil {
		imported, err := s.ImportLegacy(filepath.Join(s.dataDir, LegacyStateFile), false)
		if err != nil {
			return nil, err
		}
		if !imported {
			logger.Info().Msg("No stored document, initializing defaults")
			if err := s.SaveDocument(types.DefaultDocument()); err != nil {
				return nil, err
			}
		}
		return s.LoadDocument()
	}

	doc, current, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if !current {
		logger.Warn().Msg("Stored document uses an old schema, resetting to defaults")
		doc = types.DefaultDocument()
		if err := s.SaveDocument(doc); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// SaveDocument validates doc and replaces the stored document
func (s *BoltStore) SaveDocument(doc *types.Document) error {
	if err := types.Validate(doc); err != nil {
		return err
	}

	data, err := json.MarshalIndent(normalize(doc.Clone()), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketDocument).Put(keyCurrent, data); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
		return tx.Bucket(bucketMeta).Put(keyUpdatedAt, stamp)
	})
}

// UpdatedAt returns the time of the last SaveDocument, zero if none
func (s *BoltStore) UpdatedAt() (time.Time, error) {
	var stamp time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyUpdatedAt)
		if v == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return err
		}
		stamp = t
		return nil
	})
	return stamp, err
}

// ImportLegacy loads a state.json file into the store. Unless overwrite is
// set, the import only happens while the store holds no document. It
// returns false without error when the file does not exist.
func (s *BoltStore) ImportLegacy(path string, overwrite bool) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read legacy state: %w", err)
	}

	logger := log.WithComponent("storage")

	doc, current, err := decodeDocument(data)
	if err != nil {
		return false, fmt.Errorf("legacy state %s: %w", path, err)
	}
	if !current {
		logger.Warn().Str("path", path).Msg("Legacy state uses an old schema, ignoring it")
		return false, nil
	}

	if !overwrite {
		var exists bool
		_ = s.db.View(func(tx *bolt.Tx) error {
			exists = tx.Bucket(bucketDocument).Get(keyCurrent) != nil
			return nil
		})
		if exists {
			return false, nil
		}
	}

	if err := s.SaveDocument(doc); err != nil {
		return false, fmt.Errorf("failed to import legacy state: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyLegacyImport, []byte(path))
	})
	if err != nil {
		return false, err
	}

	logger.Info().Str("path", path).Msg("Imported legacy state")
	return true, nil
}

// Backup writes a consistent copy of the database to w
func (s *BoltStore) Backup(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	return n, err
}

// decodeDocument parses stored JSON. The second return value is false for
// documents that lack global settings.
func decodeDocument(data []byte) (*types.Document, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if _, ok := fields["global_settings"]; !ok {
		return nil, false, nil
	}

	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return normalize(&doc), true, nil
}

// normalize replaces nil collections so that encoded documents carry
// empty arrays rather than null.
func normalize(doc *types.Document) *types.Document {
	if doc.Listeners == nil {
		doc.Listeners = []types.Listener{}
	}
	if doc.Users == nil {
		doc.Users = []types.User{}
	}
	if doc.AccessProfiles == nil {
		doc.AccessProfiles = []types.AccessProfile{}
	}
	if doc.Administrators == nil {
		doc.Administrators = []types.Administrator{}
	}
	if doc.GlobalSettings.LogTypes == nil {
		doc.GlobalSettings.LogTypes = []string{}
	}
	return doc
}
