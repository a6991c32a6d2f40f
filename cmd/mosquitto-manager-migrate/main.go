package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/storage"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

var (
	dataDir    = flag.String("data-dir", "/mymosquitto", "Manager data directory")
	statePath  = flag.String("state", "", "Legacy state.json to import (default: <data-dir>/state.json)")
	overwrite  = flag.Bool("overwrite", false, "Replace a document that is already stored")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to back up the database before migration (default: <data-dir>/manager.db.backup)")
)

func main() {
	flag.Parse()

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("migrate")

	src := *statePath
	if src == "" {
		src = filepath.Join(*dataDir, storage.LegacyStateFile)
	}
	logger.Info().
		Str("state", src).
		Str("data_dir", *dataDir).
		Bool("dry_run", *dryRun).
		Msg("Mosquitto Manager state migration")

	doc, err := inspect(src)
	if err != nil {
		logger.Fatal().Err(err).Msg("Legacy state cannot be imported")
	}
	logger.Info().
		Int("listeners", len(doc.Listeners)).
		Int("users", len(doc.Users)).
		Int("acl_profiles", len(doc.AccessProfiles)).
		Int("dashboard_users", len(doc.Administrators)).
		Msg("Found legacy document")

	if *dryRun {
		logger.Info().Msg("Dry run completed. No changes made. Run without -dry-run to import.")
		return
	}

	store, err := storage.NewBoltStore(*dataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	backupFile := *backupPath
	if backupFile == "" {
		backupFile = store.Path() + ".backup"
	}
	if err := backup(store, backupFile); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create backup")
	}
	logger.Info().Str("backup", backupFile).Msg("Backup created")

	imported, err := store.ImportLegacy(src, *overwrite)
	if err != nil {
		logger.Fatal().Err(err).Msg("Migration failed")
	}
	if !imported {
		logger.Warn().Msg("A document is already stored; nothing imported. Use -overwrite to replace it.")
		return
	}

	event := logger.Info()
	if at, err := store.UpdatedAt(); err == nil {
		event = event.Time("updated_at", at)
	}
	event.Msg("Migration completed. The legacy file was left in place for rollback.")
}

// inspect decodes and validates the legacy file without touching the store
func inspect(path string) (*types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorruptDocument, err)
	}
	if _, ok := fields["global_settings"]; !ok {
		return nil, fmt.Errorf("%s uses a schema without global_settings and would be ignored", path)
	}

	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorruptDocument, err)
	}
	if doc.Listeners == nil {
		doc.Listeners = []types.Listener{}
	}
	if err := types.Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func backup(store *storage.BoltStore, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := store.Backup(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
