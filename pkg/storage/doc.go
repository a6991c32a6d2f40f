/*
Package storage provides BoltDB-backed persistence for the Mosquitto Manager
configuration document.

The manager persists exactly one aggregate: the configuration document. It
is stored as JSON under a fixed key so that the bytes in the database are the
same shape as an exported backup or a legacy state.json file.

# Architecture

	┌──────────────── BOLTDB STORAGE ────────────────┐
	│                                                  │
	│  <dataDir>/manager.db                            │
	│                                                  │
	│  ┌──────────────────────────────────┐           │
	│  │ document                          │           │
	│  │   current  -> Document JSON       │           │
	│  ├──────────────────────────────────┤           │
	│  │ meta                              │           │
	│  │   updated_at    -> RFC3339 stamp  │           │
	│  │   legacy_import -> source path    │           │
	│  └──────────────────────────────────┘           │
	└──────────────────────────────────────────────────┘

Writes are full replacements inside a single db.Update transaction, so a
reader never observes a partially written document.

# First Load

LoadDocument on an empty store looks for <dataDir>/state.json. If present
it is imported once; otherwise the default document (one anonymous listener
on 1883) is stored. A stored document without "global_settings" comes from
a release that predates the current schema and is replaced by the default
document with a warning. Undecodable JSON is returned as ErrCorruptDocument
and is never overwritten.

# Usage

	store, err := storage.NewBoltStore("/mymosquitto")
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.LoadDocument()
	if err != nil {
		return err
	}
	doc.Users = append(doc.Users, types.User{Username: "sensor", Password: "s3cret", Enabled: true})
	if err := store.SaveDocument(doc); err != nil {
		return err
	}

SaveDocument validates the document first; malformed documents are rejected
with types.ErrMalformedDocument and nothing is written.

# Concurrency

BoltDB allows one writer and many readers. The file lock is exclusive per
process, so opening the same data directory twice blocks until the timeout
expires.
*/
package storage
