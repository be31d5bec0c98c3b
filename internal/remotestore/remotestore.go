// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package remotestore provides durable chat persistence for authenticated
// users, backed by SQLite.
//
// Each record is scoped by owner: writes always match on both chat id and
// user id. Reads by id alone exist solely for the share feature, which is
// public-by-id on purpose.
package remotestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/splain/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when no chat matches the given id (and owner,
	// for owner-scoped operations).
	ErrNotFound = errors.New("chat not found")
)

// =============================================================================
// STORE
// =============================================================================

// Store is a SQLite-backed chat store.
type Store struct {
	db *sql.DB
}

// Open creates a store at the given database path, applying pragmas and
// creating the schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates the chats table if it does not exist.
func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	messages   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_user_updated ON chats(user_id, updated_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Insert persists a new chat for userID and returns the store-assigned
// durable id. The record's own id field is ignored.
func (s *Store) Insert(ctx context.Context, userID string, rec model.ChatRecord) (string, error) {
	messages, err := marshalMessages(rec.Messages)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, rec.Title, messages, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert chat: %w", err)
	}
	return id, nil
}

// Update replaces the title and messages of an existing chat owned by
// userID and bumps updated_at. Returns ErrNotFound if no such chat exists
// for that owner.
func (s *Store) Update(ctx context.Context, userID, id string, rec model.ChatRecord) error {
	messages, err := marshalMessages(rec.Messages)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ?, messages = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		rec.Title, messages, time.Now().UTC().Format(time.RFC3339Nano), id, userID)
	if err != nil {
		return fmt.Errorf("failed to update chat: %w", err)
	}
	return requireRow(res)
}

// Delete removes a chat owned by userID. Returns ErrNotFound if no such
// chat exists for that owner.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chats WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return requireRow(res)
}

// requireRow converts a zero-row result into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// ListByUser returns all chats owned by userID, most recently updated first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, messages, created_at, updated_at
		 FROM chats WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var recs []model.ChatRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Get returns a chat by id alone, with no ownership check. This backs the
// share feature: anyone holding a durable chat id may read it.
func (s *Store) Get(ctx context.Context, id string) (model.ChatRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, messages, created_at, updated_at
		 FROM chats WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChatRecord{}, ErrNotFound
	}
	return rec, err
}

// =============================================================================
// ROW MAPPING
// =============================================================================

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.ChatRecord, error) {
	var (
		rec                  model.ChatRecord
		messages             string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&rec.ID, &rec.UserID, &rec.Title, &messages, &createdAt, &updatedAt); err != nil {
		return model.ChatRecord{}, err
	}

	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return model.ChatRecord{}, fmt.Errorf("failed to decode messages for chat %s: %w", rec.ID, err)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.ChatRecord{}, fmt.Errorf("failed to parse created_at for chat %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return model.ChatRecord{}, fmt.Errorf("failed to parse updated_at for chat %s: %w", rec.ID, err)
	}
	return rec, nil
}

// marshalMessages encodes the message list, normalizing nil to an empty
// array so the column is always valid JSON.
func marshalMessages(msgs []model.RecordMessage) (string, error) {
	if msgs == nil {
		msgs = []model.RecordMessage{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("failed to encode messages: %w", err)
	}
	return string(data), nil
}
