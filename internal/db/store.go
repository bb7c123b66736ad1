package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/madhatter5501/promptflow/agents"
	"github.com/madhatter5501/promptflow/kanban"
)

// Store implements credential storage and the audit log using SQLite.
type Store struct {
	db *DB
}

// NewStore creates a new SQLite-backed store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// --- Credentials ---

// GetCredential retrieves a credential by key. It reports false when the
// key has never been set.
func (s *Store) GetCredential(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get credential %s: %w", key, err)
	}
	return value, true, nil
}

// SetCredential stores or replaces a credential.
func (s *Store) SetCredential(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("credential key is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set credential %s: %w", key, err)
	}
	return nil
}

// DeleteCredential removes a credential. Deleting a missing key is not an error.
func (s *Store) DeleteCredential(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", key, err)
	}
	return nil
}

// CredentialKeys lists stored keys without their values.
func (s *Store) CredentialKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM credentials ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Audit Logging ---

// AddAuditEntry records a dispatch audit entry.
func (s *Store) AddAuditEntry(ctx context.Context, entry *agents.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_audit_log (
			id, run_id, card_id, dir, dispatch_mode, event_type,
			prompt_hash, event_data, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, nullString(entry.RunID), nullString(entry.CardID), entry.Dir,
		string(entry.DispatchMode), string(entry.EventType),
		entry.PromptHash, nullString(entry.EventData), entry.DurationMs, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to add audit entry: %w", err)
	}
	return nil
}

// GetAuditEntriesByRun returns all audit entries for a run, oldest first.
func (s *Store) GetAuditEntriesByRun(ctx context.Context, runID string) ([]agents.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, card_id, dir, dispatch_mode, event_type,
			prompt_hash, event_data, duration_ms, created_at
		FROM dispatch_audit_log WHERE run_id = ? ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

// GetRecentAuditEntries returns the most recent audit entries.
func (s *Store) GetRecentAuditEntries(ctx context.Context, limit int) ([]agents.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, card_id, dir, dispatch_mode, event_type,
			prompt_hash, event_data, duration_ms, created_at
		FROM dispatch_audit_log ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

func scanAuditEntries(rows *sql.Rows) ([]agents.AuditEntry, error) {
	var entries []agents.AuditEntry
	for rows.Next() {
		var e agents.AuditEntry
		var runID, cardID, eventData sql.NullString
		var durationMs sql.NullInt64
		var mode, eventType string

		err := rows.Scan(
			&e.ID, &runID, &cardID, &e.Dir, &mode, &eventType,
			&e.PromptHash, &eventData, &durationMs, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		e.DispatchMode = kanban.DispatchMode(mode)
		e.EventType = agents.AuditEventType(eventType)
		if runID.Valid {
			e.RunID = runID.String
		}
		if cardID.Valid {
			e.CardID = cardID.String
		}
		if eventData.Valid {
			e.EventData = eventData.String
		}
		if durationMs.Valid {
			e.DurationMs = int(durationMs.Int64)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ agents.AuditStore = (*Store)(nil)
