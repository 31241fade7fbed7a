package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/livedesk/internal/domain"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens the journal at dsn and migrates it.
func NewSQLiteJournal(dsn string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			chat_id TEXT,
			session_id TEXT,
			message_id TEXT,
			ts INTEGER NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_events_chat ON events(chat_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := j.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// RecordEvent appends one entry.
func (j *SQLiteJournal) RecordEvent(ctx context.Context, entry *domain.ActivityEntry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (event_id, type, chat_id, session_id, message_id, ts, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EventID, entry.Type, nullString(entry.ChatID), nullString(entry.SessionID),
		nullString(entry.MessageID), entry.Ts, nullStringBytes(entry.Payload))
	return err
}

// RecentEvents returns up to limit entries, newest first.
func (j *SQLiteJournal) RecentEvents(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	query := `SELECT event_id, type, chat_id, session_id, message_id, ts, payload FROM events ORDER BY ts DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.ActivityEntry{}
	for rows.Next() {
		var entry domain.ActivityEntry
		var chatID, sessionID, messageID, payload sql.NullString
		if err := rows.Scan(&entry.EventID, &entry.Type, &chatID, &sessionID, &messageID, &entry.Ts, &payload); err != nil {
			return nil, err
		}
		entry.ChatID = chatID.String
		entry.SessionID = sessionID.String
		entry.MessageID = messageID.String
		if payload.Valid {
			entry.Payload = []byte(payload.String)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RecentMessageIDs returns the ids of the last limit messages journaled for a
// chat, oldest first.
func (j *SQLiteJournal) RecentMessageIDs(ctx context.Context, chatID string, limit int) ([]string, error) {
	query := `SELECT message_id FROM events WHERE chat_id = ? AND message_id IS NOT NULL ORDER BY ts DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := j.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, k := 0, len(ids)-1; i < k; i, k = i+1, k-1 {
		ids[i], ids[k] = ids[k], ids[i]
	}
	return ids, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
