package session

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SQLiteStore is a SQLite-backed conversation store. It implements the
// same total Load/Save contract as MemoryStore so deployments that want
// sessions to survive restarts can swap it in behind the Store interface.
//
// Register a driver before use: mattn/go-sqlite3 builds register "sqlite3",
// pure-Go builds and tests register modernc.org/sqlite as "sqlite".
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath using the given
// database/sql driver name and prepares the schema.
func NewSQLiteStore(driver, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id                 TEXT PRIMARY KEY,
		pending_escalation INTEGER NOT NULL DEFAULT 0,
		updated_at         TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the stored context for sessionID, registering a fresh empty
// one on first access. Per the store contract this is a total operation:
// database failures degrade to an empty context and are only logged.
func (s *SQLiteStore) Load(sessionID string) *Context {
	ctx := &Context{}

	var pending int
	err := s.db.QueryRow(`SELECT pending_escalation FROM sessions WHERE id = ?`, sessionID).Scan(&pending)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(
			`INSERT INTO sessions (id, pending_escalation, updated_at) VALUES (?, 0, ?)`,
			sessionID, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			s.logger.Error("register session failed", "session", sessionID, "error", err)
		}
		return ctx
	case err != nil:
		s.logger.Error("load session failed", "session", sessionID, "error", err)
		return ctx
	}
	ctx.PendingEscalation = pending != 0

	rows, err := s.db.Query(
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		s.logger.Error("load history failed", "session", sessionID, "error", err)
		return ctx
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			s.logger.Error("scan message failed", "session", sessionID, "error", err)
			continue
		}
		ctx.History = append(ctx.History, m)
	}
	if err := rows.Err(); err != nil {
		// A mid-iteration failure means the history is incomplete; better
		// an empty context than a silently truncated transcript.
		s.logger.Error("load history failed", "session", sessionID, "error", err)
		ctx.History = nil
	}

	return ctx
}

// Save replaces the stored context unconditionally, rewriting the session's
// rows in one transaction so readers never observe a partial history.
func (s *SQLiteStore) Save(sessionID string, ctx *Context) {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("save session failed", "session", sessionID, "error", err)
		return
	}
	defer tx.Rollback()

	pending := 0
	if ctx.PendingEscalation {
		pending = 1
	}

	if _, err := tx.Exec(`
		INSERT INTO sessions (id, pending_escalation, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET pending_escalation = excluded.pending_escalation,
			updated_at = excluded.updated_at`,
		sessionID, pending, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		s.logger.Error("save session failed", "session", sessionID, "error", err)
		return
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		s.logger.Error("clear history failed", "session", sessionID, "error", err)
		return
	}

	for i, m := range ctx.History {
		if _, err := tx.Exec(
			`INSERT INTO messages (session_id, seq, role, content) VALUES (?, ?, ?, ?)`,
			sessionID, i, m.Role, m.Content,
		); err != nil {
			s.logger.Error("save message failed", "session", sessionID, "seq", i, "error", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit session failed", "session", sessionID, "error", err)
	}
}
