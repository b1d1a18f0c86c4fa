// Package store persists conversation transcripts so sessions can be
// resumed. Uses pure-Go SQLite (modernc.org/sqlite).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashutoshrp06/friday/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps one row per conversation turn.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return newStore(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id   TEXT NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			tokens       INTEGER NOT NULL DEFAULT 0,
			tools_used   TEXT NOT NULL DEFAULT '[]',
			tool_results TEXT NOT NULL DEFAULT '{}',
			created_at   INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id)`)
	return err
}

// SaveTurn appends a turn to a session's transcript.
func (s *SQLiteStore) SaveTurn(ctx context.Context, sessionID string, turn types.ConversationTurn) error {
	toolsUsed, err := json.Marshal(nonNil(turn.ToolsUsed))
	if err != nil {
		return fmt.Errorf("marshal tools used: %w", err)
	}
	results := turn.ToolResults
	if results == nil {
		results = map[string]any{}
	}
	toolResults, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns (session_id, role, content, tokens, tools_used, tool_results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, string(turn.Role), turn.Content, turn.Tokens,
		string(toolsUsed), string(toolResults), turn.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// LoadTurns returns a session's turns, oldest first. An unknown session
// yields no turns.
func (s *SQLiteStore) LoadTurns(ctx context.Context, sessionID string) ([]types.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tokens, tools_used, tool_results, created_at
		FROM turns WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []types.ConversationTurn
	for rows.Next() {
		var (
			turn        types.ConversationTurn
			role        string
			toolsUsed   string
			toolResults string
			createdAt   int64
		)
		if err := rows.Scan(&role, &turn.Content, &turn.Tokens, &toolsUsed, &toolResults, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = types.Role(role)
		turn.Timestamp = time.Unix(0, createdAt)
		if err := json.Unmarshal([]byte(toolsUsed), &turn.ToolsUsed); err != nil {
			return nil, fmt.Errorf("decode tools used: %w", err)
		}
		if len(turn.ToolsUsed) == 0 {
			turn.ToolsUsed = nil
		}
		if toolResults != "{}" {
			if err := json.Unmarshal([]byte(toolResults), &turn.ToolResults); err != nil {
				return nil, fmt.Errorf("decode tool results: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// SessionInfo summarizes a stored session.
type SessionInfo struct {
	ID         string
	Turns      int
	LastActive time.Time
}

// ListSessions returns stored sessions, most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MAX(created_at)
		FROM turns GROUP BY session_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			info SessionInfo
			last int64
		)
		if err := rows.Scan(&info.ID, &info.Turns, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.LastActive = time.Unix(0, last)
		out = append(out, info)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
