package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/opencode-ai/chatsync/pkg/types"
)

// SQLiteGateway stores chats in a single sqlite table.
type SQLiteGateway struct {
	db *sql.DB
}

var _ Gateway = (*SQLiteGateway)(nil)

// NewSQLiteGateway opens dsn and creates the schema when missing.
func NewSQLiteGateway(dsn string) (*SQLiteGateway, error) {
	if dsn == "" {
		return nil, errors.New("sqlite gateway: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite gateway: open")
	}
	g := &SQLiteGateway{db: db}
	if err := g.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// SQLiteDSNForFile builds a WAL-mode DSN for the database at path,
// creating its directory.
func SQLiteDSNForFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("sqlite gateway: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.Wrap(err, "sqlite gateway: create directory")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (g *SQLiteGateway) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chats (
		  chat_id TEXT PRIMARY KEY,
		  updated_at_ns INTEGER NOT NULL,
		  context_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chats_by_updated
		  ON chats(updated_at_ns DESC, chat_id ASC);`,
	}
	for _, st := range stmts {
		if _, err := g.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite gateway: migrate")
		}
	}
	return nil
}

// Read loads the chat with the given id.
func (g *SQLiteGateway) Read(ctx context.Context, id string) (types.Context, error) {
	var raw string
	err := g.db.QueryRowContext(ctx, `SELECT context_json FROM chats WHERE chat_id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Context{}, ErrNotFound
	}
	if err != nil {
		return types.Context{}, errors.Wrap(err, "sqlite gateway: read chat")
	}

	var c types.Context
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return types.Context{}, errors.Wrapf(err, "sqlite gateway: decode chat %s", id)
	}
	if c.History == nil {
		c.History = []types.Message{}
	}
	return c, nil
}

// Write upserts c.
func (g *SQLiteGateway) Write(ctx context.Context, c types.Context) error {
	if !ValidID(c.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, c.ID)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "sqlite gateway: encode chat")
	}

	_, err = g.db.ExecContext(ctx, `
		INSERT INTO chats (chat_id, updated_at_ns, context_json)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			updated_at_ns = excluded.updated_at_ns,
			context_json = excluded.context_json
	`, c.ID, time.Now().UnixNano(), string(data))
	if err != nil {
		return errors.Wrap(err, "sqlite gateway: upsert chat")
	}
	return nil
}

// Delete removes the chat row.
func (g *SQLiteGateway) Delete(ctx context.Context, id string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?`, id); err != nil {
		return errors.Wrap(err, "sqlite gateway: delete chat")
	}
	return nil
}

// List returns chat ids, most recently written first.
func (g *SQLiteGateway) List(ctx context.Context) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT chat_id FROM chats ORDER BY updated_at_ns DESC, chat_id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite gateway: list chats")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "sqlite gateway: scan chat id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "sqlite gateway: list chats")
}

// Close closes the database.
func (g *SQLiteGateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
