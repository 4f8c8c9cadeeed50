package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kingdavid28/chatstatus/internal/store"
)

//go:embed schema.sql
var schema string

// Store persists documents as one (path, field) row per field, which makes
// Merge a per-field upsert that never touches sibling fields. SQLite has no
// change feed, so change notification is a process-local Notifier fan-out
// fired after each successful write.
type Store struct {
	db       *sql.DB
	notifier *store.Notifier
}

var _ store.Store = (*Store)(nil)

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return newStore(db)
}

func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, notifier: store.NewNotifier()}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Read(ctx context.Context, path string) (store.Document, error) {
	doc, err := s.readExact(ctx, path)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		return doc, nil
	}
	return s.readChildren(ctx, path)
}

func (s *Store) readExact(ctx context.Context, path string) (store.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM documents WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	defer rows.Close()

	var doc store.Document
	for rows.Next() {
		var field, raw string
		if err := rows.Scan(&field, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if doc == nil {
			doc = make(store.Document)
		}
		v, err := decodeValue(field, raw)
		if err != nil {
			return nil, err
		}
		doc[field] = v
	}
	return doc, rows.Err()
}

func (s *Store) readChildren(ctx context.Context, path string) (store.Document, error) {
	prefix := path + "/"
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, field, value FROM documents WHERE path LIKE ? ESCAPE '\' ORDER BY path`,
		likePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("query subtree: %w", err)
	}
	defer rows.Close()

	var out store.Document
	for rows.Next() {
		var rowPath, field, raw string
		if err := rows.Scan(&rowPath, &field, &raw); err != nil {
			return nil, fmt.Errorf("scan subtree: %w", err)
		}
		v, err := decodeValue(field, raw)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = make(store.Document)
		}
		node := out
		parts := strings.Split(rowPath[len(prefix):], "/")
		for _, p := range parts {
			child, ok := node[p].(store.Document)
			if !ok {
				child = make(store.Document)
				node[p] = child
			}
			node = child
		}
		node[field] = v
	}
	return out, rows.Err()
}

func (s *Store) Write(ctx context.Context, path string, value store.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("clear document: %w", err)
	}
	if err := upsertFields(ctx, tx, path, value); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write: %w", err)
	}
	s.notify(path)
	return nil
}

func (s *Store) Merge(ctx context.Context, path string, partial store.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	if err := upsertFields(ctx, tx, path, partial); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	s.notify(path)
	return nil
}

func (s *Store) Subscribe(path string, onChange func(store.Document)) (func(), error) {
	return s.notifier.Subscribe(path, onChange), nil
}

func (s *Store) notify(path string) {
	s.notifier.Notify(path, func(subPath string) (store.Document, error) {
		return s.Read(context.Background(), subPath)
	})
}

func upsertFields(ctx context.Context, tx *sql.Tx, path string, doc store.Document) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for field, v := range doc {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", field, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (path, field, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(path, field) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			path, field, string(raw), now,
		); err != nil {
			return fmt.Errorf("upsert field %s: %w", field, err)
		}
	}
	return nil
}

func decodeValue(field, raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode field %s: %w", field, err)
	}
	return v, nil
}

// likePattern escapes LIKE metacharacters in the prefix and appends the
// wildcard.
func likePattern(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
