package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/dsam/internal/model"
)

// SQLiteStore persists engine snapshots to a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		content           TEXT NOT NULL,
		created_at        TEXT NOT NULL,
		type              TEXT NOT NULL DEFAULT 'conversation',
		compression_level INTEGER NOT NULL DEFAULT 5,
		relevance_score   REAL NOT NULL DEFAULT 0,
		original_tokens   INTEGER NOT NULL DEFAULT 0,
		compressed_tokens INTEGER NOT NULL DEFAULT 0,
		compression_ratio REAL NOT NULL DEFAULT 0,
		themes            TEXT,
		tags              TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);

	CREATE TABLE IF NOT EXISTS associations (
		memory_id     TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		seq           INTEGER NOT NULL,
		target_id     TEXT NOT NULL,
		strength      REAL NOT NULL,
		type          TEXT NOT NULL,
		reason        TEXT,
		last_accessed TEXT,
		PRIMARY KEY (memory_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_assoc_target ON associations(target_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot replaces the persisted state with memories.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, memories []model.Memory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM associations`); err != nil {
		return fmt.Errorf("clear associations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	for _, m := range memories {
		if err := insertMemory(ctx, tx, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Upsert writes memories without touching the rest of the snapshot.
func (s *SQLiteStore) Upsert(ctx context.Context, memories []model.Memory) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, m := range memories {
		if _, err := tx.ExecContext(ctx, `DELETE FROM associations WHERE memory_id = ?`, m.ID); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, m.ID); err != nil {
			return 0, err
		}
		if err := insertMemory(ctx, tx, m); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(memories), nil
}

func insertMemory(ctx context.Context, tx *sql.Tx, m model.Memory) error {
	themes, _ := json.Marshal(m.Metadata.Context)
	tags, _ := json.Marshal(m.Metadata.Tags)

	_, err := tx.ExecContext(ctx,
		`INSERT INTO memories (id, content, created_at, type, compression_level, relevance_score,
		                       original_tokens, compressed_tokens, compression_ratio, themes, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Content), m.Timestamp.UTC().Format(time.RFC3339Nano), string(m.Type),
		m.CompressionLevel, m.RelevanceScore,
		m.Metadata.OriginalTokens, m.Metadata.CompressedTokens, m.Metadata.CompressionRatio,
		string(themes), string(tags))
	if err != nil {
		return fmt.Errorf("insert memory %s: %w", m.ID, err)
	}

	for i, a := range m.Associations {
		var lastAccessed *string
		if !a.LastAccessed.IsZero() {
			v := a.LastAccessed.UTC().Format(time.RFC3339Nano)
			lastAccessed = &v
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO associations (memory_id, seq, target_id, strength, type, reason, last_accessed)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, i, a.TargetID, a.Strength, string(a.Type), a.Reason, lastAccessed)
		if err != nil {
			return fmt.Errorf("insert association: %w", err)
		}
	}
	return nil
}

// LoadSnapshot returns every persisted memory, oldest first.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]model.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, created_at, type, compression_level, relevance_score,
		        original_tokens, compressed_tokens, compression_ratio, themes, tags
		 FROM memories ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.Memory
	byID := map[string]int{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		byID[m.ID] = len(memories)
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := s.db.QueryContext(ctx,
		`SELECT memory_id, target_id, strength, type, reason, last_accessed
		 FROM associations ORDER BY memory_id, seq`)
	if err != nil {
		return nil, err
	}
	defer arows.Close()

	for arows.Next() {
		var memoryID, assocType string
		var reason, lastAccessed sql.NullString
		var a model.Association
		if err := arows.Scan(&memoryID, &a.TargetID, &a.Strength, &assocType, &reason, &lastAccessed); err != nil {
			return nil, err
		}
		a.Type = model.AssociationType(assocType)
		if reason.Valid {
			a.Reason = reason.String
		}
		if lastAccessed.Valid {
			a.LastAccessed, _ = time.Parse(time.RFC3339Nano, lastAccessed.String)
		}
		if i, ok := byID[memoryID]; ok {
			memories[i].Associations = append(memories[i].Associations, a)
		}
	}
	return memories, arows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var content, createdAt, memType string
	var themes, tags sql.NullString

	err := row.Scan(
		&m.ID, &content, &createdAt, &memType, &m.CompressionLevel, &m.RelevanceScore,
		&m.Metadata.OriginalTokens, &m.Metadata.CompressedTokens, &m.Metadata.CompressionRatio,
		&themes, &tags,
	)
	if err != nil {
		return m, err
	}

	m.Content = json.RawMessage(content)
	m.Type = model.MemoryType(memType)
	m.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
	if themes.Valid {
		json.Unmarshal([]byte(themes.String), &m.Metadata.Context)
	}
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &m.Metadata.Tags)
	}
	return m, nil
}
