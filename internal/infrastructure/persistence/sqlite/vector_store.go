// Package sqlite 提供基于 SQLite 的回合向量命名空间
//
// 适用于单机部署：向量以小端 float32 BLOB 存储，检索时在进程内计算余弦相似度。
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"

	"rpg-narrative-api/internal/application/memory"
)

// openDB 便于测试注入
var openDB = sql.Open

const schema = `
CREATE TABLE IF NOT EXISTS turn_vectors (
	namespace      TEXT    NOT NULL,
	turn_id        TEXT    NOT NULL,
	sequence_index INTEGER NOT NULL,
	timestamp_ms   INTEGER NOT NULL,
	is_combat      INTEGER NOT NULL DEFAULT 0,
	dim            INTEGER NOT NULL,
	vector         BLOB    NOT NULL,
	PRIMARY KEY (namespace, turn_id)
);
CREATE INDEX IF NOT EXISTS idx_turn_vectors_seq ON turn_vectors (namespace, sequence_index);
`

// VectorStore SQLite 向量命名空间
type VectorStore struct {
	db *sql.DB
}

// Open 打开（或创建）数据库并建表；path 为 ":memory:" 时使用内存库
func Open(path string) (*VectorStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// 内存库每个连接各自独立，写入串行化也由单连接保证
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &VectorStore{db: db}, nil
}

// Close 关闭数据库
func (s *VectorStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping 健康检查
func (s *VectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert 实现 memory.VectorNamespace
func (s *VectorStore) Upsert(ctx context.Context, namespace string, entries []memory.Entry) error {
	ctx, span := otel.Tracer("sqlite").Start(ctx, "sqlite.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("entries", len(entries)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO turn_vectors (namespace, turn_id, sequence_index, timestamp_ms, is_combat, dim, vector)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(namespace, turn_id) DO UPDATE SET
	sequence_index = excluded.sequence_index,
	timestamp_ms   = excluded.timestamp_ms,
	is_combat      = excluded.is_combat,
	dim            = excluded.dim,
	vector         = excluded.vector
`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		combat := 0
		if e.Metadata.IsCombatTurn {
			combat = 1
		}
		if _, err := stmt.ExecContext(ctx,
			namespace,
			e.TurnID,
			e.Metadata.SequenceIndex,
			e.Metadata.Timestamp.UTC().UnixMilli(),
			combat,
			len(e.Vector),
			encodeVector(e.Vector),
		); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to upsert turn %s: %w", e.TurnID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Search 实现 memory.VectorNamespace
func (s *VectorStore) Search(ctx context.Context, namespace string, vector []float32, topK int) ([]memory.Hit, error) {
	ctx, span := otel.Tracer("sqlite").Start(ctx, "sqlite.Search")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("top_k", topK))

	rows, err := s.db.QueryContext(ctx, `
SELECT turn_id, sequence_index, timestamp_ms, is_combat, vector
FROM turn_vectors
WHERE namespace = ?
`, namespace)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query turn vectors: %w", err)
	}
	defer rows.Close()

	hits := make([]memory.Hit, 0)
	for rows.Next() {
		var (
			e      memory.Entry
			tsMs   int64
			combat int
			blob   []byte
		)
		if err := rows.Scan(&e.TurnID, &e.Metadata.SequenceIndex, &tsMs, &combat, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan turn vector: %w", err)
		}
		e.Metadata.Timestamp = time.UnixMilli(tsMs).UTC()
		e.Metadata.IsCombatTurn = combat == 1
		e.Vector = decodeVector(blob)
		hits = append(hits, memory.Hit{Entry: e, Score: memory.Cosine(vector, e.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn vectors: %w", err)
	}

	memory.SortHits(hits)
	if topK >= 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete 实现 memory.VectorNamespace
func (s *VectorStore) Delete(ctx context.Context, namespace string, turnIDs []string) error {
	if len(turnIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(turnIDs)), ",")
	args := make([]any, 0, len(turnIDs)+1)
	args = append(args, namespace)
	for _, id := range turnIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM turn_vectors WHERE namespace = ? AND turn_id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to delete turn vectors: %w", err)
	}
	return nil
}

// Drop 实现 memory.VectorNamespace
func (s *VectorStore) Drop(ctx context.Context, namespace string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turn_vectors WHERE namespace = ?", namespace); err != nil {
		return fmt.Errorf("failed to drop namespace: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
