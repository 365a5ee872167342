package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/katakuxiko/finqa/internal/model"
)

// SQLiteBackend хранит эмбеддинги в SQLite как JSON и ищет перебором.
// Расстояние — косинусное, как у PgVectorBackend.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT NOT NULL,
		doc_name TEXT NOT NULL,
		page INTEGER NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS chunks_doc_name_idx ON chunks(doc_name);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Insert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, doc_name, page, text, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := toMicros(time.Now())
	for i, c := range chunks {
		meta, err := encodeMetadata(c.Metadata)
		if err != nil {
			return err
		}
		emb, err := json.Marshal(vectors[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.SourceID, c.Page, c.Text, meta, emb, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Nearest(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, chunk_id, doc_name, page, text, metadata, created_at, embedding
		FROM chunks
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.ScoredChunk
	for rows.Next() {
		var (
			sc  model.ScoredChunk
			emb []byte
			v   []float32
		)
		if err := scanChunk(rows, &sc.Chunk, &emb); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(emb, &v); err != nil {
			return nil, fmt.Errorf("chunk %s: corrupted embedding: %w", sc.Chunk.ID, err)
		}
		sc.Distance = CosineDistance(vec, v)
		res = append(res, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// строки уже идут по seq, стабильная сортировка сохраняет его при равенстве
	sort.SliceStable(res, func(i, j int) bool { return res[i].Distance < res[j].Distance })
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

func (s *SQLiteBackend) Scan(ctx context.Context, offset, limit int) ([]model.Chunk, error) {
	return scanChunks(ctx, s.db, DriverSQLite, offset, limit)
}

func (s *SQLiteBackend) Count(ctx context.Context) (int, error) {
	return countChunks(ctx, s.db)
}

func (s *SQLiteBackend) Sources(ctx context.Context) ([]SourceStat, error) {
	return sourceStats(ctx, s.db)
}

func (s *SQLiteBackend) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

// CosineDistance = 1 - cos(a, b). Для векторов разной длины или нулевых — 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
