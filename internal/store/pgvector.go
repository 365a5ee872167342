package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/katakuxiko/finqa/internal/model"
	"github.com/pgvector/pgvector-go"
)

// PgVectorBackend хранит чанки в Postgres с расширением pgvector.
// Расстояние — косинусное (оператор <=>).
type PgVectorBackend struct {
	db  *sql.DB
	dim int
}

func NewPgVectorBackend(db *sql.DB, dim int) (*PgVectorBackend, error) {
	if err := ensurePgSchema(db, dim); err != nil {
		return nil, fmt.Errorf("pgvector schema: %w", err)
	}
	return &PgVectorBackend{db: db, dim: dim}, nil
}

// ensurePgSchema создаёт расширение, таблицу и индекс для pgvector
func ensurePgSchema(db *sql.DB, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			seq BIGSERIAL PRIMARY KEY,
			chunk_id TEXT NOT NULL,
			doc_name TEXT NOT NULL,
			page INTEGER NOT NULL,
			text TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL,
			created_at BIGINT NOT NULL
		)`, dim),
		`CREATE INDEX IF NOT EXISTS chunks_doc_name_idx ON chunks (doc_name)`,
		`DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_class c
				JOIN pg_namespace n ON n.oid=c.relnamespace
				WHERE c.relname='chunks_embedding_hnsw_idx'
			) THEN
				EXECUTE 'CREATE INDEX chunks_embedding_hnsw_idx ON chunks USING hnsw (embedding vector_cosine_ops)';
			END IF;
		END $$;`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *PgVectorBackend) Insert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := toMicros(time.Now())
	for i, c := range chunks {
		if len(vectors[i]) != s.dim {
			return fmt.Errorf("chunk %s: vector dim %d, index dim %d", c.ID, len(vectors[i]), s.dim)
		}
		meta, err := encodeMetadata(c.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.SourceID, c.Page, c.Text, meta, pgvector.NewVector(vectors[i]), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PgVectorBackend) Nearest(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, chunk_id, doc_name, page, text, metadata, created_at, embedding <=> $1 AS distance
		FROM chunks
		ORDER BY distance, seq
		LIMIT $2
	`, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.ScoredChunk
	for rows.Next() {
		var sc model.ScoredChunk
		if err := scanChunk(rows, &sc.Chunk, &sc.Distance); err != nil {
			return nil, err
		}
		res = append(res, sc)
	}
	return res, rows.Err()
}

func (s *PgVectorBackend) Scan(ctx context.Context, offset, limit int) ([]model.Chunk, error) {
	return scanChunks(ctx, s.db, DriverPostgres, offset, limit)
}

func (s *PgVectorBackend) Count(ctx context.Context) (int, error) {
	return countChunks(ctx, s.db)
}

func (s *PgVectorBackend) Sources(ctx context.Context) ([]SourceStat, error) {
	return sourceStats(ctx, s.db)
}

func (s *PgVectorBackend) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE TABLE chunks`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk читает колонки seq, chunk_id, doc_name, page, text, metadata,
// created_at и, если extra задан, дополнительные колонки после них.
func scanChunk(r rowScanner, c *model.Chunk, extra ...any) error {
	var (
		meta    []byte
		created int64
	)
	dest := append([]any{&c.Seq, &c.ID, &c.SourceID, &c.Page, &c.Text, &meta, &created}, extra...)
	if err := r.Scan(dest...); err != nil {
		return err
	}
	c.Metadata = decodeMetadata(meta)
	c.CreatedAt = fromMicros(created)
	return nil
}

func scanChunks(ctx context.Context, db *sql.DB, driver string, offset, limit int) ([]model.Chunk, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, chunk_id, doc_name, page, text, metadata, created_at
		FROM chunks
		ORDER BY seq`+limitClause(driver, offset, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []model.Chunk{}
	for rows.Next() {
		var c model.Chunk
		if err := scanChunk(rows, &c); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func countChunks(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func sourceStats(ctx context.Context, db *sql.DB) ([]SourceStat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT doc_name, COUNT(*), MIN(created_at)
		FROM chunks
		GROUP BY doc_name
		ORDER BY MIN(seq)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []SourceStat
	for rows.Next() {
		var (
			st      SourceStat
			created int64
		)
		if err := rows.Scan(&st.SourceID, &st.Chunks, &created); err != nil {
			return nil, err
		}
		st.FirstSeen = fromMicros(created)
		res = append(res, st)
	}
	return res, rows.Err()
}
