package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/katakuxiko/finqa/internal/model"
)

// Embedder — сервис эмбеддингов: один вектор на каждый текст, в том же порядке.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Backend хранит чанки вместе с векторами и умеет искать k ближайших.
// Nearest возвращает результаты по возрастанию расстояния, равные
// расстояния упорядочены по Seq. Scan перечисляет чанки по Seq.
type Backend interface {
	Insert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error
	Nearest(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error)
	Scan(ctx context.Context, offset, limit int) ([]model.Chunk, error)
	Count(ctx context.Context) (int, error)
	Sources(ctx context.Context) ([]SourceStat, error)
	Truncate(ctx context.Context) error
}

type SourceStat struct {
	SourceID  string
	Chunks    int
	FirstSeen time.Time
}

const (
	embedBatch      = 64
	StatusProcessed = "processed"
)

// VectorIndex связывает эмбеддер и хранилище векторов.
type VectorIndex struct {
	backend   Backend
	embedder  Embedder
	uploadDir string
}

func NewVectorIndex(b Backend, e Embedder, uploadDir string) *VectorIndex {
	return &VectorIndex{backend: b, embedder: e, uploadDir: uploadDir}
}

// Add эмбеддит все чанки пачками и только потом пишет их в хранилище
// одной транзакцией: при любой ошибке в индексе не остаётся ничего.
// Повторная вставка тех же чанков создаёт дубликаты.
func (ix *VectorIndex) Add(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vecs := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatch {
		end := min(start+embedBatch, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := ix.embed(ctx, texts)
		if err != nil {
			return err
		}
		vecs = append(vecs, batch...)
	}
	if err := ix.backend.Insert(ctx, chunks, vecs); err != nil {
		return model.NewError(model.KindIndexUnavailable, "insert chunks", err)
	}
	return nil
}

// Search возвращает до k ближайших чанков с расстоянием не больше maxDistance.
func (ix *VectorIndex) Search(ctx context.Context, query string, k int, maxDistance float64) ([]model.ScoredChunk, error) {
	vecs, err := ix.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	res, err := ix.backend.Nearest(ctx, vecs[0], k)
	if err != nil {
		return nil, model.NewError(model.KindIndexUnavailable, "nearest", err)
	}
	return WithinDistance(res, maxDistance), nil
}

// WithinDistance отбрасывает результаты дальше maxDistance, не меняя порядок.
func WithinDistance(res []model.ScoredChunk, maxDistance float64) []model.ScoredChunk {
	out := make([]model.ScoredChunk, 0, len(res))
	for _, r := range res {
		if r.Distance <= maxDistance {
			out = append(out, r)
		}
	}
	return out
}

func (ix *VectorIndex) ListAll(ctx context.Context) ([]model.Chunk, error) {
	chunks, err := ix.backend.Scan(ctx, 0, -1)
	if err != nil {
		return nil, model.NewError(model.KindIndexUnavailable, "list chunks", err)
	}
	return chunks, nil
}

// ListAllPaginated возвращает страницу чанков и общее их количество.
func (ix *VectorIndex) ListAllPaginated(ctx context.Context, offset, limit int) ([]model.Chunk, int, error) {
	if offset < 0 || limit <= 0 {
		return nil, 0, model.Errorf(model.KindInvalid, "list chunks", "offset must be >= 0 and limit > 0")
	}
	total, err := ix.backend.Count(ctx)
	if err != nil {
		return nil, 0, model.NewError(model.KindIndexUnavailable, "count chunks", err)
	}
	if offset >= total {
		return []model.Chunk{}, total, nil
	}
	chunks, err := ix.backend.Scan(ctx, offset, limit)
	if err != nil {
		return nil, 0, model.NewError(model.KindIndexUnavailable, "list chunks", err)
	}
	return chunks, total, nil
}

// GroupBySource — сводка по загруженным документам.
func (ix *VectorIndex) GroupBySource(ctx context.Context) ([]model.DocumentInfo, error) {
	stats, err := ix.backend.Sources(ctx)
	if err != nil {
		return nil, model.NewError(model.KindIndexUnavailable, "group by source", err)
	}
	docs := make([]model.DocumentInfo, 0, len(stats))
	for _, s := range stats {
		docs = append(docs, model.DocumentInfo{
			Filename:   s.SourceID,
			UploadDate: s.FirstSeen,
			ChunkCount: s.Chunks,
			Status:     StatusProcessed,
		})
	}
	return docs, nil
}

// Clear безвозвратно удаляет все чанки и все файлы в каталоге загрузок.
func (ix *VectorIndex) Clear(ctx context.Context) (model.ClearResult, error) {
	if err := ix.backend.Truncate(ctx); err != nil {
		return model.ClearResult{}, model.NewError(model.KindIndexUnavailable, "clear index", err)
	}
	deleted, err := removeFiles(ix.uploadDir)
	if err != nil {
		return model.ClearResult{DeletedFiles: deleted, ClearedChunks: true}, fmt.Errorf("clear uploads: %w", err)
	}
	return model.ClearResult{DeletedFiles: deleted, ClearedChunks: true}, nil
}

func (ix *VectorIndex) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, model.NewError(model.KindEmbedding, "embed", err)
	}
	if len(vecs) != len(texts) {
		return nil, model.Errorf(model.KindEmbedding, "embed", "got %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, model.Errorf(model.KindEmbedding, "embed", "empty vector for text %d", i)
		}
	}
	return vecs, nil
}

// removeFiles удаляет обычные файлы в dir (без рекурсии). Ошибки по
// отдельным файлам только логируются.
func removeFiles(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	deleted := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			log.Printf("delete %s: %v", p, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
