package service

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/katakuxiko/finqa/internal/model"
)

// Ingestor превращает файл в чанки.
type Ingestor interface {
	IngestAs(path, source string) ([]model.Chunk, error)
}

// Index — векторный индекс чанков.
type Index interface {
	Add(ctx context.Context, chunks []model.Chunk) error
	GroupBySource(ctx context.Context) ([]model.DocumentInfo, error)
	ListAllPaginated(ctx context.Context, offset, limit int) ([]model.Chunk, int, error)
	Clear(ctx context.Context) (model.ClearResult, error)
}

type DocumentService struct {
	ingestor Ingestor
	index    Index
	debug    bool
}

func NewDocumentService(ing Ingestor, ix Index, debug bool) *DocumentService {
	return &DocumentService{ingestor: ing, index: ix, debug: debug}
}

// Ingest разбирает сохранённый PDF и кладёт его чанки в индекс под
// именем name; пустое name значит имя файла.
func (s *DocumentService) Ingest(ctx context.Context, path, name string) (*model.UploadResult, error) {
	start := time.Now()
	if name == "" {
		name = filepath.Base(path)
	}
	chunks, err := s.ingestor.IngestAs(path, name)
	if err != nil {
		return nil, err
	}
	if err := s.index.Add(ctx, chunks); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	if s.debug {
		log.Printf("ingest %s: %d chunks in %s", name, len(chunks), elapsed)
	}
	return &model.UploadResult{
		Filename:       name,
		ChunkCount:     len(chunks),
		ProcessingTime: elapsed.Seconds(),
	}, nil
}

func (s *DocumentService) ListDocuments(ctx context.Context) ([]model.DocumentInfo, error) {
	return s.index.GroupBySource(ctx)
}

// ListChunks — страница чанков для просмотра и общее их количество.
func (s *DocumentService) ListChunks(ctx context.Context, offset, limit int) ([]model.ChunkInfo, int, error) {
	chunks, total, err := s.index.ListAllPaginated(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.ChunkInfo, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, model.ChunkInfo{ID: c.ID, Content: c.Text, Page: c.Page, Metadata: c.Metadata})
	}
	return out, total, nil
}

// ClearAll удаляет все чанки и загруженные файлы.
func (s *DocumentService) ClearAll(ctx context.Context) (model.ClearResult, error) {
	res, err := s.index.Clear(ctx)
	if err != nil {
		return res, err
	}
	log.Printf("cleared index: %d files deleted", res.DeletedFiles)
	return res, nil
}
