package pdf

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/katakuxiko/finqa/internal/model"
)

// Ingestor превращает PDF файл в упорядоченный список чанков.
type Ingestor struct {
	splitter *RecursiveSplitter
	extract  func(path string) ([]Page, error)
}

func NewIngestor(chunkSize, chunkOverlap int) (*Ingestor, error) {
	sp, err := NewRecursiveSplitter(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Ingestor{splitter: sp, extract: ExtractPages}, nil
}

// Ingest извлекает текст и режет его постранично. Документ без текста
// даёт пустой результат без ошибки.
func (in *Ingestor) Ingest(path string) ([]model.Chunk, error) {
	return in.IngestAs(path, filepath.Base(path))
}

// IngestAs — то же, но источником чанков записывается source, а не имя
// файла: загрузка сначала пишется во временный файл.
func (in *Ingestor) IngestAs(path, source string) ([]model.Chunk, error) {
	pages, err := in.extract(path)
	if err != nil {
		return nil, model.NewError(model.KindIngest, "ingest "+source, err)
	}
	chunks, err := in.ChunkPages(source, pages)
	if err != nil {
		return nil, model.NewError(model.KindIngest, "ingest "+source, err)
	}
	return chunks, nil
}

// ChunkPages режет уже извлечённые страницы; порядок страниц сохраняется.
func (in *Ingestor) ChunkPages(source string, pages []Page) ([]model.Chunk, error) {
	var chunks []model.Chunk
	for _, p := range pages {
		parts, err := in.splitter.Split(p.Text)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p.Number, err)
		}
		for _, part := range parts {
			chunks = append(chunks, model.Chunk{
				ID:       uuid.NewString(),
				Text:     part,
				SourceID: source,
				Page:     p.Number,
				Metadata: map[string]any{
					"source": source,
					"page":   p.Number,
				},
			})
		}
	}
	return chunks, nil
}
