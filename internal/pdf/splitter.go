package pdf

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultSeparators: абзац, строка, слово, символ.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter режет текст на куски не длиннее ChunkSize рун,
// сначала по крупным разделителям, потом по более мелким. Соседние куски
// перекрываются не более чем на Overlap рун.
type RecursiveSplitter struct {
	ChunkSize int
	Overlap   int
	splitter  textsplitter.RecursiveCharacter
}

func NewRecursiveSplitter(size, overlap int) (*RecursiveSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &RecursiveSplitter{
		ChunkSize: size,
		Overlap:   overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(DefaultSeparators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
			textsplitter.WithKeepSeparator(false),
		),
	}, nil
}

// Split возвращает куски в порядке следования в тексте; пустые и
// состоящие из одних пробелов куски отбрасываются.
func (s *RecursiveSplitter) Split(text string) ([]string, error) {
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
