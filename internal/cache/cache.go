// Package cache кэширует эмбеддинги: одинаковый текст той же модели
// всегда даёт один и тот же вектор.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
)

// Cache — хранилище векторов по ключу. ok=false без ошибки означает промах.
type Cache interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// Source — то, что умеет считать эмбеддинги.
type Source interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder оборачивает Source кэшем. Ошибки кэша только логируются.
type Embedder struct {
	next  Source
	cache Cache
	model string
}

func NewEmbedder(next Source, c Cache, model string) *Embedder {
	return &Embedder{next: next, cache: c, model: model}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		keys[i] = Key(e.model, t)
		vec, ok, err := e.cache.Get(ctx, keys[i])
		if err != nil {
			log.Printf("embed cache get: %v", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		// пусть вызывающий разбирается с несовпадением, в кэш не пишем
		return vecs, nil
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if len(vecs[j]) == 0 {
			continue
		}
		if err := e.cache.Set(ctx, keys[i], vecs[j]); err != nil {
			log.Printf("embed cache set: %v", err)
		}
	}
	return out, nil
}

// Key — sha256 от модели и текста.
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "emb:" + hex.EncodeToString(h.Sum(nil))
}

func cloneVec(vec []float32) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
