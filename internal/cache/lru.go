package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU — кэш в памяти процесса на capacity векторов.
type LRU struct {
	items *lru.Cache[string, []float32]
}

func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	// ошибка возможна только при capacity <= 0
	items, _ := lru.New[string, []float32](capacity)
	return &LRU{items: items}
}

func (c *LRU) Get(_ context.Context, key string) ([]float32, bool, error) {
	vec, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneVec(vec), true, nil
}

func (c *LRU) Set(_ context.Context, key string, vec []float32) error {
	c.items.Add(key, cloneVec(vec))
	return nil
}

func (c *LRU) Len() int { return c.items.Len() }
