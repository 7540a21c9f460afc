package session

import (
	"context"

	"github.com/chaos-io/cutout/matting"
)

type Processor interface {
	Process(ctx context.Context, raw []byte, settings matting.Settings) ([]byte, error)
}

// Cache 每个条目一份处理结果，键是条目 ID，不包含配置：
// 已缓存的条目不会因为配置变化被重新计算，只有 Recompute 会覆盖。
// 不加锁，由 Session 串行访问。
type Cache struct {
	proc    Processor
	entries map[string][]byte
}

func NewCache(proc Processor) *Cache {
	return &Cache{
		proc:    proc,
		entries: make(map[string][]byte),
	}
}

func (c *Cache) Get(id string) ([]byte, bool) {
	out, ok := c.entries[id]
	return out, ok
}

func (c *Cache) Has(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// GetOrCompute 命中时原样返回，settings 被忽略
func (c *Cache) GetOrCompute(ctx context.Context, id string, raw []byte, settings matting.Settings) ([]byte, error) {
	if out, ok := c.entries[id]; ok {
		return out, nil
	}
	return c.Recompute(ctx, id, raw, settings)
}

// Recompute 无条件重新计算并覆盖；失败时保留旧结果
func (c *Cache) Recompute(ctx context.Context, id string, raw []byte, settings matting.Settings) ([]byte, error) {
	out, err := c.proc.Process(ctx, raw, settings)
	if err != nil {
		return nil, err
	}
	c.entries[id] = out
	return out, nil
}

func (c *Cache) Evict(id string) {
	delete(c.entries, id)
}

func (c *Cache) Clear() {
	c.entries = make(map[string][]byte)
}

func (c *Cache) Len() int {
	return len(c.entries)
}

// Size 缓存占用的字节数
func (c *Cache) Size() int {
	n := 0
	for _, v := range c.entries {
		n += len(v)
	}
	return n
}
