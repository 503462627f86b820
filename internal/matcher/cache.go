package matcher

import (
	"bytes"
	"container/list"
	"hash/fnv"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
)

// DefaultCacheSize bounds the number of prepared templates kept in memory.
const DefaultCacheSize = 64

type cacheEntry struct {
	id     string
	digest uint64
	tpl    *Template
}

// Cache keeps prepared templates keyed by id. An entry is reused only while
// the encoded bytes it was prepared from are unchanged.
type Cache struct {
	mu    sync.Mutex
	size  int
	ll    *list.List
	items map[string]*list.Element
}

// NewCache creates an LRU cache holding up to size templates.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{size: size, ll: list.New(), items: make(map[string]*list.Element)}
}

// Prepared returns the template for id, decoding raw only when it is new or changed.
func (c *Cache) Prepared(id string, raw []byte) (*Template, error) {
	digest := digestOf(raw)

	c.mu.Lock()
	if el, ok := c.items[id]; ok {
		e := el.Value.(*cacheEntry)
		if e.digest == digest {
			c.ll.MoveToFront(el)
			c.mu.Unlock()
			return e.tpl, nil
		}
	}
	c.mu.Unlock()

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.InvalidInput, "decode template %q", id)
	}
	tpl := Prepare(id, imaging.FromImage(img, time.Time{}))

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		el.Value = &cacheEntry{id: id, digest: digest, tpl: tpl}
		c.ll.MoveToFront(el)
		return tpl, nil
	}
	c.items[id] = c.ll.PushFront(&cacheEntry{id: id, digest: digest, tpl: tpl})
	for c.ll.Len() > c.size {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).id)
	}
	return tpl, nil
}

// Invalidate drops id from the cache.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		c.ll.Remove(el)
		delete(c.items, id)
	}
}

// Len returns the number of cached templates.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func digestOf(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
