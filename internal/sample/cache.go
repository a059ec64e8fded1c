package sample

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"golang.org/x/sync/errgroup"
)

const defaultParallel = 4

// Fetcher is what the cache loads through. *Loader implements it.
type Fetcher interface {
	Load(ctx context.Context, src string) *beep.Buffer
}

// Cache maps logical ids such as "kick" or "C-I" to decoded buffers.
// Entries never change once stored and are never evicted.
type Cache struct {
	fetch    Fetcher
	log      *log.Logger
	parallel int

	mu   sync.RWMutex
	bufs map[string]*beep.Buffer
}

// NewCache returns an empty cache loading through f. A nil f makes a
// cache that only holds what is Put.
func NewCache(f Fetcher, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		fetch:    f,
		log:      logger.WithPrefix("cache"),
		parallel: defaultParallel,
		bufs:     make(map[string]*beep.Buffer),
	}
}

// Get returns the buffer for id, or nil while it is missing or loading.
func (c *Cache) Get(id string) *beep.Buffer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bufs[id]
}

// Put stores buf under id unless an entry already exists. It reports
// whether buf was stored.
func (c *Cache) Put(id string, buf *beep.Buffer) bool {
	if buf == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.bufs[id]; ok {
		return false
	}
	c.bufs[id] = buf
	return true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bufs)
}

// Preload fetches every id -> src pair not already cached. Missing assets
// are skipped; only cancellation is returned.
func (c *Cache) Preload(ctx context.Context, assets map[string]string) error {
	if c.fetch == nil {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for id, src := range assets {
		id, src := id, src
		if c.Get(id) != nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if buf := c.fetch.Load(ctx, src); buf != nil {
				c.Put(id, buf)
			}
			return nil
		})
	}
	err := g.Wait()
	c.log.Debug("preload done", "requested", len(assets), "cached", c.Len())
	return err
}

// PreloadAsync runs Preload in the background. The returned channel is
// closed when it finishes.
func (c *Cache) PreloadAsync(ctx context.Context, assets map[string]string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Preload(ctx, assets); err != nil {
			c.log.Debug("preload interrupted", "err", err)
		}
	}()
	return done
}
