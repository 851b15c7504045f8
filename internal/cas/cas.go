// Package cas implements Vex's content-addressable object store (spec
// §4.2): a flat, append-only store keyed by the hash of canonical bytes,
// with fsync-then-rename durability and idempotent puts.
package cas

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"github.com/vexvcs/vex/internal/codec"
)

type Hash = codec.Hash

// ErrNotFound is returned by Get when no object with that hash is resident.
var ErrNotFound = errors.New("cas: not found")

// Store is the interface the rest of the engine programs against (spec
// §4.2's put/get/has/iter_reachable, minus iter_reachable which lives in
// the objects package since only it knows how to extract references).
type Store interface {
	Put(ctx context.Context, data []byte) (Hash, error)
	Get(ctx context.Context, h Hash) ([]byte, error)
	Has(ctx context.Context, h Hash) (bool, error)
	// List calls fn once per resident hash. Order is unspecified.
	List(ctx context.Context, fn func(Hash) error) error
}

func hashOf(data []byte) Hash {
	return codec.HashBytes(data)
}

// CachingStore wraps a Store with an LRU read cache of encoded object bytes.
type CachingStore struct {
	Store
	cache *lru.Cache
	mu    sync.Mutex
}

// NewCaching wraps s with an LRU cache holding up to size encoded objects.
func NewCaching(s Store, size int) *CachingStore {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &CachingStore{Store: s, cache: c}
}

func (c *CachingStore) Get(ctx context.Context, h Hash) ([]byte, error) {
	c.mu.Lock()
	if v, ok := c.cache.Get(h); ok {
		c.mu.Unlock()
		return v.([]byte), nil
	}
	c.mu.Unlock()
	data, err := c.Store.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache.Add(h, data)
	c.mu.Unlock()
	return data, nil
}

func (c *CachingStore) Put(ctx context.Context, data []byte) (Hash, error) {
	h, err := c.Store.Put(ctx, data)
	if err != nil {
		return h, err
	}
	c.mu.Lock()
	c.cache.Add(h, data)
	c.mu.Unlock()
	return h, nil
}

// numCopyWorkers bounds CopyAll's concurrency with a fixed pool size; no
// command in the repository calls CopyAll.
const numCopyWorkers = 8

// CopyAll copies every object reachable in src's List into dst, skipping
// hashes dst already has, using a bounded pool of concurrent copiers.
func CopyAll(ctx context.Context, dst, src Store) error {
	var hashes []Hash
	if err := src.List(ctx, func(h Hash) error {
		hashes = append(hashes, h)
		return nil
	}); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	work := make(chan Hash)
	eg.Go(func() error {
		defer close(work)
		for _, h := range hashes {
			select {
			case work <- h:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < numCopyWorkers; i++ {
		eg.Go(func() error {
			for h := range work {
				has, err := dst.Has(ctx, h)
				if err != nil {
					return err
				}
				if has {
					continue
				}
				data, err := src.Get(ctx, h)
				if err != nil {
					return err
				}
				if _, err := dst.Put(ctx, data); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

func fmtNotFound(h Hash) error {
	return fmt.Errorf("%w: %s", ErrNotFound, h)
}
