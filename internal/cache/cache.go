package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/SDG223157/trendwise0706-sub001/internal/domain"
	"github.com/SDG223157/trendwise0706-sub001/internal/logger"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Class selects the expiry duration for a cache entry.
type Class string

const (
	ClassHot  Class = "hot"
	ClassWarm Class = "warm"
	ClassCold Class = "cold"
)

// TTLs maps each class to its expiry duration.
type TTLs struct {
	Hot  time.Duration
	Warm time.Duration
	Cold time.Duration
}

// For returns the duration for a class, defaulting to Warm.
// Parameters:
//   - c: TTL class.
// Returns:
//   - time.Duration: expiry duration.
func (t TTLs) For(c Class) time.Duration {
	switch c {
	case ClassHot:
		return t.Hot
	case ClassCold:
		return t.Cold
	default:
		return t.Warm
	}
}

// Remote is the networked cache tier. Implementations return
// domain.ErrCacheMiss for absent keys; any other error is treated as the
// tier being unreachable and the read degrades to the loader.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Flush removes every entry owned by this cache and returns the count.
	Flush(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Loader computes the value on a full miss, reading the permanent index.
type Loader func(ctx context.Context) ([]byte, error)

// Stats counts tier outcomes since process start.
type Stats struct {
	LocalHits    int64 `json:"local_hits"`
	RemoteHits   int64 `json:"remote_hits"`
	LoaderCalls  int64 `json:"loader_calls"`
	RemoteErrors int64 `json:"remote_errors"`
}

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// Tiered is the read-through cache fronting the permanent index: a small
// in-process LRU, then the networked tier, then the loader. The cache never
// owns data; everything in it can be rebuilt from the permanent index, and
// staleness up to one warming interval is accepted.
type Tiered struct {
	local  *lru.Cache[string, localEntry]
	remote Remote
	ttls   TTLs
	log    *logger.Logger

	localHits    atomic.Int64
	remoteHits   atomic.Int64
	loaderCalls  atomic.Int64
	remoteErrors atomic.Int64
}

// New creates a tiered cache.
// Parameters:
//   - remote: networked tier; nil disables it and every miss hits the loader.
//   - localSize: in-process LRU capacity.
//   - ttls: per-class expiry durations.
//   - log: logger instance.
// Returns:
//   - *Tiered: initialized cache.
func New(remote Remote, localSize int, ttls TTLs, log *logger.Logger) *Tiered {
	if localSize <= 0 {
		localSize = 1024
	}
	local, _ := lru.New[string, localEntry](localSize)
	return &Tiered{
		local:  local,
		remote: remote,
		ttls:   ttls,
		log:    log.WithField(logger.FieldComponent, "cache"),
	}
}

// Get reads through the tiers. A remote failure is never surfaced: the read
// degrades to the loader and the result is still written to the local tier.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: deterministic cache key, see Key.
//   - class: TTL class for write-back.
//   - load: loader invoked on a full miss.
// Returns:
//   - []byte: serialized value.
//   - error: only the loader's error, never a cache-tier error.
func (c *Tiered) Get(ctx context.Context, key string, class Class, load Loader) ([]byte, error) {
	if e, ok := c.local.Get(key); ok {
		if time.Now().Before(e.expiresAt) {
			c.localHits.Add(1)
			return e.data, nil
		}
		c.local.Remove(key)
	}

	if c.remote != nil {
		data, err := c.remote.Get(ctx, key)
		switch {
		case err == nil:
			c.remoteHits.Add(1)
			c.storeLocal(key, data, class)
			return data, nil
		case !errors.Is(err, domain.ErrCacheMiss):
			c.remoteErrors.Add(1)
			c.log.WithError(err).Debug("Remote cache unreachable, degrading to store")
		}
	}

	c.loaderCalls.Add(1)
	data, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.storeLocal(key, data, class)
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, data, c.ttls.For(class)); err != nil {
			c.remoteErrors.Add(1)
			c.log.WithError(err).Debug("Remote cache write-back failed")
		}
	}
	return data, nil
}

func (c *Tiered) storeLocal(key string, data []byte, class Class) {
	ttl := c.ttls.For(class)
	// The local tier never outlives the hot TTL; it exists to absorb burst
	// reads, not to extend staleness.
	if hot := c.ttls.For(ClassHot); hot > 0 && ttl > hot {
		ttl = hot
	}
	c.local.Add(key, localEntry{data: data, expiresAt: time.Now().Add(ttl)})
}

// Invalidate removes specific keys from both tiers. Remote failures are
// logged, not returned.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - keys: cache keys to remove.
// Returns: none.
func (c *Tiered) Invalidate(ctx context.Context, keys ...string) {
	for _, k := range keys {
		c.local.Remove(k)
	}
	if c.remote != nil && len(keys) > 0 {
		if err := c.remote.Delete(ctx, keys...); err != nil {
			c.remoteErrors.Add(1)
			c.log.WithError(err).Debug("Remote cache invalidation failed")
		}
	}
}

// Flush clears both tiers, used by the full reconciliation pass before a
// rebuild.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of entries removed across both tiers. Remote entries
//     are not counted when that tier is down.
func (c *Tiered) Flush(ctx context.Context) int64 {
	purged := int64(c.local.Len())
	c.local.Purge()
	if c.remote == nil {
		return purged
	}
	n, err := c.remote.Flush(ctx)
	if err != nil {
		c.remoteErrors.Add(1)
		c.log.WithError(err).Warn("Remote cache flush failed")
		return purged
	}
	return purged + n
}

// Healthy reports whether the networked tier is reachable.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - bool: true when the remote tier answers a ping, or is disabled.
func (c *Tiered) Healthy(ctx context.Context) bool {
	if c.remote == nil {
		return true
	}
	return c.remote.Ping(ctx) == nil
}

// Stats returns tier hit counters.
// Parameters: none.
// Returns:
//   - Stats: snapshot of counters.
func (c *Tiered) Stats() Stats {
	return Stats{
		LocalHits:    c.localHits.Load(),
		RemoteHits:   c.remoteHits.Load(),
		LoaderCalls:  c.loaderCalls.Load(),
		RemoteErrors: c.remoteErrors.Load(),
	}
}

// Key builds a deterministic cache key from a query kind and its normalized
// parameters.
// Parameters:
//   - kind: query kind (symbol, keyword, trending, ...).
//   - parts: normalized query parameters.
// Returns:
//   - string: kind-prefixed sha256 key.
func Key(kind string, parts ...string) string {
	h := sha256.Sum256([]byte(kind + "\x00" + strings.Join(parts, "\x00")))
	return kind + ":" + hex.EncodeToString(h[:16])
}
