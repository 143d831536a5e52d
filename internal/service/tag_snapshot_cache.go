package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/convocation-rfid-api/internal/models"
	appErrors "github.com/noah-isme/convocation-rfid-api/pkg/errors"
)

const snapshotFlightKey = "rfid-tags"

type tagMapLoader interface {
	TagMap(ctx context.Context) (map[string]models.RfidTag, error)
}

// TagSnapshotCache memoises the full tag population for a freshness window.
// Concurrent misses share one backend load. When a reload fails and a previous
// snapshot exists, the previous snapshot is served instead of the error.
type TagSnapshotCache struct {
	loader  tagMapLoader
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	tags     map[string]models.RfidTag
	loadedAt time.Time
	fresh    bool
	// inflight collects tags applied while a reload is reading the store.
	inflight map[string]models.RfidTag
}

// NewTagSnapshotCache constructs the snapshot cache.
func NewTagSnapshotCache(loader tagMapLoader, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *TagSnapshotCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagSnapshotCache{loader: loader, ttl: ttl, metrics: metrics, logger: logger, now: time.Now}
}

// Get returns the population keyed by EPC. The returned map is a private copy.
func (c *TagSnapshotCache) Get(ctx context.Context) (map[string]models.RfidTag, error) {
	start := c.now()
	c.mu.RLock()
	if c.fresh && c.now().Sub(c.loadedAt) < c.ttl {
		out := copyTagMap(c.tags)
		c.mu.RUnlock()
		c.metrics.RecordCacheOperation("snapshot", true, time.Since(start))
		return out, nil
	}
	c.mu.RUnlock()
	c.metrics.RecordCacheOperation("snapshot", false, time.Since(start))

	// The shared load must not die with whichever caller happened to start it.
	loadCtx := context.WithoutCancel(ctx)
	result, err, _ := c.group.Do(snapshotFlightKey, func() (interface{}, error) {
		return c.reload(loadCtx)
	})
	if err != nil {
		return nil, err
	}
	return copyTagMap(result.(map[string]models.RfidTag)), nil
}

func (c *TagSnapshotCache) reload(ctx context.Context) (map[string]models.RfidTag, error) {
	c.mu.Lock()
	c.inflight = map[string]models.RfidTag{}
	c.mu.Unlock()

	loaded, err := c.loader.TagMap(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	applied := c.inflight
	c.inflight = nil
	if err != nil {
		if c.tags != nil {
			c.logger.Warn("tag snapshot reload failed, serving stale snapshot",
				zap.Time("loaded_at", c.loadedAt), zap.Error(err))
			c.metrics.RecordSnapshotLoad("stale", len(c.tags))
			return c.tags, nil
		}
		c.metrics.RecordSnapshotLoad("error", -1)
		return nil, appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, "failed to load rfid tags")
	}
	// Writes applied while the load was in flight may be newer than what the
	// load read.
	for epc, current := range c.tags {
		if next, ok := loaded[epc]; ok && next.ID == current.ID && next.Version < current.Version {
			loaded[epc] = current
		}
	}
	// A tag written after the load read its page is absent or older in loaded.
	for epc, tag := range applied {
		if existing, ok := loaded[epc]; !ok || supersedes(existing, tag) {
			loaded[epc] = tag
		}
	}
	c.tags = loaded
	c.loadedAt = c.now()
	c.fresh = true
	c.metrics.RecordSnapshotLoad("fresh", len(loaded))
	c.logger.Debug("tag snapshot loaded", zap.Int("tags", len(loaded)))
	return loaded, nil
}

// Clear forces the next Get to reload. The previous snapshot is kept only as
// the stale fallback.
func (c *TagSnapshotCache) Clear() {
	c.mu.Lock()
	c.fresh = false
	c.mu.Unlock()
}

// Apply writes a just-persisted tag into the snapshot so readers inside the
// freshness window see the mutation.
func (c *TagSnapshotCache) Apply(tag models.RfidTag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		if prev, ok := c.inflight[tag.EPC]; !ok || supersedes(prev, tag) {
			c.inflight[tag.EPC] = tag.Clone()
		}
	}
	if c.tags == nil {
		return
	}
	if existing, ok := c.tags[tag.EPC]; ok && !supersedes(existing, tag) {
		return
	}
	// Replace rather than mutate so maps handed out earlier stay consistent.
	next := make(map[string]models.RfidTag, len(c.tags)+1)
	for epc, existing := range c.tags {
		next[epc] = existing
	}
	next[tag.EPC] = tag.Clone()
	c.tags = next
}

// LoadedAt reports when the current snapshot was read from the store.
func (c *TagSnapshotCache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// supersedes reports whether tag should replace existing under the same EPC:
// a newer version of the same record, or any record other than a void one
// shadowing a live tag.
func supersedes(existing, tag models.RfidTag) bool {
	if existing.ID == tag.ID {
		return tag.Version > existing.Version
	}
	return existing.IsVoid() || !tag.IsVoid()
}

func copyTagMap(src map[string]models.RfidTag) map[string]models.RfidTag {
	out := make(map[string]models.RfidTag, len(src))
	for epc, tag := range src {
		out[epc] = tag
	}
	return out
}
