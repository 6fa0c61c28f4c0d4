package infrastructure

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/metrics"
	"github.com/civic-complaints/platform/internal/shared/types"
)

const trackingKeyPrefix = "complaints:track:"

// storeIfCurrent caches a complaint unless an update has already committed a
// newer version. KEYS[1] is the cache key, KEYS[2] the version floor written
// on eviction; ARGV is the payload, its version and the TTL in milliseconds.
var storeIfCurrent = redis.NewScript(`
local floor = tonumber(redis.call("GET", KEYS[2]) or "0")
if tonumber(ARGV[2]) < floor then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// CachedRepository serves tracking-code lookups from Redis. Writes go to the
// wrapped repository and evict the cached copy. Redis failures fall back to
// the wrapped repository.
type CachedRepository struct {
	domain.Repository
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedRepository wraps repo with a Redis cache
func NewCachedRepository(repo domain.Repository, rdb *redis.Client, ttl time.Duration) *CachedRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRepository{Repository: repo, rdb: rdb, ttl: ttl}
}

// cachedComplaint keeps the fields the JSON form of a complaint omits
type cachedComplaint struct {
	Complaint  *domain.Complaint `json:"complaint"`
	HistorySeq int               `json:"history_seq"`
}

// GetByTrackingCode returns the cached complaint or loads and caches it
func (r *CachedRepository) GetByTrackingCode(ctx context.Context, code types.TrackingCode) (*domain.Complaint, error) {
	key := trackingKey(code)

	data, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedComplaint
		if err := json.Unmarshal(data, &cached); err == nil && cached.Complaint != nil {
			metrics.RecordCacheLookup("hit")
			cached.Complaint.HistorySeq = cached.HistorySeq
			return cached.Complaint, nil
		}
		metrics.RecordCacheLookup("error")
	case stderrors.Is(err, redis.Nil):
		metrics.RecordCacheLookup("miss")
	default:
		metrics.RecordCacheLookup("error")
		log.Printf("tracking cache get %s: %v", code, err)
	}

	c, err := r.Repository.GetByTrackingCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r.store(ctx, c)
	return c, nil
}

// store caches c unless a concurrent update committed a newer version after
// c was read
func (r *CachedRepository) store(ctx context.Context, c *domain.Complaint) {
	data, err := json.Marshal(cachedComplaint{Complaint: c, HistorySeq: c.HistorySeq})
	if err != nil {
		return
	}
	keys := []string{trackingKey(c.TrackingCode), versionKey(c.TrackingCode)}
	err = storeIfCurrent.Run(ctx, r.rdb, keys, data, c.Version, r.ttl.Milliseconds()).Err()
	if err != nil {
		log.Printf("tracking cache set %s: %v", c.TrackingCode, err)
	}
}

// Update stores the complaint and evicts its cached copy
func (r *CachedRepository) Update(ctx context.Context, c *domain.Complaint) error {
	if err := r.Repository.Update(ctx, c); err != nil {
		return err
	}
	r.Invalidate(ctx, c.TrackingCode, c.Version)
	return nil
}

// Invalidate drops the cached complaint for code and keeps copies older than
// version from being cached again while the floor lives
func (r *CachedRepository) Invalidate(ctx context.Context, code types.TrackingCode, version int) {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, trackingKey(code))
		pipe.Set(ctx, versionKey(code), version, r.ttl)
		return nil
	})
	if err != nil {
		log.Printf("tracking cache evict %s: %v", code, err)
	}
}

func trackingKey(code types.TrackingCode) string {
	return trackingKeyPrefix + code.String()
}

func versionKey(code types.TrackingCode) string {
	return trackingKeyPrefix + code.String() + ":version"
}
