package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

// countingRepository serves one complaint and counts lookups
type countingRepository struct {
	domain.Repository
	complaint *domain.Complaint
	lookups   int
	updates   int
}

func (r *countingRepository) GetByTrackingCode(ctx context.Context, code types.TrackingCode) (*domain.Complaint, error) {
	r.lookups++
	if r.complaint == nil || r.complaint.TrackingCode != code {
		return nil, errors.NotFound("complaint", code.String())
	}
	found := *r.complaint
	return &found, nil
}

func (r *countingRepository) Update(ctx context.Context, c *domain.Complaint) error {
	r.updates++
	c.Version++
	r.complaint = c
	return nil
}

func newCacheFixture(t *testing.T) (*CachedRepository, *countingRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c, err := domain.NewComplaint(domain.NewComplaintParams{
		Subject:      "Broken streetlight",
		Description:  "The streetlight on Elm Street has been out for a week.",
		CitizenName:  "Jane Citizen",
		CitizenEmail: "jane@example.com",
		CategoryID:   types.NewID(),
		AgencyID:     types.NewID(),
	}, time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	c.MarkCommitted()

	inner := &countingRepository{complaint: c}
	return NewCachedRepository(inner, rdb, time.Minute), inner, mr
}

func TestCachedRepository_ServesFromCache(t *testing.T) {
	repo, inner, mr := newCacheFixture(t)
	code := inner.complaint.TrackingCode

	first, err := repo.GetByTrackingCode(context.Background(), code)
	require.NoError(t, err)
	second, err := repo.GetByTrackingCode(context.Background(), code)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.lookups)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.HistorySeq, second.HistorySeq)
	assert.True(t, mr.Exists(trackingKey(code)))
	assert.Equal(t, time.Minute, mr.TTL(trackingKey(code)))
}

func TestCachedRepository_UpdateEvicts(t *testing.T) {
	repo, inner, mr := newCacheFixture(t)
	code := inner.complaint.TrackingCode

	c, err := repo.GetByTrackingCode(context.Background(), code)
	require.NoError(t, err)
	require.True(t, mr.Exists(trackingKey(code)))

	c.Subject = "Streetlight still broken"
	require.NoError(t, repo.Update(context.Background(), c))
	assert.False(t, mr.Exists(trackingKey(code)))

	again, err := repo.GetByTrackingCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "Streetlight still broken", again.Subject)
	assert.Equal(t, 2, inner.lookups)
}

func TestCachedRepository_NotFoundIsNotCached(t *testing.T) {
	repo, inner, mr := newCacheFixture(t)

	_, err := repo.GetByTrackingCode(context.Background(), "CMP-ZZZZZZZZ")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.False(t, mr.Exists(trackingKey("CMP-ZZZZZZZZ")))
	assert.Equal(t, 1, inner.lookups)
}

func TestCachedRepository_RedisDownFallsBack(t *testing.T) {
	repo, inner, mr := newCacheFixture(t)
	mr.Close()

	c, err := repo.GetByTrackingCode(context.Background(), inner.complaint.TrackingCode)
	require.NoError(t, err)
	assert.Equal(t, inner.complaint.ID, c.ID)
}

// pausingRepository snapshots the complaint, then waits for release before
// returning it, like a Postgres read that loses a race with a commit
type pausingRepository struct {
	*countingRepository
	read    chan struct{}
	release chan struct{}
}

func (r *pausingRepository) GetByTrackingCode(ctx context.Context, code types.TrackingCode) (*domain.Complaint, error) {
	c, err := r.countingRepository.GetByTrackingCode(ctx, code)
	close(r.read)
	<-r.release
	return c, err
}

func TestCachedRepository_ReadRacingUpdateIsNotCached(t *testing.T) {
	_, inner, mr := newCacheFixture(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	pausing := &pausingRepository{countingRepository: inner, read: make(chan struct{}), release: make(chan struct{})}
	repo := NewCachedRepository(pausing, rdb, time.Minute)
	code := inner.complaint.TrackingCode

	done := make(chan *domain.Complaint)
	go func() {
		c, err := repo.GetByTrackingCode(context.Background(), code)
		assert.NoError(t, err)
		done <- c
	}()
	<-pausing.read

	resolved := *inner.complaint
	resolved.Status = domain.StatusResolved
	require.NoError(t, repo.Update(context.Background(), &resolved))
	assert.Equal(t, "2", mustGet(t, mr, versionKey(code)))

	close(pausing.release)
	stale := <-done
	assert.Equal(t, domain.StatusPending, stale.Status)
	assert.False(t, mr.Exists(trackingKey(code)), "a copy read before the update must not be cached")

	// The next read-through sees the committed version and caches it.
	fresh, err := NewCachedRepository(inner, rdb, time.Minute).GetByTrackingCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, fresh.Status)
	assert.True(t, mr.Exists(trackingKey(code)))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
