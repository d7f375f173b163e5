package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ria-search/internal/common/logger"
	"ria-search/internal/models"
)

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func newMiniCache(t *testing.T) (*SearchCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, 5*time.Minute, "test:", createTestLogger(t)), mr
}

func samplePage() *models.SearchResponse {
	aum := 54e9
	return &models.SearchResponse{
		Results:  []models.Result{{CRD: 793, CombinedScore: 1.8, AUM: &aum}},
		Limit:    10,
		Degraded: []string{"semantic:skipped"},
	}
}

func TestSearchCache_RoundTrip(t *testing.T) {
	c, mr := newMiniCache(t)
	ctx := context.Background()
	req := models.SearchRequest{Query: "St. Louis", Filters: models.SearchFilters{State: "MO"}}

	_, ok := c.Get(ctx, req)
	assert.False(t, ok)

	c.Set(ctx, req, samplePage())

	got, ok := c.Get(ctx, models.SearchRequest{Query: "  St. Louis ", Filters: models.SearchFilters{State: "mo"}})
	require.True(t, ok, "surrounding whitespace and state case share a key")
	require.Len(t, got.Results, 1)
	assert.Equal(t, int64(793), got.Results[0].CRD)
	assert.Equal(t, 54e9, *got.Results[0].AUM)

	assert.Equal(t, 5*time.Minute, mr.TTL(c.Key(req)))
	mr.FastForward(6 * time.Minute)
	_, ok = c.Get(ctx, req)
	assert.False(t, ok)
}

func TestSearchCache_KeyDistinguishesPages(t *testing.T) {
	c, _ := newMiniCache(t)
	a := models.SearchRequest{Query: "jones", Limit: 10}
	b := models.SearchRequest{Query: "jones", Limit: 10, Offset: 10}
	assert.NotEqual(t, c.Key(a), c.Key(b))
	assert.Contains(t, c.Key(a), "test:search:")
}

func TestSearchCache_KeyNormalization(t *testing.T) {
	c, _ := newMiniCache(t)

	assert.NotEqual(t,
		c.Key(models.SearchRequest{Query: "Largest advisors"}),
		c.Key(models.SearchRequest{Query: "largest advisors"}),
		"query case reaches the embedder, so it must split the key")

	assert.Equal(t,
		c.Key(models.SearchRequest{Query: "x", Filters: models.SearchFilters{FundType: "vc"}}),
		c.Key(models.SearchRequest{Query: "x", Filters: models.SearchFilters{FundType: models.FundTypeVentureCapital}}))
}

func TestSearchCache_SkipsDegradedPages(t *testing.T) {
	c, mr := newMiniCache(t)
	req := models.SearchRequest{Query: "jones"}

	page := samplePage()
	page.Degraded = append(page.Degraded, "lexical:timeout")
	c.Set(context.Background(), req, page)

	assert.False(t, mr.Exists(c.Key(req)))
}

func TestSearchCache_RedisErrorIsMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client, time.Minute, "", createTestLogger(t))
	req := models.SearchRequest{Query: "jones"}

	mock.ExpectGet(c.Key(req)).SetErr(errors.New("connection refused"))
	_, ok := c.Get(context.Background(), req)
	assert.False(t, ok)

	page := samplePage()
	data, err := json.Marshal(page)
	require.NoError(t, err)
	mock.ExpectSet(c.Key(req), data, time.Minute).SetErr(errors.New("read only replica"))
	c.Set(context.Background(), req, page)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newMiniCache(t)
	req := models.SearchRequest{Query: "jones"}
	require.NoError(t, mr.Set(c.Key(req), "{not json"))

	_, ok := c.Get(context.Background(), req)
	assert.False(t, ok)
}
