package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codegrade-api/internal/dto"
)

// ReportCache keeps per-owner report summaries in Redis. A nil client turns
// every operation into a no-op.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewReportCache builds a summary cache.
func NewReportCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ReportCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReportCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "report_cache").Logger(),
	}
}

func summaryKey(ownerID string) string {
	return fmt.Sprintf("codegrade:summary:%s", ownerID)
}

// Summary returns the cached summary for ownerID, if any.
func (c *ReportCache) Summary(ctx context.Context, ownerID string) (dto.TaskSummaryResponse, bool) {
	if c == nil || c.client == nil {
		return dto.TaskSummaryResponse{}, false
	}

	cached, err := c.client.Get(ctx, summaryKey(ownerID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("failed to read summary cache")
		}
		return dto.TaskSummaryResponse{}, false
	}

	var summary dto.TaskSummaryResponse
	if err := json.Unmarshal([]byte(cached), &summary); err != nil {
		c.logger.Warn().Err(err).Msg("discarding corrupt summary cache entry")
		return dto.TaskSummaryResponse{}, false
	}
	return summary, true
}

// StoreSummary caches summary for ownerID.
func (c *ReportCache) StoreSummary(ctx context.Context, ownerID string, summary dto.TaskSummaryResponse) {
	if c == nil || c.client == nil {
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, summaryKey(ownerID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store summary cache")
	}
}

// Invalidate drops the cached summary for ownerID.
func (c *ReportCache) Invalidate(ctx context.Context, ownerID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, summaryKey(ownerID)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("owner_id", ownerID).Msg("failed to invalidate summary cache")
	}
}
