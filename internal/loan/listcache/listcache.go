// Package listcache caches loan list pages per equipment in Redis. Rows are
// stored as persisted; OVERDUE is derived by the reader after a hit.
package listcache

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-lending-service/internal/loan/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/cache"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultTTL = time.Minute

// Cache is safe to use as a nil pointer, which disables caching.
type Cache struct {
	redis  *cache.RedisClient
	ttl    time.Duration
	logger logger.ZapLogger
}

func New(client *cache.RedisClient, ttl time.Duration, log logger.ZapLogger) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{redis: client, ttl: ttl, logger: log}
}

type entry struct {
	Loans []model.Loan `json:"loans"`
	Count int          `json:"count"`
}

// Generation numbers the lifetimes of an equipment's cached pages.
// Invalidate starts a new generation; pages written under an older one are
// never read again.
type Generation int64

// noGeneration marks a failed generation read. Nothing is cached under it.
const noGeneration Generation = -1

// Key is scoped by generation and by the calendar day of f.Now because the
// OVERDUE filter selects different rows once the date changes.
func Key(f *dto.LoanFilters, gen Generation) string {
	data, _ := json.Marshal(struct {
		BorrowerID string
		Status     model.LoanStatus
		Day        string
		Page       int
		PageSize   int
	}{f.BorrowerID, f.Status, model.DateOf(f.Now).Format("2006-01-02"), f.Page, f.PageSize})
	return fmt.Sprintf("%s%d:%x", prefix(f.EquipmentID), gen, md5.Sum(data))
}

func prefix(equipmentID string) string {
	return fmt.Sprintf("loans:list:%s:", equipmentID)
}

func generationKey(equipmentID string) string {
	return fmt.Sprintf("loans:gen:%s", equipmentID)
}

func (c *Cache) generation(ctx context.Context, equipmentID string) Generation {
	gen, err := c.redis.Client.Get(ctx, generationKey(equipmentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		c.logger.Warn("failed to read loan list generation", zap.String("equipment_id", equipmentID), zap.Error(err))
		return noGeneration
	}
	return Generation(gen)
}

// Get looks up a page. On a miss the returned generation must be passed to
// Set after the rows were loaded, so a load that raced with Invalidate is
// written where no reader looks.
func (c *Cache) Get(ctx context.Context, f *dto.LoanFilters) ([]model.Loan, int, Generation, bool) {
	if c == nil {
		return nil, 0, noGeneration, false
	}
	gen := c.generation(ctx, f.EquipmentID)
	if gen == noGeneration {
		return nil, 0, gen, false
	}
	val, err := c.redis.Client.Get(ctx, Key(f, gen)).Result()
	if err != nil {
		return nil, 0, gen, false
	}
	var e entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, 0, gen, false
	}
	return e.Loans, e.Count, gen, true
}

func (c *Cache) Set(ctx context.Context, f *dto.LoanFilters, gen Generation, loans []model.Loan, count int) {
	if c == nil || gen == noGeneration {
		return
	}
	data, err := json.Marshal(entry{Loans: loans, Count: count})
	if err != nil {
		return
	}
	if err := c.redis.Client.Set(ctx, Key(f, gen), data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache loan list", zap.String("equipment_id", f.EquipmentID), zap.Error(err))
	}
}

// Invalidate starts a new generation for the equipment and drops the pages
// of older ones.
func (c *Cache) Invalidate(ctx context.Context, equipmentID string) {
	if c == nil {
		return
	}
	if err := c.redis.Client.Incr(ctx, generationKey(equipmentID)).Err(); err != nil {
		c.logger.Warn("failed to bump loan list generation", zap.String("equipment_id", equipmentID), zap.Error(err))
	}
	keys, err := c.redis.Client.Keys(ctx, prefix(equipmentID)+"*").Result()
	if err != nil {
		c.logger.Warn("failed to list cached loan pages", zap.String("equipment_id", equipmentID), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.redis.Client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("failed to drop cached loan pages",
			zap.String("equipment_id", equipmentID),
			zap.Int("keys", len(keys)),
			zap.Error(err))
	}
}
