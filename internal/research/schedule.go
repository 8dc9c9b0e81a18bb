package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// scheduleKey Redis ZSET: score = 下次调研的 Unix 秒, member = 商品 ID
const scheduleKey = "research:schedule"

// Schedule 调研排期表
// ZADD 天然去重: 对同一商品重复 Set 只会更新时间, 不会产生重复条目。
type Schedule struct {
	rdb *redis.Client
	key string
	log *slog.Logger
}

// NewSchedule 创建排期表
func NewSchedule(rdb *redis.Client, log *slog.Logger) *Schedule {
	if log == nil {
		log = slog.Default()
	}
	return &Schedule{
		rdb: rdb,
		key: scheduleKey,
		log: log.With(slog.String("component", "research_schedule")),
	}
}

// Set 登记商品的下次调研时间 (已存在则覆盖)
func (s *Schedule) Set(ctx context.Context, productID uint64, at time.Time) error {
	err := s.rdb.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(at.Unix()),
		Member: strconv.FormatUint(productID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule zadd: %w", err)
	}

	s.log.Debug("product scheduled",
		slog.Uint64("product_id", productID),
		slog.Time("at", at))
	return nil
}

// SetBatch 批量登记 (单条 ZADD, 原子)
func (s *Schedule) SetBatch(ctx context.Context, entries map[uint64]time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(entries))
	for id, at := range entries {
		members = append(members, redis.Z{
			Score:  float64(at.Unix()),
			Member: strconv.FormatUint(id, 10),
		})
	}
	if err := s.rdb.ZAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("schedule batch zadd: %w", err)
	}

	s.log.Debug("products scheduled", slog.Int("count", len(entries)))
	return nil
}

// At 查询商品的下次调研时间, 不在表中返回 (_, false, nil)
func (s *Schedule) At(ctx context.Context, productID uint64) (time.Time, bool, error) {
	score, err := s.rdb.ZScore(ctx, s.key, strconv.FormatUint(productID, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("schedule zscore: %w", err)
	}
	return time.Unix(int64(score), 0), true, nil
}

// Due 返回所有到期的商品 (score <= now)
func (s *Schedule) Due(ctx context.Context) ([]uint64, error) {
	now := time.Now().Unix()
	members, err := s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("schedule zrangebyscore: %w", err)
	}

	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			// 脏数据跳过, 不让一条坏成员卡死整个调度
			s.log.Warn("invalid member in schedule",
				slog.String("member", m),
				slog.String("error", err.Error()))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Next 最早的排期时间 (用于精确休眠), 表空返回 (_, false, nil)
func (s *Schedule) Next(ctx context.Context) (time.Time, bool, error) {
	result, err := s.rdb.ZRangeWithScores(ctx, s.key, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("schedule zrange: %w", err)
	}
	if len(result) == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(int64(result[0].Score), 0), true, nil
}

// All 返回全部排期 (商品 ID -> 下次调研时间)
func (s *Schedule) All(ctx context.Context) (map[uint64]time.Time, error) {
	result, err := s.rdb.ZRangeWithScores(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("schedule zrange all: %w", err)
	}

	entries := make(map[uint64]time.Time, len(result))
	for _, z := range result {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		entries[id] = time.Unix(int64(z.Score), 0)
	}
	return entries, nil
}

// Remove 从排期表移除商品 (商品删除或停用时)
func (s *Schedule) Remove(ctx context.Context, productID uint64) error {
	if err := s.rdb.ZRem(ctx, s.key, strconv.FormatUint(productID, 10)).Err(); err != nil {
		return fmt.Errorf("schedule zrem: %w", err)
	}
	s.log.Debug("product unscheduled", slog.Uint64("product_id", productID))
	return nil
}

// Size 排期表内商品数
func (s *Schedule) Size(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("schedule zcard: %w", err)
	}
	return n, nil
}
