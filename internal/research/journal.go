// Package research 调研批处理
//
// Runner 驱动一批商品走完 解析URL → 抓取 → 计算 → 落快照 的流水线;
// Journal 在 Redis 里记录当天已完成的商品, 供断点续跑跳过;
// Scheduler 在驻留模式下按权重周期性地把商品送回 Runner。
package research

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const journalKeyPrefix = "research:journal"

// JST 日本标准时间 (UTC+9), 调研日按 JST 日界切换
var JST = time.FixedZone("JST", 9*60*60)

// Journal 当日调研完成记录
// 成员是商品 ID, 键按调研日区分; 被中断的批次用 -resume 重跑时,
// 当天已落过快照的商品直接跳过。
type Journal struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewJournal 创建调研日志
// rdb 为 nil 时日志退化为 no-op (MarkDone 吞掉, IsDone 恒 false)。
func NewJournal(rdb *redis.Client, ttl time.Duration) *Journal {
	return &Journal{rdb: rdb, ttl: ttl}
}

// DayKey 某时刻所属调研日的日志键
func DayKey(t time.Time) string {
	return fmt.Sprintf("%s:%s", journalKeyPrefix, t.In(JST).Format("2006-01-02"))
}

// MarkDone 记录商品当天已完成调研
// SADD + EXPIRE 不是原子的, 但对断点续跑的幂等检查足够。
func (j *Journal) MarkDone(ctx context.Context, dayKey string, productID uint64) error {
	if j == nil || j.rdb == nil {
		return nil
	}
	member := strconv.FormatUint(productID, 10)
	if err := j.rdb.SAdd(ctx, dayKey, member).Err(); err != nil {
		return fmt.Errorf("journal sadd: %w", err)
	}
	j.rdb.Expire(ctx, dayKey, j.ttl)
	return nil
}

// IsDone 查询商品当天是否已调研过
func (j *Journal) IsDone(ctx context.Context, dayKey string, productID uint64) (bool, error) {
	if j == nil || j.rdb == nil {
		return false, nil
	}
	member := strconv.FormatUint(productID, 10)
	done, err := j.rdb.SIsMember(ctx, dayKey, member).Result()
	if err != nil {
		return false, fmt.Errorf("journal sismember: %w", err)
	}
	return done, nil
}
