// internal/service/progression/infrastructure/adapter/transient_redis_repository.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"arcadia/internal/pkg/redis"
	"arcadia/internal/service/progression/domain"
)

const (
	transientKeyPrefix = "progression:transient:"
	// transientTTL 限定降级数据只活一个会话的量级，绝不冒充持久存储。
	transientTTL = 12 * time.Hour
)

// TransientRedisRepository 是 ProgressionRepository 的 Redis 实现。
// 它只服务降级模式：主存储（MySQL）不可用时，调用方可以退到这里，
// 在会话期内维持一份临时进度，避免 UI 卡死。数据带 TTL，过期即弃，
// 恢复后以主存储为准——这明确弱于持久化，但好于不可用。
type TransientRedisRepository struct {
	client *redis.Client
}

// NewTransientRedisRepository 创建一个临时进度存储。
func NewTransientRedisRepository(client *redis.Client) *TransientRedisRepository {
	return &TransientRedisRepository{client: client}
}

// Find 读取临时进度记录。
func (r *TransientRedisRepository) Find(ctx context.Context, userID string) (*domain.ProgressionRecord, error) {
	data, err := r.client.GetClient().Get(ctx, transientKeyPrefix+userID).Bytes()
	if err == goredis.Nil {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transient store read: %w", err)
	}

	var record domain.ProgressionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("transient store decode: %w", err)
	}
	return &record, nil
}

// Save 写入临时进度记录并刷新 TTL。
func (r *TransientRedisRepository) Save(ctx context.Context, record *domain.ProgressionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("transient store encode: %w", err)
	}
	if err := r.client.GetClient().Set(ctx, transientKeyPrefix+record.UserID, data, transientTTL).Err(); err != nil {
		return fmt.Errorf("transient store write: %w", err)
	}
	return nil
}
