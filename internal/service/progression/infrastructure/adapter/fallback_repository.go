// internal/service/progression/infrastructure/adapter/fallback_repository.go
package adapter

import (
	"context"
	"errors"

	"arcadia/internal/pkg/logger"
	"arcadia/internal/service/progression/domain"
)

// FallbackProgressionRepository 是一个装饰器：读写先走权威存储，
// 权威存储故障时退到临时存储。降级策略集中在这一层，
// 引擎核心对多后端一无所知——它只面对一个 ProgressionRepository。
//
// 注意降级语义的不对称：Find 在主存储"记录不存在"时不降级
// （不存在是业务语义，不是故障）；只有主存储报故障时才读临时副本。
type FallbackProgressionRepository struct {
	primary   domain.ProgressionRepository
	transient domain.ProgressionRepository
}

// NewFallbackProgressionRepository 组合权威存储与临时存储。
func NewFallbackProgressionRepository(primary, transient domain.ProgressionRepository) *FallbackProgressionRepository {
	return &FallbackProgressionRepository{primary: primary, transient: transient}
}

// Find 优先读权威存储。
func (r *FallbackProgressionRepository) Find(ctx context.Context, userID string) (*domain.ProgressionRecord, error) {
	record, err := r.primary.Find(ctx, userID)
	if err == nil || errors.Is(err, domain.ErrRecordNotFound) {
		return record, err
	}

	logger.Ctx(ctx).Warn().Err(err).
		Str("user_id", userID).
		Msg("primary progression store unavailable, reading transient copy")
	return r.transient.Find(ctx, userID)
}

// Save 优先写权威存储，故障时写临时副本，保住当前会话的进度。
func (r *FallbackProgressionRepository) Save(ctx context.Context, record *domain.ProgressionRecord) error {
	err := r.primary.Save(ctx, record)
	if err == nil {
		return nil
	}

	logger.Ctx(ctx).Warn().Err(err).
		Str("user_id", record.UserID).
		Msg("primary progression store unavailable, writing transient copy")
	return r.transient.Save(ctx, record)
}
