// internal/service/progression/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"arcadia/internal/pkg/logger"
	"arcadia/internal/service/progression/domain"
	"arcadia/internal/service/progression/domain/port"
)

// ProgressionService 编排玩家成长引擎的所有业务用例。
// 服务本身无状态：每个操作都是 读当前记录 -> 算下一状态 -> 写回，
// 不在内存里缓存任何进度。持久层故障原样上抛，这里不做重试。
//
// 并发说明：定时经验发放的节流只看落库的 LastGrantAt，同一用户
// 多开会话时各会话可能同时判定到期并各发一次；购券的查重也存在
// 先读后写的窗口。两处都是已知并被接受的低风险不一致（重复发点
// 经验/重复拿到一张券，不是资金损失），刻意不用分布式锁去堵。
type ProgressionService struct {
	progressionRepo domain.ProgressionRepository
	couponRepo      domain.CouponRepository
	catalog         []domain.CouponDefinition
	ruleEngine      domain.RuleEngine
	publisher       port.EventPublisher
	clock           port.Clock
	tracer          trace.Tracer
}

// NewProgressionService 创建一个成长引擎服务实例。
// ruleEngine 可以为 nil，此时商城列表不做资格评估。
func NewProgressionService(
	progressionRepo domain.ProgressionRepository,
	couponRepo domain.CouponRepository,
	catalog []domain.CouponDefinition,
	ruleEngine domain.RuleEngine,
	publisher port.EventPublisher,
	clock port.Clock,
	tracer trace.Tracer,
) *ProgressionService {
	return &ProgressionService{
		progressionRepo: progressionRepo,
		couponRepo:      couponRepo,
		catalog:         catalog,
		ruleEngine:      ruleEngine,
		publisher:       publisher,
		clock:           clock,
		tracer:          tracer,
	}
}

// GetOrInitialize 读取用户的进度记录；不存在就创建默认记录并落库。
// 首次访问即创建是标准路径，不是错误。
func (s *ProgressionService) GetOrInitialize(ctx context.Context, userID string) (*domain.ProgressionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "progression.GetOrInitialize")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	record, err := s.progressionRepo.Find(ctx, userID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load progression record")
		return nil, fmt.Errorf("find progression: %w", err)
	}

	record = domain.NewProgressionRecord(userID, s.clock.Now())
	if err := s.progressionRepo.Save(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist initial record")
		return nil, fmt.Errorf("initialize progression: %w", err)
	}

	span.AddEvent("initial progression record created")
	logger.Ctx(ctx).Info().Str("user_id", userID).Msg("progression record initialized")
	return record, nil
}

// GrantExperience 给用户发放经验并结算升级。
// 升级循环产生的中间状态不单独落库：只把循环结束后的最终状态写一次，
// 写成功之后才逐条发布升级事件（按等级升序）。
func (s *ProgressionService) GrantExperience(ctx context.Context, userID string, amount int) (*domain.ProgressionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "progression.GrantExperience")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Int("experience.amount", amount),
	)

	if amount <= 0 {
		span.SetStatus(codes.Error, "non-positive amount")
		return nil, domain.ErrInvalidAmount
	}

	record, err := s.GetOrInitialize(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	levelUps, err := record.ApplyExperience(amount, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.progressionRepo.Save(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist post-grant state")
		return nil, fmt.Errorf("save progression: %w", err)
	}

	// 事件只在写库成功后发布。发布失败记日志，不影响操作结果。
	for _, lu := range levelUps {
		event := &domain.LevelUpEvent{
			UserID:      userID,
			NewLevel:    lu.NewLevel,
			CoinsEarned: lu.CoinsEarned,
			TotalCoins:  lu.TotalCoins,
			OccurredAt:  now,
		}
		if err := s.publisher.PublishLevelUp(ctx, event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("user_id", userID).
				Int("new_level", lu.NewLevel).
				Msg("failed to publish level-up event")
		}
	}

	if len(levelUps) > 0 {
		span.SetAttributes(attribute.Int("level_ups", len(levelUps)))
		logger.Ctx(ctx).Info().
			Str("user_id", userID).
			Int("new_level", record.Level).
			Int("level_ups", len(levelUps)).
			Msg("player leveled up")
	}

	return record, nil
}

// GrantPeriodicExperienceIfDue 实现在线挂机的定时经验发放。
// 距上次发放不足间隔时直接返回当前记录，不做任何写入。
func (s *ProgressionService) GrantPeriodicExperienceIfDue(ctx context.Context, userID string, now time.Time) (*domain.ProgressionRecord, bool, error) {
	ctx, span := s.tracer.Start(ctx, "progression.GrantPeriodicExperienceIfDue")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	record, err := s.GetOrInitialize(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	if !record.PeriodicGrantDue(now) {
		span.AddEvent("grant not due yet")
		return record, false, nil
	}

	record, err = s.GrantExperience(ctx, userID, domain.PeriodicGrantAmount)
	if err != nil {
		return nil, false, err
	}

	record.MarkGranted(now)
	if err := s.progressionRepo.Save(ctx, record); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("save grant timestamp: %w", err)
	}

	span.AddEvent("periodic experience granted")
	return record, true, nil
}

// AdjustCoins 直接调整金币余额（正数充值，负数扣减），余额钳制在 0 以上。
// 需要严格"余额必须够"语义的流程（购券）不走这里的钳制，自己先校验。
func (s *ProgressionService) AdjustCoins(ctx context.Context, userID string, delta int) (*domain.ProgressionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "progression.AdjustCoins")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Int("coins.delta", delta),
	)

	record, err := s.GetOrInitialize(ctx, userID)
	if err != nil {
		return nil, err
	}

	record.AdjustCoins(delta, s.clock.Now())
	if err := s.progressionRepo.Save(ctx, record); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save progression: %w", err)
	}
	return record, nil
}

// PurchaseCoupon 用金币购买一张目录里的优惠券。
// 前置校验按顺序：余额够不够、是否已拥有同款。
// 成功路径需要两次写都成功：先扣金币，再插入购买快照。
// 快照插入失败时把扣掉的金币原数退回（补偿动作），再上报失败——
// 持久层不保证多行事务，这是引擎里唯一的故障恢复逻辑。
func (s *ProgressionService) PurchaseCoupon(ctx context.Context, userID, couponID string) (*domain.PurchasedCoupon, error) {
	ctx, span := s.tracer.Start(ctx, "progression.PurchaseCoupon")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("coupon.id", couponID),
	)

	def, ok := domain.FindDefinition(s.catalog, couponID)
	if !ok {
		span.SetStatus(codes.Error, "unknown coupon definition")
		return nil, domain.ErrCouponNotFound
	}

	record, err := s.GetOrInitialize(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 1. 余额校验
	if !record.CanAfford(def.Cost) {
		span.SetStatus(codes.Error, "insufficient coins")
		return nil, domain.ErrInsufficientFunds
	}

	// 2. 查重：同一定义每用户限购一张。
	// 先读后写之间存在窗口，并发购买可能双双通过——接受这个竞态，
	// 代价只是多发一张券，不值得为它引入分布式锁。
	owned, err := s.couponRepo.FindByUser(ctx, userID, false)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list owned coupons: %w", err)
	}
	for _, c := range owned {
		if c.CouponID == couponID {
			span.SetStatus(codes.Error, "coupon already owned")
			return nil, domain.ErrAlreadyOwned
		}
	}

	now := s.clock.Now()

	// 3. 扣款
	record.AdjustCoins(-def.Cost, now)
	if err := s.progressionRepo.Save(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to debit coins")
		return nil, fmt.Errorf("debit coins: %w", err)
	}
	span.AddEvent("coins debited")

	// 4. 插入购买快照；失败则补偿退款
	coupon := domain.NewPurchasedCoupon(uuid.New().String(), userID, def, now)
	if err := s.couponRepo.Insert(ctx, coupon); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "coupon insert failed, compensating debit")
		logger.Ctx(ctx).Error().Err(err).
			Str("user_id", userID).
			Str("coupon_id", couponID).
			Msg("coupon insert failed after debit, refunding coins")

		record.AdjustCoins(def.Cost, s.clock.Now())
		if compErr := s.progressionRepo.Save(ctx, record); compErr != nil {
			// 补偿也失败：用户处于已扣款未拿券的状态，只能靠人工对账。
			// 这里必须把两个错误都暴露出去。
			logger.Ctx(ctx).Error().Err(compErr).
				Str("user_id", userID).
				Msg("CRITICAL: compensation failed, coins debited without coupon")
			return nil, fmt.Errorf("insert coupon: %w (compensation failed: %v)", err, compErr)
		}
		span.AddEvent("compensating credit applied")
		return nil, fmt.Errorf("insert coupon: %w", err)
	}

	event := &domain.CouponPurchasedEvent{
		UserID:          userID,
		CouponID:        def.ID,
		CouponName:      def.Name,
		DiscountPercent: def.DiscountPercent,
		Rarity:          def.Rarity,
		RemainingCoins:  record.Coins,
		OccurredAt:      now,
	}
	if err := s.publisher.PublishCouponPurchased(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("user_id", userID).
			Str("coupon_id", couponID).
			Msg("failed to publish coupon-purchased event")
	}

	logger.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("coupon_id", couponID).
		Int("remaining_coins", record.Coins).
		Msg("coupon purchased")
	return coupon, nil
}

// UseCoupon 核销一张已购买的优惠券。
// 依赖持久层的 CAS 语义：只有观察到 is_used = false 的那次写入成功，
// 两个并发核销恰好一个成功、另一个得到 ErrAlreadyUsed。
func (s *ProgressionService) UseCoupon(ctx context.Context, userID, purchasedCouponID string) error {
	ctx, span := s.tracer.Start(ctx, "progression.UseCoupon")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("coupon.purchase_id", purchasedCouponID),
	)

	if err := s.couponRepo.MarkUsed(ctx, userID, purchasedCouponID, s.clock.Now()); err != nil {
		if errors.Is(err, domain.ErrAlreadyUsed) || errors.Is(err, domain.ErrCouponNotFound) {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.RecordError(err)
		return fmt.Errorf("mark coupon used: %w", err)
	}

	logger.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("coupon_purchase_id", purchasedCouponID).
		Msg("coupon redeemed")
	return nil
}

// ListCoupons 列出用户已购买的优惠券，onlyUnused 为 true 时只看未核销的。
func (s *ProgressionService) ListCoupons(ctx context.Context, userID string, onlyUnused bool) ([]*domain.PurchasedCoupon, error) {
	ctx, span := s.tracer.Start(ctx, "progression.ListCoupons")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	coupons, err := s.couponRepo.FindByUser(ctx, userID, onlyUnused)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, nil
}

// ResetProgression 把用户进度无条件重置为初始状态。已购券保留。
func (s *ProgressionService) ResetProgression(ctx context.Context, userID string) (*domain.ProgressionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "progression.ResetProgression")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	record, err := s.GetOrInitialize(ctx, userID)
	if err != nil {
		return nil, err
	}

	record.Reset(s.clock.Now())
	if err := s.progressionRepo.Save(ctx, record); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save reset progression: %w", err)
	}

	logger.Ctx(ctx).Info().Str("user_id", userID).Msg("progression reset")
	return record, nil
}

// ListShop 返回商城目录，并按用户当前进度标注每一项：
// 是否已拥有、买不买得起、是否被资格规则锁定。
// 规则只影响列表展示，购买前置校验始终只有余额和查重两条。
func (s *ProgressionService) ListShop(ctx context.Context, userID string) ([]ShopOffer, error) {
	ctx, span := s.tracer.Start(ctx, "progression.ListShop")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	record, err := s.GetOrInitialize(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned, err := s.couponRepo.FindByUser(ctx, userID, false)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list owned coupons: %w", err)
	}
	ownedSet := make(map[string]bool, len(owned))
	for _, c := range owned {
		ownedSet[c.CouponID] = true
	}

	offers := make([]ShopOffer, 0, len(s.catalog))
	for _, def := range s.catalog {
		offer := ShopOffer{
			Definition: def,
			Owned:      ownedSet[def.ID],
			Affordable: record.CanAfford(def.Cost),
		}
		if s.ruleEngine != nil && def.EligibilityRule != "" {
			eligible, err := s.ruleEngine.Evaluate(def.EligibilityRule, domain.Fact{
				Level:      record.Level,
				Experience: record.Experience,
				Coins:      record.Coins,
				Rarity:     string(def.Rarity),
			})
			if err != nil {
				// 规则坏了不应该拖垮整个商城，按未锁定处理并记日志
				logger.Ctx(ctx).Warn().Err(err).
					Str("coupon_id", def.ID).
					Msg("eligibility rule evaluation failed, treating as unlocked")
			} else {
				offer.Locked = !eligible
			}
		}
		offers = append(offers, offer)
	}
	return offers, nil
}
