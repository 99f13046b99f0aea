// internal/service/progression/application/service_test.go
package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"arcadia/internal/service/progression/domain"
)

// ---- 测试替身 ----

type fakeProgressionRepo struct {
	mu      sync.Mutex
	records map[string]domain.ProgressionRecord
	// failNextSaves > 0 时，接下来的 N 次 Save 返回错误
	failNextSaves int
	// failOnSaveNumber > 0 时，恰好第 N 次 Save 返回错误
	failOnSaveNumber int
	saveCount        int
}

func newFakeProgressionRepo() *fakeProgressionRepo {
	return &fakeProgressionRepo{records: make(map[string]domain.ProgressionRecord)}
}

func (r *fakeProgressionRepo) Find(ctx context.Context, userID string) (*domain.ProgressionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[userID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	copied := record
	return &copied, nil
}

func (r *fakeProgressionRepo) Save(ctx context.Context, record *domain.ProgressionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCount++
	if r.failNextSaves > 0 {
		r.failNextSaves--
		return errors.New("simulated store failure")
	}
	if r.failOnSaveNumber > 0 && r.saveCount == r.failOnSaveNumber {
		return errors.New("simulated store failure")
	}
	r.records[record.UserID] = *record
	return nil
}

type fakeCouponRepo struct {
	mu      sync.Mutex
	coupons map[string]domain.PurchasedCoupon // key: 快照 ID
	// failNextInserts > 0 时，接下来的 N 次 Insert 返回错误
	failNextInserts int
}

func newFakeCouponRepo() *fakeCouponRepo {
	return &fakeCouponRepo{coupons: make(map[string]domain.PurchasedCoupon)}
}

func (r *fakeCouponRepo) Insert(ctx context.Context, coupon *domain.PurchasedCoupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNextInserts > 0 {
		r.failNextInserts--
		return errors.New("simulated insert failure")
	}
	r.coupons[coupon.ID] = *coupon
	return nil
}

func (r *fakeCouponRepo) FindByID(ctx context.Context, userID, couponID string) (*domain.PurchasedCoupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[couponID]
	if !ok || c.UserID != userID {
		return nil, domain.ErrCouponNotFound
	}
	copied := c
	return &copied, nil
}

func (r *fakeCouponRepo) FindByUser(ctx context.Context, userID string, onlyUnused bool) ([]*domain.PurchasedCoupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PurchasedCoupon
	for _, c := range r.coupons {
		if c.UserID != userID {
			continue
		}
		if onlyUnused && c.IsUsed {
			continue
		}
		copied := c
		out = append(out, &copied)
	}
	return out, nil
}

// MarkUsed 复刻持久层的 CAS 语义：锁内检查并翻转 IsUsed，
// 并发调用时恰好一个成功。
func (r *fakeCouponRepo) MarkUsed(ctx context.Context, userID, couponID string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[couponID]
	if !ok || c.UserID != userID {
		return domain.ErrCouponNotFound
	}
	if c.IsUsed {
		return domain.ErrAlreadyUsed
	}
	c.IsUsed = true
	c.UsedAt = usedAt
	r.coupons[couponID] = c
	return nil
}

type publishedEvent struct {
	eventType string
	payload   interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishLevelUp(ctx context.Context, event *domain.LevelUpEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{domain.EventTypeLevelUp, event})
	return nil
}

func (p *fakePublisher) PublishCouponPurchased(ctx context.Context, event *domain.CouponPurchasedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{domain.EventTypeCouponPurchased, event})
	return nil
}

func (p *fakePublisher) levelUps() []*domain.LevelUpEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*domain.LevelUpEvent
	for _, e := range p.events {
		if e.eventType == domain.EventTypeLevelUp {
			out = append(out, e.payload.(*domain.LevelUpEvent))
		}
	}
	return out
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubRuleEngine struct{}

// Evaluate 只认 "level >= N" 形式里的 5 和 10 两档，够测试用。
func (stubRuleEngine) Evaluate(rule string, fact domain.Fact) (bool, error) {
	switch rule {
	case "level >= 5":
		return fact.Level >= 5, nil
	case "level >= 10":
		return fact.Level >= 10, nil
	}
	return false, errors.New("unknown rule")
}

type testEnv struct {
	service   *ProgressionService
	progRepo  *fakeProgressionRepo
	coupRepo  *fakeCouponRepo
	publisher *fakePublisher
	clock     *fixedClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	progRepo := newFakeProgressionRepo()
	coupRepo := newFakeCouponRepo()
	publisher := &fakePublisher{}
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	service := NewProgressionService(
		progRepo,
		coupRepo,
		domain.DefaultCatalog,
		stubRuleEngine{},
		publisher,
		clock,
		noop.NewTracerProvider().Tracer("test"),
	)
	return &testEnv{service: service, progRepo: progRepo, coupRepo: coupRepo, publisher: publisher, clock: clock}
}

// ---- 用例 ----

func TestGetOrInitialize_CreatesDefaultRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	record, err := env.service.GetOrInitialize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, record.Level)
	assert.Equal(t, 0, record.Coins)

	// 第二次读到的是同一条记录，不会重复初始化
	again, err := env.service.GetOrInitialize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, record.CreatedAt, again.CreatedAt)
}

func TestGrantExperience_PublishesLevelUpsInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	record, err := env.service.GrantExperience(ctx, "user-1", 2600)
	require.NoError(t, err)
	assert.Equal(t, 3, record.Level)
	assert.Equal(t, 100, record.Experience)
	assert.Equal(t, 10000, record.Coins)

	events := env.publisher.levelUps()
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].NewLevel)
	assert.Equal(t, 5000, events[0].TotalCoins)
	assert.Equal(t, 3, events[1].NewLevel)
	assert.Equal(t, 10000, events[1].TotalCoins)
}

func TestGrantExperience_RejectsNonPositive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.GrantExperience(ctx, "user-1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = env.service.GrantExperience(ctx, "user-1", -10)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestGrantPeriodicExperience_ThrottleGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 刚初始化，发放未到期
	record, granted, err := env.service.GrantPeriodicExperienceIfDue(ctx, "user-1", env.clock.Now())
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, 0, record.Experience)

	// 30 秒后仍未到期
	env.clock.advance(30 * time.Second)
	_, granted, err = env.service.GrantPeriodicExperienceIfDue(ctx, "user-1", env.clock.Now())
	require.NoError(t, err)
	assert.False(t, granted)

	// 超过 2 分钟后到期，发 100 经验并推进时间戳
	env.clock.advance(91 * time.Second)
	record, granted, err = env.service.GrantPeriodicExperienceIfDue(ctx, "user-1", env.clock.Now())
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, domain.PeriodicGrantAmount, record.Experience)
	assert.Equal(t, env.clock.Now(), record.LastGrantAt)

	// 紧接着再询问一次，节流生效
	_, granted, err = env.service.GrantPeriodicExperienceIfDue(ctx, "user-1", env.clock.Now())
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestPurchaseCoupon_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.AdjustCoins(ctx, "user-1", 6000)
	require.NoError(t, err)

	coupon, err := env.service.PurchaseCoupon(ctx, "user-1", "rare_15")
	require.NoError(t, err)
	assert.Equal(t, "rare_15", coupon.CouponID)
	assert.Equal(t, 15, coupon.DiscountPercent)
	assert.False(t, coupon.IsUsed)

	record, err := env.service.GetOrInitialize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1000, record.Coins)
}

func TestPurchaseCoupon_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.AdjustCoins(ctx, "user-1", 4999)
	require.NoError(t, err)

	_, err = env.service.PurchaseCoupon(ctx, "user-1", "rare_15")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// 拒绝的购买不动余额
	record, err := env.service.GetOrInitialize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4999, record.Coins)
}

func TestPurchaseCoupon_UnknownDefinition(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.PurchaseCoupon(context.Background(), "user-1", "no_such_coupon")
	assert.ErrorIs(t, err, domain.ErrCouponNotFound)
}

func TestPurchaseCoupon_DuplicateGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.AdjustCoins(ctx, "user-1", 10000)
	require.NoError(t, err)

	_, err = env.service.PurchaseCoupon(ctx, "user-1", "common_5")
	require.NoError(t, err)

	_, err = env.service.PurchaseCoupon(ctx, "user-1", "common_5")
	assert.ErrorIs(t, err, domain.ErrAlreadyOwned)

	// 已核销的同款仍然算"已拥有"
	coupons, err := env.service.ListCoupons(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	require.NoError(t, env.service.UseCoupon(ctx, "user-1", coupons[0].ID))

	_, err = env.service.PurchaseCoupon(ctx, "user-1", "common_5")
	assert.ErrorIs(t, err, domain.ErrAlreadyOwned)
}

func TestPurchaseCoupon_CompensatesDebitOnInsertFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.AdjustCoins(ctx, "user-1", 6000)
	require.NoError(t, err)

	env.coupRepo.failNextInserts = 1
	_, err = env.service.PurchaseCoupon(ctx, "user-1", "rare_15")
	require.Error(t, err)

	// 补偿退款：余额回到购买前
	record, err := env.service.GetOrInitialize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 6000, record.Coins)

	// 没有留下半张券
	coupons, err := env.service.ListCoupons(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Empty(t, coupons)
}

func TestPurchaseCoupon_ReportsCompensationFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.AdjustCoins(ctx, "user-1", 6000)
	require.NoError(t, err)

	// 购买流程里 Save 的顺序是：扣款 ->（插入失败）-> 补偿退款。
	// 让插入失败，并让补偿那次 Save 也失败。
	env.coupRepo.failNextInserts = 1
	env.progRepo.mu.Lock()
	env.progRepo.failOnSaveNumber = env.progRepo.saveCount + 2
	env.progRepo.mu.Unlock()

	_, err = env.service.PurchaseCoupon(ctx, "user-1", "rare_15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compensation failed")
}

func TestUseCoupon_CASExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.AdjustCoins(ctx, "user-1", 6000)
	require.NoError(t, err)
	coupon, err := env.service.PurchaseCoupon(ctx, "user-1", "rare_15")
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.service.UseCoupon(ctx, "user-1", coupon.ID)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyUsed):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, losses)
}

func TestUseCoupon_NotFound(t *testing.T) {
	env := newTestEnv(t)
	err := env.service.UseCoupon(context.Background(), "user-1", "no_such_purchase")
	assert.ErrorIs(t, err, domain.ErrCouponNotFound)
}

func TestListCoupons_OnlyUnusedFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.AdjustCoins(ctx, "user-1", 10000)
	require.NoError(t, err)
	first, err := env.service.PurchaseCoupon(ctx, "user-1", "common_5")
	require.NoError(t, err)
	_, err = env.service.PurchaseCoupon(ctx, "user-1", "common_10")
	require.NoError(t, err)

	require.NoError(t, env.service.UseCoupon(ctx, "user-1", first.ID))

	all, err := env.service.ListCoupons(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	unused, err := env.service.ListCoupons(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, unused, 1)
	assert.Equal(t, "common_10", unused[0].CouponID)
}

func TestResetProgression_PreservesCoupons(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.GrantExperience(ctx, "user-1", 2600)
	require.NoError(t, err)
	_, err = env.service.PurchaseCoupon(ctx, "user-1", "common_5")
	require.NoError(t, err)

	record, err := env.service.ResetProgression(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, record.Level)
	assert.Equal(t, 0, record.Experience)
	assert.Equal(t, 0, record.Coins)

	// 重置不动已购券
	coupons, err := env.service.ListCoupons(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, coupons, 1)
}

func TestListShop_Annotations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 1 级、1000 金币的新用户
	_, err := env.service.AdjustCoins(ctx, "user-1", 1000)
	require.NoError(t, err)
	_, err = env.service.PurchaseCoupon(ctx, "user-1", "common_5")
	require.NoError(t, err)

	offers, err := env.service.ListShop(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, offers, len(domain.DefaultCatalog))

	byID := make(map[string]ShopOffer)
	for _, o := range offers {
		byID[o.Definition.ID] = o
	}

	assert.True(t, byID["common_5"].Owned)
	assert.False(t, byID["common_10"].Owned)
	assert.False(t, byID["common_10"].Affordable) // 余额已花光
	assert.False(t, byID["common_5"].Locked)      // 无规则的券永不锁定

	// 1 级用户：epic_25 要 5 级、legendary_30 要 10 级
	assert.True(t, byID["epic_25"].Locked)
	assert.True(t, byID["legendary_30"].Locked)
}

func TestListShop_UnlocksAtRequiredLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 发够升到 5 级的经验：1000+1500+2000+2500 = 7000
	_, err := env.service.GrantExperience(ctx, "user-1", 7000)
	require.NoError(t, err)
	record, err := env.service.GetOrInitialize(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 5, record.Level)

	offers, err := env.service.ListShop(ctx, "user-1")
	require.NoError(t, err)
	byID := make(map[string]ShopOffer)
	for _, o := range offers {
		byID[o.Definition.ID] = o
	}
	assert.False(t, byID["epic_25"].Locked)
	assert.True(t, byID["legendary_30"].Locked)
}
