package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderapp "github.com/wyfcoding/tradeexecution/internal/order/application"
	orderdomain "github.com/wyfcoding/tradeexecution/internal/order/domain"
	"github.com/wyfcoding/tradeexecution/internal/slide/domain"
	"github.com/wyfcoding/tradeexecution/internal/slide/infrastructure/memory"
)

// fakeOrderRepo 进程内订单仓储，记录 CommitExecution 次数以验证恰好一次执行
type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*orderdomain.Order
	commits int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*orderdomain.Order)}
}

func (r *fakeOrderRepo) Save(ctx context.Context, order *orderdomain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.OrderID] = order
	return nil
}

func (r *fakeOrderRepo) Get(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[orderID], nil
}

func (r *fakeOrderRepo) ListByUser(ctx context.Context, userID string, status orderdomain.OrderStatus, limit, offset int) ([]*orderdomain.Order, int64, error) {
	return nil, 0, nil
}

func (r *fakeOrderRepo) CommitExecution(ctx context.Context, result *orderdomain.ExecutionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits++
	r.orders[result.Order.OrderID] = result.Order
	for _, child := range result.ChildOrders {
		r.orders[child.OrderID] = child
	}
	return nil
}

func (r *fakeOrderRepo) commitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

type fakeTradeReader struct{}

func (fakeTradeReader) ListByOrder(ctx context.Context, orderID string) ([]*orderdomain.Trade, error) {
	return nil, nil
}

type fakeMarketData struct {
	price decimal.Decimal
}

func (m *fakeMarketData) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return m.price, nil
}

type fakeRiskEngine struct {
	assessment *domain.RiskAssessment
	decision   *domain.RiskDecision
	finalErr   error
}

func (e *fakeRiskEngine) AssessOrderRisk(ctx context.Context, order *orderdomain.Order, orderValue decimal.Decimal) (*domain.RiskAssessment, error) {
	return e.assessment, nil
}

func (e *fakeRiskEngine) FinalRiskCheck(ctx context.Context, userID string, order *orderdomain.Order) (*domain.RiskDecision, error) {
	return e.decision, e.finalErr
}

type fakeBehavior struct {
	mu       sync.Mutex
	score    float64
	recorded int
}

func (b *fakeBehavior) AnalyzeSlideBehavior(ctx context.Context, userID string, gesture *domain.GestureData) (float64, error) {
	return b.score, nil
}

func (b *fakeBehavior) RecordSlideBehavior(ctx context.Context, userID string, gesture *domain.GestureData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorded++
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) SendNotification(ctx context.Context, userID, eventType string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return nil
}

type passVerifiers struct {
	biometricOK bool
}

func (v *passVerifiers) VerifyDevice(ctx context.Context, userID, fingerprint string) (bool, error) {
	return true, nil
}

func (v *passVerifiers) VerifyBiometric(ctx context.Context, userID, token string) (bool, error) {
	return v.biometricOK, nil
}

func (v *passVerifiers) VerifyLocation(ctx context.Context, userID string, location *domain.Location) (bool, error) {
	return true, nil
}

func (v *passVerifiers) VerifySession(ctx context.Context, userID, sessionToken string) (bool, error) {
	return true, nil
}

type slideFixture struct {
	service  *SlideApplicationService
	repo     *fakeOrderRepo
	risk     *fakeRiskEngine
	behavior *fakeBehavior
	notifier *fakeNotifier
	store    *memory.SlideOrderStore
	now      time.Time
}

func newSlideFixture(t *testing.T) *slideFixture {
	t.Helper()

	repo := newFakeOrderRepo()
	market := &fakeMarketData{price: decimal.NewFromInt(100)}
	orders := orderapp.NewOrderApplicationService(repo, fakeTradeReader{}, market)

	risk := &fakeRiskEngine{
		assessment: &domain.RiskAssessment{RiskLevel: domain.RiskLevelLow},
		decision:   &domain.RiskDecision{Approved: true},
	}
	behavior := &fakeBehavior{score: 0.9}
	notifier := &fakeNotifier{}
	store := memory.NewSlideOrderStore()
	mirror := memory.NewSlideOrderStore()
	checker := domain.NewSecurityChecker(&passVerifiers{biometricOK: true}, &passVerifiers{biometricOK: true}, &passVerifiers{biometricOK: true}, &passVerifiers{biometricOK: true})

	f := &slideFixture{
		service:  NewSlideApplicationService(orders, market, risk, behavior, notifier, checker, store, mirror, nil, 2*time.Minute, 3),
		repo:     repo,
		risk:     risk,
		behavior: behavior,
		notifier: notifier,
		store:    store,
		now:      time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
	}
	f.service.now = func() time.Time { return f.now }
	return f
}

func (f *slideFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func marketBuyRequest(qty string) *PrepareSlideRequest {
	return &PrepareSlideRequest{
		Order: &orderapp.PlaceOrderRequest{
			UserID:    "user-1",
			Symbol:    "AAPL",
			Side:      "BUY",
			OrderType: "MARKET",
			Quantity:  qty,
		},
	}
}

func (f *slideFixture) goodSlideData() *domain.SlideData {
	velocities := []float64{0.5, 1.0, 1.5, 2.0, 2.5, 2.5, 2.5, 2.5, 2.5, 2.5, 2.5, 2.0, 1.5, 1.0, 0.5}
	path := make([]domain.PathPoint, 21)
	for i := range path {
		path[i] = domain.PathPoint{X: float64(i) * 15, Y: float64(i%3) - 1, T: int64(i) * 100}
	}
	return &domain.SlideData{
		Gesture: &domain.GestureData{
			Duration:       2500,
			Distance:       300,
			TrackLength:    300,
			Path:           path,
			VelocityPoints: velocities,
		},
		DeviceFingerprint: "fp",
		BiometricToken:    "bio",
		Location:          &domain.Location{Latitude: 40.7, Longitude: -74.0},
		SessionToken:      "sess",
		ClientTimestamp:   f.now.Add(3 * time.Second).UnixMilli(),
	}
}

func (f *slideFixture) badSlideData() *domain.SlideData {
	data := f.goodSlideData()
	data.Gesture.Duration = 200
	return data
}

func TestPrepareSlideOrder_IssuesSession(t *testing.T) {
	f := newSlideFixture(t)

	resp, err := f.service.PrepareSlideOrder(context.Background(), marketBuyRequest("10"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.SlideToken)
	assert.Equal(t, "1000", resp.OrderValue)
	assert.Equal(t, domain.SecurityLevelLow, resp.Requirements.SecurityLevel)
	assert.Equal(t, f.now.Add(2*time.Minute).UnixMilli(), resp.ExpiresAt)

	require.NotNil(t, resp.OrderSummary)
	assert.Equal(t, "AAPL", resp.OrderSummary.Symbol)
	assert.Equal(t, "BUY", resp.OrderSummary.Side)
	assert.Equal(t, "MARKET", resp.OrderSummary.OrderType)
	assert.Equal(t, "10", resp.OrderSummary.Quantity)
	assert.Equal(t, "100", resp.OrderSummary.EstimatedPrice)
	assert.Equal(t, "1000", resp.OrderSummary.EstimatedValue)
	// max(0.99, 1000 × 0.001)
	assert.Equal(t, "1", resp.OrderSummary.EstimatedCommission)

	stored, err := f.store.Get(context.Background(), resp.SlideToken)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.SlideStatusPendingSlide, stored.Status)
}

func TestPrepareSlideOrder_HighValueTier(t *testing.T) {
	f := newSlideFixture(t)

	// 2000 股 × 100 = 200,000，落入最高安全档
	resp, err := f.service.PrepareSlideOrder(context.Background(), marketBuyRequest("2000"))
	require.NoError(t, err)
	assert.Equal(t, domain.SecurityLevelHigh, resp.Requirements.SecurityLevel)
	assert.True(t, resp.Requirements.Biometric)
	assert.True(t, resp.Requirements.LocationVerification)
	assert.Equal(t, domain.SlideComplexityComplex, resp.Requirements.SlideComplexity)
}

func TestPrepareSlideOrder_InvalidOrderRejected(t *testing.T) {
	f := newSlideFixture(t)

	req := marketBuyRequest("0")
	_, err := f.service.PrepareSlideOrder(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, orderdomain.ErrValidation)
}

func TestExecuteSlideOrder_HappyPath(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	resp, err := f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Order)
	assert.Equal(t, string(orderdomain.OrderStatusFilled), resp.Order.Status)
	assert.Equal(t, float64(100), resp.GestureScore)
	assert.Equal(t, float64(100), resp.SecurityScore)
	assert.Equal(t, 1, f.repo.commitCount())
	assert.Equal(t, 1, f.behavior.recorded)

	// 会话一次性使用，执行后立即销毁
	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	assert.ErrorIs(t, err, domain.ErrSlideNotFound)
}

func TestExecuteSlideOrder_GestureRejectedConsumesAttempt(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.badSlideData(),
	})
	require.ErrorIs(t, err, domain.ErrGestureRejected)
	assert.Contains(t, err.Error(), "slide too fast")
	assert.Equal(t, 0, f.repo.commitCount())

	stored, _ := f.store.Get(ctx, prep.SlideToken)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, domain.SlideStatusPendingSlide, stored.Status)
}

func TestExecuteSlideOrder_BlockedAfterMaxAttempts(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
			SlideToken: prep.SlideToken,
			UserID:     "user-1",
			SlideData:  f.badSlideData(),
		})
		require.ErrorIs(t, err, domain.ErrGestureRejected)
	}

	// 第 4 次尝试即便手势有效也被封禁
	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	require.ErrorIs(t, err, domain.ErrMaxAttemptsExceeded)

	stored, _ := f.store.Get(ctx, prep.SlideToken)
	require.NotNil(t, stored)
	assert.Equal(t, domain.SlideStatusBlocked, stored.Status)

	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	assert.ErrorIs(t, err, domain.ErrMaxAttemptsExceeded)
	assert.Equal(t, 0, f.repo.commitCount())
}

func TestExecuteSlideOrder_ExpiredToken(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	f.advance(3 * time.Minute)

	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	require.ErrorIs(t, err, domain.ErrSlideExpired)

	stored, _ := f.store.Get(ctx, prep.SlideToken)
	assert.Nil(t, stored)
	assert.Equal(t, 0, f.repo.commitCount())
}

func TestExecuteSlideOrder_OwnershipMismatch(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-2",
		SlideData:  f.goodSlideData(),
	})
	assert.ErrorIs(t, err, domain.ErrSecurityViolation)

	// 他人访问不消耗尝试次数
	stored, _ := f.store.Get(ctx, prep.SlideToken)
	require.NotNil(t, stored)
	assert.Equal(t, 0, stored.Attempts)
}

func TestExecuteSlideOrder_SecurityCheckFailure(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	// 价值 > 25k 要求生物识别，而生物识别校验不通过
	verifiers := &passVerifiers{biometricOK: false}
	checker := domain.NewSecurityChecker(verifiers, verifiers, verifiers, verifiers)
	f.service.checker = checker

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("500"))
	require.NoError(t, err)

	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	require.ErrorIs(t, err, domain.ErrSecurityCheckFailed)
	assert.Contains(t, err.Error(), "biometric verification failed")
	assert.Equal(t, 0, f.repo.commitCount())
}

func TestExecuteSlideOrder_FinalRiskRejection(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	f.risk.decision = &domain.RiskDecision{Approved: false, Reasons: []string{"insufficient buying power"}}

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	require.ErrorIs(t, err, domain.ErrRiskRejected)
	assert.Equal(t, 0, f.repo.commitCount())

	stored, _ := f.store.Get(ctx, prep.SlideToken)
	require.NotNil(t, stored)
	assert.Equal(t, domain.SlideStatusRiskRejected, stored.Status)

	// 终态拒绝后不能重滑
	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSlideState)
}

func TestExecuteSlideOrder_FinalRiskErrorIsRetryable(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	f.risk.finalErr = errors.New("quote service down")

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRiskRejected)

	// 基础设施错误会话回到待滑动态可重试，但本次尝试照常计数
	stored, _ := f.store.Get(ctx, prep.SlideToken)
	require.NotNil(t, stored)
	assert.Equal(t, domain.SlideStatusPendingSlide, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	f.risk.finalErr = nil
	resp, err := f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	require.NoError(t, err)
	assert.NotNil(t, resp.Order)
}

func TestCancelSlideOrder(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	require.NoError(t, f.service.CancelSlideOrder(ctx, prep.SlideToken, "user-1"))

	// 取消即销毁，重复取消与取消后执行均报会话不存在
	stored, _ := f.store.Get(ctx, prep.SlideToken)
	assert.Nil(t, stored)
	assert.ErrorIs(t, f.service.CancelSlideOrder(ctx, prep.SlideToken, "user-1"), domain.ErrSlideNotFound)
	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	assert.ErrorIs(t, err, domain.ErrSlideNotFound)

	t.Run("他人不能取消", func(t *testing.T) {
		prep2, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
		require.NoError(t, err)
		assert.ErrorIs(t, f.service.CancelSlideOrder(ctx, prep2.SlideToken, "user-2"), domain.ErrSecurityViolation)
	})
}

func TestSweepExpired(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	_, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)
	_, err = f.service.PrepareSlideOrder(ctx, marketBuyRequest("20"))
	require.NoError(t, err)

	swept, err := f.service.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	f.advance(3 * time.Minute)

	swept, err = f.service.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	assert.Equal(t, 0, f.service.ActiveSessions())
}

func TestExecuteSlideOrder_ConcurrentSlidesExecuteOnce(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
				SlideToken: prep.SlideToken,
				UserID:     "user-1",
				SlideData:  f.goodSlideData(),
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, f.repo.commitCount())
}

func TestGetSlideAnalytics(t *testing.T) {
	f := newSlideFixture(t)
	ctx := context.Background()

	prep, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)
	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep.SlideToken,
		UserID:     "user-1",
		SlideData:  f.goodSlideData(),
	})
	require.NoError(t, err)

	prep2, err := f.service.PrepareSlideOrder(ctx, marketBuyRequest("10"))
	require.NoError(t, err)
	_, err = f.service.ExecuteSlideOrder(ctx, &ExecuteSlideRequest{
		SlideToken: prep2.SlideToken,
		UserID:     "user-1",
		SlideData:  f.badSlideData(),
	})
	require.ErrorIs(t, err, domain.ErrGestureRejected)

	stats := f.service.GetSlideAnalytics(ctx, "user-1")
	assert.Equal(t, int64(2), stats.Prepared)
	assert.Equal(t, int64(1), stats.Executed)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, 0.5, stats.SuccessRate)
	assert.Equal(t, float64(100), stats.AvgGestureScore)
	assert.Equal(t, int64(1), stats.RejectionReasons["slide too fast"])
	require.NotNil(t, stats.User)
	assert.Equal(t, int64(2), stats.User.Prepared)
	assert.Equal(t, int64(1), stats.User.Executed)
	assert.Equal(t, 0.5, stats.User.SuccessRate)

	assert.Nil(t, f.service.GetSlideAnalytics(ctx, "stranger").User)
}
