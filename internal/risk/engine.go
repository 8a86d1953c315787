// Package risk 下单前与执行前的风险评估
package risk

import (
	"context"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	orderdomain "github.com/wyfcoding/tradeexecution/internal/order/domain"
	slidedomain "github.com/wyfcoding/tradeexecution/internal/slide/domain"
	"github.com/wyfcoding/tradeexecution/pkg/cache"
	"github.com/wyfcoding/tradeexecution/pkg/logger"
)

const riskProfileKeyPrefix = "user:risk:profile:"

// OCC 期权代码：标的(1-6 字母) + 到期日(6 位) + C/P + 行权价(8 位)
var occOptionSymbol = regexp.MustCompile(`^[A-Z]{1,6}\d{6}[CP]\d{8}$`)

// UserRiskProfile 账户风险画像，由账户服务维护在 Redis
type UserRiskProfile struct {
	MarginEnabled  bool            `json:"margin_enabled"`
	OptionsEnabled bool            `json:"options_enabled"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
}

// Engine 风险引擎
// prepare 阶段按订单价值与标的类型分档，执行前以最新价格复核
type Engine struct {
	cache      *cache.RedisCache
	marketData orderdomain.MarketDataSource

	// 风险分档与复核阈值
	MediumValueThreshold decimal.Decimal
	HighValueThreshold   decimal.Decimal
	MaxOrderValue        decimal.Decimal
}

// NewEngine 创建风险引擎
func NewEngine(c *cache.RedisCache, marketData orderdomain.MarketDataSource) *Engine {
	return &Engine{
		cache:                c,
		marketData:           marketData,
		MediumValueThreshold: decimal.NewFromInt(25000),
		HighValueThreshold:   decimal.NewFromInt(100000),
		MaxOrderValue:        decimal.NewFromInt(1000000),
	}
}

// AssessOrderRisk prepare 阶段的风险评估
// 画像缺失按保守档处理而不阻断，只影响告警内容
func (e *Engine) AssessOrderRisk(ctx context.Context, order *orderdomain.Order, orderValue decimal.Decimal) (*slidedomain.RiskAssessment, error) {
	assessment := &slidedomain.RiskAssessment{
		RiskLevel: slidedomain.RiskLevelLow,
		IsOptions: occOptionSymbol.MatchString(order.Symbol),
	}

	if orderValue.GreaterThan(e.MediumValueThreshold) {
		assessment.RiskLevel = slidedomain.RiskLevelMedium
	}
	if orderValue.GreaterThan(e.HighValueThreshold) {
		assessment.RiskLevel = slidedomain.RiskLevelHigh
		assessment.Warnings = append(assessment.Warnings, "large order value")
	}

	if assessment.IsOptions {
		assessment.Warnings = append(assessment.Warnings, "options contract")
		if assessment.RiskLevel == slidedomain.RiskLevelLow {
			assessment.RiskLevel = slidedomain.RiskLevelMedium
		}
	}

	profile, err := e.loadProfile(ctx, order.UserID)
	if err != nil {
		// 画像读取失败不阻断评估，记录后按非保证金账户处理
		logger.Warn(ctx, "Failed to load user risk profile", "user_id", order.UserID, "error", err)
	}
	if profile != nil && profile.MarginEnabled {
		assessment.IsMargin = true
		assessment.Warnings = append(assessment.Warnings, "margin account")
	}

	if order.Type == orderdomain.OrderTypeMarket {
		assessment.Warnings = append(assessment.Warnings, "market order executes at prevailing price")
	}

	return assessment, nil
}

// FinalRiskCheck 手势通过后、执行前以最新价格复核
// 与 prepare 阶段不同，这里的不通过是终态拒绝
func (e *Engine) FinalRiskCheck(ctx context.Context, userID string, order *orderdomain.Order) (*slidedomain.RiskDecision, error) {
	price, err := e.marketData.GetCurrentPrice(ctx, order.Symbol)
	if err != nil {
		return nil, fmt.Errorf("final risk check for %s: %w", order.Symbol, err)
	}

	notional := order.Quantity.Mul(price)
	decision := &slidedomain.RiskDecision{Approved: true}

	if notional.GreaterThan(e.MaxOrderValue) {
		decision.Approved = false
		decision.Reasons = append(decision.Reasons, "order value exceeds account limit")
	}

	if order.Side == orderdomain.OrderSideBuy {
		profile, err := e.loadProfile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("final risk check load profile: %w", err)
		}
		if profile != nil && profile.BuyingPower.GreaterThan(decimal.Zero) && notional.GreaterThan(profile.BuyingPower) {
			decision.Approved = false
			decision.Reasons = append(decision.Reasons, "insufficient buying power")
		}
	}

	return decision, nil
}

func (e *Engine) loadProfile(ctx context.Context, userID string) (*UserRiskProfile, error) {
	var profile UserRiskProfile
	found, err := e.cache.GetJSON(ctx, riskProfileKeyPrefix+userID, &profile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &profile, nil
}
