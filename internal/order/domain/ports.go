package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketDataSource 行情源，返回标的的最新报价
type MarketDataSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TradeReader 成交记录只读仓储
type TradeReader interface {
	ListByOrder(ctx context.Context, orderID string) ([]*Trade, error)
}
