package mysql

import (
	"context"
	"fmt"

	"github.com/wyfcoding/tradeexecution/internal/order/domain"
	"gorm.io/gorm"
)

// TradeRepository 成交记录查询仓储
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository 创建成交仓储
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// ListByOrder 获取某订单的全部成交，按成交时间升序
func (r *TradeRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("executed_at ASC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for order %s: %w", orderID, err)
	}
	return trades, nil
}
