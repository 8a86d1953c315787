// Package mysql 订单与成交的 GORM 持久化实现
package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/tradeexecution/internal/order/domain"
	"gorm.io/gorm"
)

// OrderRepository 订单仓储的 MySQL 实现
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save 保存或更新订单
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	if err := r.db.WithContext(ctx).Save(order).Error; err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.OrderID, err)
	}
	return nil
}

// Get 按订单 ID 获取订单，不存在时返回 (nil, nil)
func (r *OrderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return &order, nil
}

// ListByUser 获取用户订单列表
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, status domain.OrderStatus, limit, offset int) ([]*domain.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Order{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []*domain.Order
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// CommitExecution 将一次处理结果原子落库
// 同一事务内完成：订单更新、成交记录插入、括弧子单插入、OCO 兄弟单取消。
// 任何一步失败整体回滚，订单不会停留在不一致状态。
func (r *OrderRepository) CommitExecution(ctx context.Context, result *domain.ExecutionResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(result.Order).Error; err != nil {
			return fmt.Errorf("failed to update order %s: %w", result.Order.OrderID, err)
		}

		for _, trade := range result.Trades {
			if err := tx.Create(trade).Error; err != nil {
				return fmt.Errorf("failed to insert trade %s: %w", trade.TradeID, err)
			}
		}

		for _, child := range result.ChildOrders {
			if err := tx.Create(child).Error; err != nil {
				return fmt.Errorf("failed to insert child order %s: %w", child.OrderID, err)
			}
		}

		// OCO 联动：本单产生成交且属于某个 OCO 组时，同事务取消未终态兄弟单
		if result.Executed && result.Order.OCOGroupID != "" {
			err := tx.Model(&domain.Order{}).
				Where("oco_group_id = ? AND order_id <> ?", result.Order.OCOGroupID, result.Order.OrderID).
				Where("status IN ?", []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusPartiallyFilled}).
				Update("status", domain.OrderStatusCancelled).Error
			if err != nil {
				return fmt.Errorf("failed to cancel oco siblings: %w", err)
			}
		}

		return nil
	})
}
