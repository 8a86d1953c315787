// Package domain 包含订单执行引擎的领域模型
package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite 返回相反方向
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeLimit        OrderType = "LIMIT"
	OrderTypeStop         OrderType = "STOP"
	OrderTypeStopLimit    OrderType = "STOP_LIMIT"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP"
	OrderTypeBracket      OrderType = "BRACKET"
	OrderTypeIceberg      OrderType = "ICEBERG"
	OrderTypeTWAP         OrderType = "TWAP"
	OrderTypeVWAP         OrderType = "VWAP"
)

// TimeInForce 订单有效期
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good Till Cancel
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceIOC TimeInForce = "IOC" // Immediate Or Cancel
)

// TrailingStopConditions 跟踪止损参数
type TrailingStopConditions struct {
	TrailAmount decimal.Decimal `json:"trail_amount"`
}

// BracketConditions 括弧单参数
type BracketConditions struct {
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
}

// IcebergConditions 冰山单参数
type IcebergConditions struct {
	DisplaySize decimal.Decimal `json:"display_size"`
}

// ScheduleConditions TWAP/VWAP 执行窗口参数
type ScheduleConditions struct {
	// 执行时长（秒）
	Duration int64 `json:"duration"`
	// 窗口起止
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Order 订单实体
// 九种订单类型共用一张表，类型特有的参数序列化在 conditions 列中
type Order struct {
	gorm.Model
	// 订单 ID
	OrderID string `gorm:"column:order_id;type:varchar(32);uniqueIndex;not null" json:"order_id"`
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);index;not null" json:"user_id"`
	// 交易标的符号
	Symbol string `gorm:"column:symbol;type:varchar(20);index;not null" json:"symbol"`
	// 买卖方向
	Side OrderSide `gorm:"column:side;type:varchar(10);not null" json:"side"`
	// 订单类型
	Type OrderType `gorm:"column:type;type:varchar(20);not null" json:"type"`
	// 数量
	Quantity decimal.Decimal `gorm:"column:quantity;type:decimal(20,8);not null" json:"quantity"`
	// 限价（LIMIT/BRACKET/ICEBERG 使用）
	Price decimal.Decimal `gorm:"column:price;type:decimal(20,8)" json:"price"`
	// 止损触发价（STOP/STOP_LIMIT/TRAILING_STOP 使用）
	StopPrice decimal.Decimal `gorm:"column:stop_price;type:decimal(20,8)" json:"stop_price"`
	// 触发后的限价（STOP_LIMIT 使用）
	LimitPrice decimal.Decimal `gorm:"column:limit_price;type:decimal(20,8)" json:"limit_price"`
	// 有效期策略
	TimeInForce TimeInForce `gorm:"column:time_in_force;type:varchar(10)" json:"time_in_force"`
	// 订单过期时间
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	// 是否公开可见
	IsPublic bool `gorm:"column:is_public" json:"is_public"`
	// 类型特有参数（JSON，按 Type 解码为强类型结构）
	Conditions string `gorm:"column:conditions;type:text" json:"conditions,omitempty"`
	// 订单状态
	Status OrderStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	// 已成交数量
	FilledQuantity decimal.Decimal `gorm:"column:filled_quantity;type:decimal(20,8);not null;default:0" json:"filled_quantity"`
	// 平均成交价
	AverageFillPrice decimal.Decimal `gorm:"column:average_fill_price;type:decimal(20,8)" json:"average_fill_price"`
	// 父订单 ID（括弧单子单回链母单）
	ParentOrderID string `gorm:"column:parent_order_id;type:varchar(32);index" json:"parent_order_id,omitempty"`
	// OCO 组 ID，同组子单一方成交另一方取消
	OCOGroupID string `gorm:"column:oco_group_id;type:varchar(32);index" json:"oco_group_id,omitempty"`
}

// NewOrder 创建订单
func NewOrder(orderID, userID, symbol string, side OrderSide, orderType OrderType, quantity decimal.Decimal) *Order {
	return &Order{
		OrderID:        orderID,
		UserID:         userID,
		Symbol:         symbol,
		Side:           side,
		Type:           orderType,
		Quantity:       quantity,
		FilledQuantity: decimal.Zero,
		Status:         OrderStatusPending,
		TimeInForce:    TimeInForceGTC,
	}
}

// RemainingQuantity 获取剩余数量
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsFilled 是否已完全成交
func (o *Order) IsFilled() bool {
	return o.FilledQuantity.GreaterThanOrEqual(o.Quantity)
}

// IsTerminal 是否为终态
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// CanBeCancelled 是否可以取消
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPartiallyFilled
}

// ApplyFill 将一笔成交记入订单：累计成交量、加权平均价并推进状态。
// 不变式：FilledQuantity 不得超过 Quantity。
func (o *Order) ApplyFill(quantity, price decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("fill quantity must be positive, got %s", quantity)
	}
	newFilled := o.FilledQuantity.Add(quantity)
	if newFilled.GreaterThan(o.Quantity) {
		return fmt.Errorf("fill exceeds order quantity: %s > %s", newFilled, o.Quantity)
	}

	notionalBefore := o.AverageFillPrice.Mul(o.FilledQuantity)
	o.FilledQuantity = newFilled
	o.AverageFillPrice = notionalBefore.Add(price.Mul(quantity)).Div(newFilled)

	if o.IsFilled() {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	return nil
}

// SetConditions 序列化类型特有参数
func (o *Order) SetConditions(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal order conditions: %w", err)
	}
	o.Conditions = string(data)
	return nil
}

// TrailingStop 解码跟踪止损参数
func (o *Order) TrailingStop() (*TrailingStopConditions, error) {
	var c TrailingStopConditions
	if err := o.decodeConditions(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Bracket 解码括弧单参数
func (o *Order) Bracket() (*BracketConditions, error) {
	var c BracketConditions
	if err := o.decodeConditions(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Iceberg 解码冰山单参数
func (o *Order) Iceberg() (*IcebergConditions, error) {
	var c IcebergConditions
	if err := o.decodeConditions(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Schedule 解码 TWAP/VWAP 窗口参数
func (o *Order) Schedule() (*ScheduleConditions, error) {
	var c ScheduleConditions
	if err := o.decodeConditions(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (o *Order) decodeConditions(dest interface{}) error {
	if o.Conditions == "" {
		return fmt.Errorf("order %s has no conditions for type %s", o.OrderID, o.Type)
	}
	if err := json.Unmarshal([]byte(o.Conditions), dest); err != nil {
		return fmt.Errorf("failed to decode conditions for order %s: %w", o.OrderID, err)
	}
	return nil
}

// Trade 成交记录，不可变
// 一笔订单可能产生多笔成交（部分成交、冰山切片、TWAP/VWAP 切片）
type Trade struct {
	gorm.Model
	TradeID string `gorm:"column:trade_id;type:varchar(32);uniqueIndex;not null" json:"trade_id"`
	OrderID string `gorm:"column:order_id;type:varchar(32);index;not null" json:"order_id"`
	Symbol  string `gorm:"column:symbol;type:varchar(20);index;not null" json:"symbol"`
	Side    OrderSide `gorm:"column:side;type:varchar(10);not null" json:"side"`
	// 成交数量
	Quantity decimal.Decimal `gorm:"column:quantity;type:decimal(20,8);not null" json:"quantity"`
	// 成交价
	Price decimal.Decimal `gorm:"column:price;type:decimal(20,8);not null" json:"price"`
	// 佣金
	Commission decimal.Decimal `gorm:"column:commission;type:decimal(20,8);not null" json:"commission"`
	// 其他费用
	Fees decimal.Decimal `gorm:"column:fees;type:decimal(20,8);not null" json:"fees"`
	// 净额 = 名义金额 - 佣金
	NetAmount decimal.Decimal `gorm:"column:net_amount;type:decimal(20,8);not null" json:"net_amount"`
	// 成交时间
	ExecutedAt time.Time `gorm:"column:executed_at;not null" json:"executed_at"`
}

var (
	commissionRate = decimal.NewFromFloat(0.001)
	commissionMin  = decimal.NewFromFloat(0.99)
)

// CalculateCommission 佣金模型：max(0.99, 名义金额 × 0.001)
func CalculateCommission(quantity, price decimal.Decimal) decimal.Decimal {
	commission := quantity.Mul(price).Mul(commissionRate)
	if commission.LessThan(commissionMin) {
		return commissionMin
	}
	return commission
}

// NewTrade 创建成交记录并计算佣金与净额
func NewTrade(tradeID string, order *Order, quantity, price decimal.Decimal, executedAt time.Time) *Trade {
	notional := quantity.Mul(price)
	commission := CalculateCommission(quantity, price)
	return &Trade{
		TradeID:    tradeID,
		OrderID:    order.OrderID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
		Fees:       decimal.Zero,
		NetAmount:  notional.Sub(commission),
		ExecutedAt: executedAt,
	}
}

// OrderRepository 订单仓储接口
// CommitExecution 必须原子落库：订单状态/成交量更新、成交记录与括弧子单为同一事务
type OrderRepository interface {
	// 保存订单
	Save(ctx context.Context, order *Order) error
	// 获取订单
	Get(ctx context.Context, orderID string) (*Order, error)
	// 获取用户订单列表
	ListByUser(ctx context.Context, userID string, status OrderStatus, limit, offset int) ([]*Order, int64, error)
	// 原子提交一次处理结果：订单更新 + 成交记录 + 子单 + 兄弟单取消
	CommitExecution(ctx context.Context, result *ExecutionResult) error
}
