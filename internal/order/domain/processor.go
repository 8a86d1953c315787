package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradeexecution/pkg/utils"
)

// ExecutionResult 一次订单处理的产物
// Order 为更新后的订单；Trades/ChildOrders 与订单更新必须同一事务落库
type ExecutionResult struct {
	Order       *Order
	Trades      []*Trade
	ChildOrders []*Order
	// Executed 表示本次评估产生了成交
	Executed bool
}

// Processor 订单类型处理器
// 按订单类型将订单对当前市场价做一次评估，产出成交、部分成交或保持挂起
type Processor struct {
	now   func() time.Time
	genID func(prefix string) string
}

// NewProcessor 创建订单处理器
func NewProcessor() *Processor {
	return &Processor{
		now: time.Now,
		genID: func(prefix string) string {
			return fmt.Sprintf("%s-%d", prefix, utils.GenID())
		},
	}
}

// Process 以当前市场价评估订单
// 调用方负责通过 OrderRepository.CommitExecution 原子落库
func (p *Processor) Process(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	if order.IsTerminal() {
		return nil, fmt.Errorf("order %s is already in terminal status %s", order.OrderID, order.Status)
	}
	if currentPrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("current price must be positive, got %s", currentPrice)
	}

	switch order.Type {
	case OrderTypeMarket:
		return p.processMarket(order, currentPrice)
	case OrderTypeLimit:
		return p.processLimit(order, currentPrice)
	case OrderTypeStop:
		return p.processStop(order, currentPrice)
	case OrderTypeStopLimit:
		return p.processStopLimit(order, currentPrice)
	case OrderTypeTrailingStop:
		return p.processTrailingStop(order, currentPrice)
	case OrderTypeBracket:
		return p.processBracket(order, currentPrice)
	case OrderTypeIceberg:
		return p.processIceberg(order, currentPrice)
	case OrderTypeTWAP, OrderTypeVWAP:
		return p.processScheduled(order, currentPrice)
	default:
		return nil, fmt.Errorf("unsupported order type %q", order.Type)
	}
}

// fill 记一笔成交并推进订单状态
func (p *Processor) fill(result *ExecutionResult, order *Order, quantity, price decimal.Decimal) error {
	if err := order.ApplyFill(quantity, price); err != nil {
		return err
	}
	trade := NewTrade(p.genID("TRD"), order, quantity, price, p.now())
	result.Trades = append(result.Trades, trade)
	result.Executed = true
	return nil
}

// processMarket 市价单：立即以当前价全量成交
func (p *Processor) processMarket(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	result := &ExecutionResult{Order: order}
	if err := p.fill(result, order, order.RemainingQuantity(), currentPrice); err != nil {
		return nil, err
	}
	return result, nil
}

// limitFillable 限价单可成交判定：买单市价不高于限价，卖单市价不低于限价
func limitFillable(side OrderSide, currentPrice, limitPrice decimal.Decimal) bool {
	if side == OrderSideBuy {
		return currentPrice.LessThanOrEqual(limitPrice)
	}
	return currentPrice.GreaterThanOrEqual(limitPrice)
}

// processLimit 限价单：可成交则按限价成交，否则保持挂起
func (p *Processor) processLimit(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	result := &ExecutionResult{Order: order}
	if !limitFillable(order.Side, currentPrice, order.Price) {
		return result, nil
	}
	if err := p.fill(result, order, order.RemainingQuantity(), order.Price); err != nil {
		return nil, err
	}
	return result, nil
}

// stopTriggered 止损触发判定：买单市价升破止损价，卖单市价跌破止损价
func stopTriggered(side OrderSide, currentPrice, stopPrice decimal.Decimal) bool {
	if side == OrderSideBuy {
		return currentPrice.GreaterThanOrEqual(stopPrice)
	}
	return currentPrice.LessThanOrEqual(stopPrice)
}

// processStop 止损单：触发后转为市价执行
func (p *Processor) processStop(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	result := &ExecutionResult{Order: order}
	if !stopTriggered(order.Side, currentPrice, order.StopPrice) {
		return result, nil
	}
	if err := p.fill(result, order, order.RemainingQuantity(), currentPrice); err != nil {
		return nil, err
	}
	return result, nil
}

// processStopLimit 止损限价单：触发后转为限价评估，不保证成交
func (p *Processor) processStopLimit(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	result := &ExecutionResult{Order: order}
	if !stopTriggered(order.Side, currentPrice, order.StopPrice) {
		return result, nil
	}
	if !limitFillable(order.Side, currentPrice, order.LimitPrice) {
		// 已触发但限价不满足，继续挂起等待
		return result, nil
	}
	if err := p.fill(result, order, order.RemainingQuantity(), order.LimitPrice); err != nil {
		return nil, err
	}
	return result, nil
}

// processTrailingStop 跟踪止损：先收紧止损价（只紧不松），再做标准触发判定
// 未触发时返回的订单携带更新后的止损价，由调用方持久化
func (p *Processor) processTrailingStop(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	c, err := order.TrailingStop()
	if err != nil {
		return nil, err
	}

	if order.Side == OrderSideBuy {
		if currentPrice.GreaterThan(order.StopPrice.Add(c.TrailAmount)) {
			newStop := currentPrice.Sub(c.TrailAmount)
			if newStop.GreaterThan(order.StopPrice) {
				order.StopPrice = newStop
			}
		}
	} else {
		if currentPrice.LessThan(order.StopPrice.Sub(c.TrailAmount)) {
			newStop := currentPrice.Add(c.TrailAmount)
			if newStop.LessThan(order.StopPrice) {
				order.StopPrice = newStop
			}
		}
	}

	result := &ExecutionResult{Order: order}
	if !stopTriggered(order.Side, currentPrice, order.StopPrice) {
		return result, nil
	}
	if err := p.fill(result, order, order.RemainingQuantity(), currentPrice); err != nil {
		return nil, err
	}
	return result, nil
}

// processBracket 括弧单：入场腿按市价成交，成交后生成止盈限价单与止损单两个子单
// 两个子单共享 OCO 组，一方成交另一方取消
func (p *Processor) processBracket(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	c, err := order.Bracket()
	if err != nil {
		return nil, err
	}

	result := &ExecutionResult{Order: order}
	if err := p.fill(result, order, order.RemainingQuantity(), currentPrice); err != nil {
		return nil, err
	}

	exitSide := order.Side.Opposite()
	ocoGroup := p.genID("OCO")

	takeProfit := NewOrder(p.genID("ORD"), order.UserID, order.Symbol, exitSide, OrderTypeLimit, order.Quantity)
	takeProfit.Price = c.TakeProfitPrice
	takeProfit.ParentOrderID = order.OrderID
	takeProfit.OCOGroupID = ocoGroup

	stopLoss := NewOrder(p.genID("ORD"), order.UserID, order.Symbol, exitSide, OrderTypeStop, order.Quantity)
	stopLoss.StopPrice = c.StopLossPrice
	stopLoss.ParentOrderID = order.OrderID
	stopLoss.OCOGroupID = ocoGroup

	result.ChildOrders = append(result.ChildOrders, takeProfit, stopLoss)
	return result, nil
}

// processIceberg 冰山单：每次评估只有展示量（或更小的剩余量）可成交
// 限价条件满足时按切片成交，反复调用持续消化剩余量
func (p *Processor) processIceberg(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	c, err := order.Iceberg()
	if err != nil {
		return nil, err
	}

	result := &ExecutionResult{Order: order}
	if !limitFillable(order.Side, currentPrice, order.Price) {
		return result, nil
	}

	slice := c.DisplaySize
	if remaining := order.RemainingQuantity(); slice.GreaterThan(remaining) {
		slice = remaining
	}
	if err := p.fill(result, order, slice, order.Price); err != nil {
		return nil, err
	}
	return result, nil
}

// processScheduled TWAP/VWAP：按执行窗口的时间进度推进成交
// 窗口前不动作，窗口后未完成则过期，窗口内补足目标进度与已成交量之间的差额
func (p *Processor) processScheduled(order *Order, currentPrice decimal.Decimal) (*ExecutionResult, error) {
	c, err := order.Schedule()
	if err != nil {
		return nil, err
	}

	result := &ExecutionResult{Order: order}
	now := p.now()

	if now.Before(c.StartTime) {
		return result, nil
	}
	if now.After(c.EndTime) {
		if !order.IsFilled() {
			order.Status = OrderStatusExpired
		}
		return result, nil
	}

	window := c.EndTime.Sub(c.StartTime)
	if window <= 0 {
		return nil, fmt.Errorf("order %s has an empty execution window", order.OrderID)
	}
	elapsed := now.Sub(c.StartTime)
	fraction := decimal.NewFromFloat(elapsed.Seconds() / window.Seconds())

	target := order.Quantity.Mul(fraction).Floor()
	delta := target.Sub(order.FilledQuantity)
	if delta.LessThanOrEqual(decimal.Zero) {
		return result, nil
	}
	if remaining := order.RemainingQuantity(); delta.GreaterThan(remaining) {
		delta = remaining
	}

	if err := p.fill(result, order, delta, currentPrice); err != nil {
		return nil, err
	}
	return result, nil
}
