package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationResult 订单校验结果，所有违规条目累积在 Errors 中
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *ValidationResult) addError(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ValidateOrder 按订单类型做结构与业务规则校验
// 规则全部检查完毕后一次性返回，校验通过当且仅当无任何违规
func ValidateOrder(order *Order) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if order.Quantity.LessThanOrEqual(decimal.Zero) {
		result.addError("quantity must be greater than zero")
	}
	if order.Side != OrderSideBuy && order.Side != OrderSideSell {
		result.addError("side must be BUY or SELL, got %q", order.Side)
	}

	switch order.Type {
	case OrderTypeMarket:
		// 市价单无需价格字段

	case OrderTypeLimit:
		if order.Price.LessThanOrEqual(decimal.Zero) {
			result.addError("limit order requires a positive price")
		}

	case OrderTypeStop:
		if order.StopPrice.LessThanOrEqual(decimal.Zero) {
			result.addError("stop order requires a positive stop price")
		}

	case OrderTypeStopLimit:
		validateStopLimit(order, result)

	case OrderTypeTrailingStop:
		if order.StopPrice.LessThanOrEqual(decimal.Zero) {
			result.addError("trailing stop order requires a positive stop price")
		}
		c, err := order.TrailingStop()
		if err != nil || c.TrailAmount.LessThanOrEqual(decimal.Zero) {
			result.addError("trailing stop order requires a positive trail amount")
		}

	case OrderTypeBracket:
		validateBracket(order, result)

	case OrderTypeIceberg:
		validateIceberg(order, result)

	case OrderTypeTWAP, OrderTypeVWAP:
		validateSchedule(order, result)

	default:
		result.addError("unsupported order type %q", order.Type)
	}

	if result.Valid {
		result.Message = "order is valid"
	} else {
		result.Message = "order validation failed"
	}
	return result
}

func validateStopLimit(order *Order, result *ValidationResult) {
	if order.StopPrice.LessThanOrEqual(decimal.Zero) {
		result.addError("stop limit order requires a positive stop price")
	}
	if order.LimitPrice.LessThanOrEqual(decimal.Zero) {
		result.addError("stop limit order requires a positive limit price")
	}
	if order.StopPrice.GreaterThan(decimal.Zero) && order.LimitPrice.GreaterThan(decimal.Zero) {
		// 买单触发后以不高于限价买入：止损价必须不超过限价；卖单镜像
		if order.Side == OrderSideBuy && order.StopPrice.GreaterThan(order.LimitPrice) {
			result.addError("buy stop limit requires stop price <= limit price")
		}
		if order.Side == OrderSideSell && order.StopPrice.LessThan(order.LimitPrice) {
			result.addError("sell stop limit requires stop price >= limit price")
		}
	}
}

func validateBracket(order *Order, result *ValidationResult) {
	if order.Price.LessThanOrEqual(decimal.Zero) {
		result.addError("bracket order requires a positive entry price")
	}
	c, err := order.Bracket()
	if err != nil {
		result.addError("bracket order requires take profit and stop loss prices")
		return
	}
	if c.TakeProfitPrice.LessThanOrEqual(decimal.Zero) {
		result.addError("bracket order requires a positive take profit price")
	}
	if c.StopLossPrice.LessThanOrEqual(decimal.Zero) {
		result.addError("bracket order requires a positive stop loss price")
	}
}

func validateIceberg(order *Order, result *ValidationResult) {
	if order.Price.LessThanOrEqual(decimal.Zero) {
		result.addError("iceberg order requires a positive price")
	}
	c, err := order.Iceberg()
	if err != nil || c.DisplaySize.LessThanOrEqual(decimal.Zero) {
		result.addError("iceberg order requires a positive display size")
		return
	}
	// 展示量必须严格小于总量，等于总量的"冰山"没有隐藏部分
	if c.DisplaySize.GreaterThanOrEqual(order.Quantity) {
		result.addError("iceberg display size must be strictly less than total quantity")
	}
}

func validateSchedule(order *Order, result *ValidationResult) {
	c, err := order.Schedule()
	if err != nil {
		result.addError("%s order requires duration, start time and end time", order.Type)
		return
	}
	if c.Duration <= 0 {
		result.addError("%s order requires a positive duration", order.Type)
	}
	if c.StartTime.IsZero() || c.EndTime.IsZero() {
		result.addError("%s order requires both start time and end time", order.Type)
	} else if !c.EndTime.After(c.StartTime) {
		result.addError("%s order requires end time after start time", order.Type)
	}
}
