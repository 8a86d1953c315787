// Package application 订单执行的用例逻辑
package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradeexecution/internal/order/domain"
	"github.com/wyfcoding/tradeexecution/pkg/logger"
	"github.com/wyfcoding/tradeexecution/pkg/utils"
)

// OrderConditionsRequest 类型特有参数（按订单类型取用对应字段）
type OrderConditionsRequest struct {
	TrailAmount     string `json:"trail_amount"`
	TakeProfitPrice string `json:"take_profit_price"`
	StopLossPrice   string `json:"stop_loss_price"`
	DisplaySize     string `json:"display_size"`
	Duration        int64  `json:"duration"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
}

// PlaceOrderRequest 下单请求 DTO
type PlaceOrderRequest struct {
	UserID      string                  `json:"user_id"`
	Symbol      string                  `json:"symbol"`
	Side        string                  `json:"side"`
	OrderType   string                  `json:"order_type"`
	Quantity    string                  `json:"quantity"`
	Price       string                  `json:"price"`
	StopPrice   string                  `json:"stop_price"`
	LimitPrice  string                  `json:"limit_price"`
	TimeInForce string                  `json:"time_in_force"`
	IsPublic    bool                    `json:"is_public"`
	Conditions  *OrderConditionsRequest `json:"conditions,omitempty"`
}

// TradeDTO 成交 DTO
type TradeDTO struct {
	TradeID    string `json:"trade_id"`
	OrderID    string `json:"order_id"`
	Quantity   string `json:"quantity"`
	Price      string `json:"price"`
	Commission string `json:"commission"`
	NetAmount  string `json:"net_amount"`
	ExecutedAt int64  `json:"executed_at"`
}

// OrderDTO 订单 DTO
type OrderDTO struct {
	OrderID          string      `json:"order_id"`
	UserID           string      `json:"user_id"`
	Symbol           string      `json:"symbol"`
	Side             string      `json:"side"`
	OrderType        string      `json:"order_type"`
	Quantity         string      `json:"quantity"`
	Price            string      `json:"price"`
	StopPrice        string      `json:"stop_price"`
	Status           string      `json:"status"`
	FilledQuantity   string      `json:"filled_quantity"`
	AverageFillPrice string      `json:"average_fill_price"`
	ParentOrderID    string      `json:"parent_order_id,omitempty"`
	Trades           []*TradeDTO `json:"trades,omitempty"`
	ChildOrders      []*OrderDTO `json:"child_orders,omitempty"`
	CreatedAt        int64       `json:"created_at"`
}

// OrderApplicationService 订单应用服务
type OrderApplicationService struct {
	orderRepo  domain.OrderRepository
	tradeRepo  domain.TradeReader
	marketData domain.MarketDataSource
	processor  *domain.Processor
}

// NewOrderApplicationService 创建订单应用服务
func NewOrderApplicationService(orderRepo domain.OrderRepository, tradeRepo domain.TradeReader, marketData domain.MarketDataSource) *OrderApplicationService {
	return &OrderApplicationService{
		orderRepo:  orderRepo,
		tradeRepo:  tradeRepo,
		marketData: marketData,
		processor:  domain.NewProcessor(),
	}
}

// ValidateOrder 仅做订单校验，不落库
func (s *OrderApplicationService) ValidateOrder(ctx context.Context, req *PlaceOrderRequest) (*domain.ValidationResult, error) {
	order, err := s.buildOrder(req)
	if err != nil {
		return &domain.ValidationResult{
			Valid:   false,
			Message: "order validation failed",
			Errors:  []string{err.Error()},
		}, nil
	}
	return domain.ValidateOrder(order), nil
}

// PlaceOrder 直接下单路径（低风险流程，绕过滑动确认）
// 用例流程：
// 1. 构造并校验订单
// 2. 获取当前市场价
// 3. 订单类型处理器评估执行
// 4. 原子落库（订单 + 成交 + 子单）
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderDTO, error) {
	defer logger.LogDuration(ctx, "Order placement completed",
		"user_id", req.UserID,
		"symbol", req.Symbol,
	)()

	logger.Info(ctx, "Placing order",
		"user_id", req.UserID,
		"symbol", req.Symbol,
		"side", req.Side,
		"order_type", req.OrderType,
	)

	order, err := s.buildOrder(req)
	if err != nil {
		logger.Warn(ctx, "Invalid order request",
			"user_id", req.UserID,
			"error", err,
		)
		return nil, err
	}

	if result := domain.ValidateOrder(order); !result.Valid {
		logger.Warn(ctx, "Order rejected by validation",
			"user_id", req.UserID,
			"symbol", req.Symbol,
			"errors", strings.Join(result.Errors, "; "),
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(result.Errors, "; "))
	}

	result, err := s.executeAtMarket(ctx, order)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Order placed",
		"order_id", order.OrderID,
		"user_id", order.UserID,
		"status", order.Status,
		"filled_quantity", order.FilledQuantity.String(),
		"trades", len(result.Trades),
	)

	return toOrderDTO(order, result), nil
}

// PrepareOrder 构造并校验订单但不执行，供滑动确认流程在 prepare 阶段持有
func (s *OrderApplicationService) PrepareOrder(ctx context.Context, req *PlaceOrderRequest) (*domain.Order, error) {
	order, err := s.buildOrder(req)
	if err != nil {
		return nil, err
	}
	if result := domain.ValidateOrder(order); !result.Valid {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(result.Errors, "; "))
	}
	return order, nil
}

// ExecuteHeldOrder 执行 PrepareOrder 构造、经滑动确认后放行的订单
func (s *OrderApplicationService) ExecuteHeldOrder(ctx context.Context, order *domain.Order) (*OrderDTO, error) {
	result, err := s.executeAtMarket(ctx, order)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Held order executed",
		"order_id", order.OrderID,
		"user_id", order.UserID,
		"status", order.Status,
		"trades", len(result.Trades),
	)
	return toOrderDTO(order, result), nil
}

// EvaluateOrder 对挂起订单做一次再评估（冰山切片、TWAP 进度、止损触发等）
func (s *OrderApplicationService) EvaluateOrder(ctx context.Context, orderID string) (*OrderDTO, error) {
	order, err := s.orderRepo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if order.IsTerminal() {
		return toOrderDTO(order, nil), nil
	}

	result, err := s.executeAtMarket(ctx, order)
	if err != nil {
		return nil, err
	}
	return toOrderDTO(order, result), nil
}

// OrderListDTO 订单分页列表
type OrderListDTO struct {
	Orders []*OrderDTO `json:"orders"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

const maxListPageSize = 100

// ListOrders 按用户分页查询订单，status 非空时按状态过滤
func (s *OrderApplicationService) ListOrders(ctx context.Context, userID, status string, limit, offset int) (*OrderListDTO, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if limit <= 0 || limit > maxListPageSize {
		limit = maxListPageSize
	}
	if offset < 0 {
		offset = 0
	}

	orders, total, err := s.orderRepo.ListByUser(ctx, userID, domain.OrderStatus(strings.ToUpper(status)), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	list := &OrderListDTO{
		Orders: make([]*OrderDTO, 0, len(orders)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, order := range orders {
		list.Orders = append(list.Orders, toOrderDTO(order, nil))
	}
	return list, nil
}

// GetOrder 获取订单详情（含成交明细）
func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID, userID string) (*OrderDTO, error) {
	order, err := s.orderRepo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if order.UserID != userID {
		return nil, domain.ErrUnauthorized
	}

	dto := toOrderDTO(order, nil)
	trades, err := s.tradeRepo.ListByOrder(ctx, orderID)
	if err != nil {
		logger.Error(ctx, "Failed to load trades for order", "order_id", orderID, "error", err)
	} else {
		for _, trade := range trades {
			dto.Trades = append(dto.Trades, toTradeDTO(trade))
		}
	}
	return dto, nil
}

// executeAtMarket 以当前市场价评估并原子落库
func (s *OrderApplicationService) executeAtMarket(ctx context.Context, order *domain.Order) (*domain.ExecutionResult, error) {
	currentPrice, err := s.marketData.GetCurrentPrice(ctx, order.Symbol)
	if err != nil {
		logger.Error(ctx, "Failed to fetch market price",
			"symbol", order.Symbol,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch market price for %s: %w", order.Symbol, err)
	}

	result, err := s.processor.Process(order, currentPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to process order %s: %w", order.OrderID, err)
	}

	if err := s.orderRepo.CommitExecution(ctx, result); err != nil {
		logger.Error(ctx, "Failed to commit order execution",
			"order_id", order.OrderID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to commit execution: %w", err)
	}
	return result, nil
}

// buildOrder 将请求 DTO 转换为订单领域对象，按类型解析强类型参数
func (s *OrderApplicationService) buildOrder(req *PlaceOrderRequest) (*domain.Order, error) {
	if req.UserID == "" || req.Symbol == "" || req.Side == "" {
		return nil, fmt.Errorf("%w: user_id, symbol and side are required", domain.ErrValidation)
	}

	quantity, err := parseDecimal(req.Quantity, "quantity")
	if err != nil {
		return nil, err
	}

	order := domain.NewOrder(
		fmt.Sprintf("ORD-%d", utils.GenID()),
		req.UserID,
		req.Symbol,
		domain.OrderSide(strings.ToUpper(req.Side)),
		domain.OrderType(strings.ToUpper(req.OrderType)),
		quantity,
	)
	order.IsPublic = req.IsPublic
	if req.TimeInForce != "" {
		order.TimeInForce = domain.TimeInForce(strings.ToUpper(req.TimeInForce))
	}

	if order.Price, err = parseOptionalDecimal(req.Price, "price"); err != nil {
		return nil, err
	}
	if order.StopPrice, err = parseOptionalDecimal(req.StopPrice, "stop_price"); err != nil {
		return nil, err
	}
	if order.LimitPrice, err = parseOptionalDecimal(req.LimitPrice, "limit_price"); err != nil {
		return nil, err
	}

	if err := applyConditions(order, req.Conditions); err != nil {
		return nil, err
	}
	return order, nil
}

// applyConditions 按订单类型装配强类型参数
func applyConditions(order *domain.Order, req *OrderConditionsRequest) error {
	if req == nil {
		return nil
	}

	switch order.Type {
	case domain.OrderTypeTrailingStop:
		trail, err := parseOptionalDecimal(req.TrailAmount, "trail_amount")
		if err != nil {
			return err
		}
		return order.SetConditions(&domain.TrailingStopConditions{TrailAmount: trail})

	case domain.OrderTypeBracket:
		takeProfit, err := parseOptionalDecimal(req.TakeProfitPrice, "take_profit_price")
		if err != nil {
			return err
		}
		stopLoss, err := parseOptionalDecimal(req.StopLossPrice, "stop_loss_price")
		if err != nil {
			return err
		}
		return order.SetConditions(&domain.BracketConditions{
			TakeProfitPrice: takeProfit,
			StopLossPrice:   stopLoss,
		})

	case domain.OrderTypeIceberg:
		displaySize, err := parseOptionalDecimal(req.DisplaySize, "display_size")
		if err != nil {
			return err
		}
		return order.SetConditions(&domain.IcebergConditions{DisplaySize: displaySize})

	case domain.OrderTypeTWAP, domain.OrderTypeVWAP:
		start, err := parseOptionalTime(req.StartTime, "start_time")
		if err != nil {
			return err
		}
		end, err := parseOptionalTime(req.EndTime, "end_time")
		if err != nil {
			return err
		}
		return order.SetConditions(&domain.ScheduleConditions{
			Duration:  req.Duration,
			StartTime: start,
			EndTime:   end,
		})
	}
	return nil
}

func parseDecimal(value, field string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid %s %q", domain.ErrValidation, field, value)
	}
	return parsed, nil
}

func parseOptionalDecimal(value, field string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(value, field)
}

func parseOptionalTime(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s %q", domain.ErrValidation, field, value)
	}
	return parsed, nil
}

func toTradeDTO(trade *domain.Trade) *TradeDTO {
	return &TradeDTO{
		TradeID:    trade.TradeID,
		OrderID:    trade.OrderID,
		Quantity:   trade.Quantity.String(),
		Price:      trade.Price.String(),
		Commission: trade.Commission.String(),
		NetAmount:  trade.NetAmount.String(),
		ExecutedAt: trade.ExecutedAt.Unix(),
	}
}

func toOrderDTO(order *domain.Order, result *domain.ExecutionResult) *OrderDTO {
	dto := &OrderDTO{
		OrderID:          order.OrderID,
		UserID:           order.UserID,
		Symbol:           order.Symbol,
		Side:             string(order.Side),
		OrderType:        string(order.Type),
		Quantity:         order.Quantity.String(),
		Price:            order.Price.String(),
		StopPrice:        order.StopPrice.String(),
		Status:           string(order.Status),
		FilledQuantity:   order.FilledQuantity.String(),
		AverageFillPrice: order.AverageFillPrice.String(),
		ParentOrderID:    order.ParentOrderID,
		CreatedAt:        order.CreatedAt.Unix(),
	}
	if result != nil {
		for _, trade := range result.Trades {
			dto.Trades = append(dto.Trades, toTradeDTO(trade))
		}
		for _, child := range result.ChildOrders {
			dto.ChildOrders = append(dto.ChildOrders, toOrderDTO(child, nil))
		}
	}
	return dto
}
