package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(now time.Time) *Processor {
	seq := 0
	return &Processor{
		now: func() time.Time { return now },
		genID: func(prefix string) string {
			seq++
			return fmt.Sprintf("%s-%d", prefix, seq)
		},
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProcessMarketOrderFillsImmediately(t *testing.T) {
	p := newTestProcessor(time.Now())
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeMarket, d("10"))

	result, err := p.Process(order, d("100"))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.True(t, trade.Quantity.Equal(d("10")))
	assert.True(t, trade.Price.Equal(d("100")))
	// 佣金 = max(0.99, 1000 × 0.001) = 1.00，净额 = 999.00
	assert.True(t, trade.Commission.Equal(d("1")), "commission = %s", trade.Commission)
	assert.True(t, trade.NetAmount.Equal(d("999")), "net = %s", trade.NetAmount)

	assert.Equal(t, OrderStatusFilled, order.Status)
	assert.True(t, order.FilledQuantity.Equal(order.Quantity))
	assert.True(t, order.AverageFillPrice.Equal(d("100")))
}

func TestProcessMarketOrderMinimumCommission(t *testing.T) {
	p := newTestProcessor(time.Now())
	order := NewOrder("ORD-1", "user-1", "PENNY", OrderSideBuy, OrderTypeMarket, d("1"))

	result, err := p.Process(order, d("5"))
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Commission.Equal(d("0.99")))
}

func TestProcessLimitOrderNotFillableStaysPending(t *testing.T) {
	p := newTestProcessor(time.Now())
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideSell, OrderTypeLimit, d("10"))
	order.Price = d("50")

	result, err := p.Process(order, d("48"))
	require.NoError(t, err)

	assert.False(t, result.Executed)
	assert.Empty(t, result.Trades)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.True(t, order.FilledQuantity.IsZero())
}

func TestProcessLimitOrderFillsAtLimitPrice(t *testing.T) {
	p := newTestProcessor(time.Now())
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeLimit, d("4"))
	order.Price = d("101")

	result, err := p.Process(order, d("100"))
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(d("101")))
	assert.Equal(t, OrderStatusFilled, order.Status)
}

func TestProcessStopOrderTriggerConvertsToMarket(t *testing.T) {
	p := newTestProcessor(time.Now())

	t.Run("sell stop not triggered above stop price", func(t *testing.T) {
		order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideSell, OrderTypeStop, d("5"))
		order.StopPrice = d("90")

		result, err := p.Process(order, d("95"))
		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.Equal(t, OrderStatusPending, order.Status)
	})

	t.Run("sell stop triggered executes at current price", func(t *testing.T) {
		order := NewOrder("ORD-2", "user-1", "AAPL", OrderSideSell, OrderTypeStop, d("5"))
		order.StopPrice = d("90")

		result, err := p.Process(order, d("89"))
		require.NoError(t, err)
		require.Len(t, result.Trades, 1)
		assert.True(t, result.Trades[0].Price.Equal(d("89")))
		assert.Equal(t, OrderStatusFilled, order.Status)
	})
}

func TestProcessStopLimitArmsLimitInsteadOfGuaranteeingFill(t *testing.T) {
	p := newTestProcessor(time.Now())

	// 卖单止损 95、限价 94：市价跌破 95 触发，但市价 92 低于限价 94，不成交
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideSell, OrderTypeStopLimit, d("5"))
	order.StopPrice = d("95")
	order.LimitPrice = d("94")

	result, err := p.Process(order, d("92"))
	require.NoError(t, err)
	assert.False(t, result.Executed)
	assert.Equal(t, OrderStatusPending, order.Status)

	// 市价 94 同时满足触发与限价条件，按限价成交
	result, err = p.Process(order, d("94"))
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(d("94")))
	assert.Equal(t, OrderStatusFilled, order.Status)
}

func TestProcessTrailingStopRatchetsWithoutLoosening(t *testing.T) {
	p := newTestProcessor(time.Now())

	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideSell, OrderTypeTrailingStop, d("5"))
	order.StopPrice = d("90")
	require.NoError(t, order.SetConditions(&TrailingStopConditions{TrailAmount: d("5")}))

	// 市价上涨不触发收紧，止损价保持不变
	for _, price := range []string{"96", "100", "120"} {
		result, err := p.Process(order, d(price))
		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.True(t, order.StopPrice.Equal(d("90")), "stop moved to %s at price %s", order.StopPrice, price)
	}

	// 市价跌破 stop - trail 后收紧并触发
	result, err := p.Process(order, d("84"))
	require.NoError(t, err)
	assert.True(t, order.StopPrice.Equal(d("89")), "stop = %s", order.StopPrice)
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Price.Equal(d("84")))
}

func TestProcessTrailingStopSellNeverIncreases(t *testing.T) {
	p := newTestProcessor(time.Now())

	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideSell, OrderTypeTrailingStop, d("100"))
	order.StopPrice = d("90")
	require.NoError(t, order.SetConditions(&TrailingStopConditions{TrailAmount: d("10")}))

	prev := order.StopPrice
	for _, price := range []string{"95", "100", "105", "110", "115"} {
		_, err := p.Process(order, d(price))
		require.NoError(t, err)
		assert.True(t, order.StopPrice.LessThanOrEqual(prev),
			"stop price loosened from %s to %s at price %s", prev, order.StopPrice, price)
		prev = order.StopPrice
	}
}

func TestProcessBracketCreatesChildOrders(t *testing.T) {
	p := newTestProcessor(time.Now())

	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeBracket, d("10"))
	order.Price = d("100")
	require.NoError(t, order.SetConditions(&BracketConditions{
		TakeProfitPrice: d("110"),
		StopLossPrice:   d("95"),
	}))

	result, err := p.Process(order, d("100"))
	require.NoError(t, err)

	assert.Equal(t, OrderStatusFilled, order.Status)
	require.Len(t, result.ChildOrders, 2)

	takeProfit := result.ChildOrders[0]
	stopLoss := result.ChildOrders[1]

	assert.Equal(t, OrderTypeLimit, takeProfit.Type)
	assert.True(t, takeProfit.Price.Equal(d("110")))
	assert.Equal(t, OrderTypeStop, stopLoss.Type)
	assert.True(t, stopLoss.StopPrice.Equal(d("95")))

	for _, child := range result.ChildOrders {
		assert.Equal(t, OrderSideSell, child.Side)
		assert.Equal(t, order.OrderID, child.ParentOrderID)
		assert.True(t, child.Quantity.Equal(order.Quantity))
		assert.NotEmpty(t, child.OCOGroupID)
	}
	assert.Equal(t, takeProfit.OCOGroupID, stopLoss.OCOGroupID)
}

func TestProcessIcebergSlicesUntilFilled(t *testing.T) {
	p := newTestProcessor(time.Now())

	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeIceberg, d("25"))
	order.Price = d("100")
	require.NoError(t, order.SetConditions(&IcebergConditions{DisplaySize: d("10")}))

	// 第一片：10
	result, err := p.Process(order, d("99"))
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Quantity.Equal(d("10")))
	assert.Equal(t, OrderStatusPartiallyFilled, order.Status)

	// 限价条件不满足时不出片
	result, err = p.Process(order, d("101"))
	require.NoError(t, err)
	assert.False(t, result.Executed)
	assert.True(t, order.FilledQuantity.Equal(d("10")))

	// 第二片：10，第三片收尾 5
	_, err = p.Process(order, d("99"))
	require.NoError(t, err)
	result, err = p.Process(order, d("99"))
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Quantity.Equal(d("5")))
	assert.Equal(t, OrderStatusFilled, order.Status)
	assert.True(t, order.FilledQuantity.Equal(order.Quantity))
}

func TestProcessScheduledOrderFollowsWindow(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(100 * time.Minute)

	newTWAP := func() *Order {
		order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeTWAP, d("100"))
		if err := order.SetConditions(&ScheduleConditions{
			Duration:  int64(end.Sub(start).Seconds()),
			StartTime: start,
			EndTime:   end,
		}); err != nil {
			t.Fatal(err)
		}
		return order
	}

	t.Run("before window is a no-op", func(t *testing.T) {
		p := newTestProcessor(start.Add(-time.Minute))
		order := newTWAP()
		result, err := p.Process(order, d("50"))
		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.Equal(t, OrderStatusPending, order.Status)
	})

	t.Run("within window fills to elapsed fraction", func(t *testing.T) {
		order := newTWAP()

		// 30% 经过：目标 floor(100 × 0.3) = 30
		p := newTestProcessor(start.Add(30 * time.Minute))
		result, err := p.Process(order, d("50"))
		require.NoError(t, err)
		require.Len(t, result.Trades, 1)
		assert.True(t, result.Trades[0].Quantity.Equal(d("30")))
		assert.Equal(t, OrderStatusPartiallyFilled, order.Status)

		// 70% 经过：目标 70，补足差额 40
		p = newTestProcessor(start.Add(70 * time.Minute))
		result, err = p.Process(order, d("51"))
		require.NoError(t, err)
		require.Len(t, result.Trades, 1)
		assert.True(t, result.Trades[0].Quantity.Equal(d("40")))

		// 同一时刻重复评估无新增
		result, err = p.Process(order, d("51"))
		require.NoError(t, err)
		assert.False(t, result.Executed)
	})

	t.Run("after window expires unfilled remainder", func(t *testing.T) {
		p := newTestProcessor(end.Add(time.Minute))
		order := newTWAP()
		result, err := p.Process(order, d("50"))
		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.Equal(t, OrderStatusExpired, order.Status)
	})
}

func TestProcessRejectsTerminalOrders(t *testing.T) {
	p := newTestProcessor(time.Now())
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeMarket, d("10"))
	order.Status = OrderStatusCancelled

	_, err := p.Process(order, d("100"))
	assert.Error(t, err)
}

func TestApplyFillInvariant(t *testing.T) {
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeMarket, d("10"))

	require.NoError(t, order.ApplyFill(d("4"), d("100")))
	assert.Equal(t, OrderStatusPartiallyFilled, order.Status)
	assert.True(t, order.FilledQuantity.LessThanOrEqual(order.Quantity))

	// 超量成交被拒绝，订单保持一致
	err := order.ApplyFill(d("7"), d("100"))
	assert.Error(t, err)
	assert.True(t, order.FilledQuantity.Equal(d("4")))

	require.NoError(t, order.ApplyFill(d("6"), d("110")))
	assert.Equal(t, OrderStatusFilled, order.Status)
	assert.True(t, order.FilledQuantity.Equal(order.Quantity))
	// 加权平均价 (4×100 + 6×110) / 10 = 106
	assert.True(t, order.AverageFillPrice.Equal(d("106")), "avg = %s", order.AverageFillPrice)
}
