package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeMustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestValidateOrderBasicRules(t *testing.T) {
	order := NewOrder("ORD-1", "user-1", "AAPL", "HOLD", OrderTypeMarket, decimal.Zero)

	result := ValidateOrder(order)
	assert.False(t, result.Valid)
	// 数量与方向的违规同时累积
	assert.Len(t, result.Errors, 2)
}

func TestValidateMarketOrderNeedsNoPrices(t *testing.T) {
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeMarket, d("10"))
	result := ValidateOrder(order)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateLimitOrderRequiresPrice(t *testing.T) {
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeLimit, d("10"))
	assert.False(t, ValidateOrder(order).Valid)

	order.Price = d("100")
	assert.True(t, ValidateOrder(order).Valid)
}

func TestValidateStopLimitPriceRelationship(t *testing.T) {
	tests := []struct {
		name       string
		side       OrderSide
		stopPrice  string
		limitPrice string
		valid      bool
	}{
		{"buy stop below limit", OrderSideBuy, "100", "102", true},
		{"buy stop equals limit", OrderSideBuy, "100", "100", true},
		{"buy stop above limit", OrderSideBuy, "103", "102", false},
		{"sell stop above limit", OrderSideSell, "95", "93", true},
		{"sell stop below limit", OrderSideSell, "92", "93", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := NewOrder("ORD-1", "user-1", "AAPL", tt.side, OrderTypeStopLimit, d("10"))
			order.StopPrice = d(tt.stopPrice)
			order.LimitPrice = d(tt.limitPrice)
			assert.Equal(t, tt.valid, ValidateOrder(order).Valid)
		})
	}
}

func TestValidateTrailingStopRequiresTrailAmount(t *testing.T) {
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideSell, OrderTypeTrailingStop, d("10"))
	order.StopPrice = d("90")
	assert.False(t, ValidateOrder(order).Valid)

	require.NoError(t, order.SetConditions(&TrailingStopConditions{TrailAmount: d("5")}))
	assert.True(t, ValidateOrder(order).Valid)
}

func TestValidateBracketRequiresAllPrices(t *testing.T) {
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeBracket, d("10"))
	order.Price = d("100")
	require.NoError(t, order.SetConditions(&BracketConditions{TakeProfitPrice: d("110")}))

	result := ValidateOrder(order)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "stop loss")

	require.NoError(t, order.SetConditions(&BracketConditions{
		TakeProfitPrice: d("110"),
		StopLossPrice:   d("95"),
	}))
	assert.True(t, ValidateOrder(order).Valid)
}

func TestValidateIcebergDisplaySizeBoundary(t *testing.T) {
	newIceberg := func(displaySize string) *Order {
		order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeIceberg, d("100"))
		order.Price = d("50")
		require.NoError(t, order.SetConditions(&IcebergConditions{DisplaySize: d(displaySize)}))
		return order
	}

	assert.True(t, ValidateOrder(newIceberg("99")).Valid)
	// 展示量等于总量必须被拒绝
	assert.False(t, ValidateOrder(newIceberg("100")).Valid)
	assert.False(t, ValidateOrder(newIceberg("101")).Valid)
}

func TestValidateScheduledOrderWindow(t *testing.T) {
	order := NewOrder("ORD-1", "user-1", "AAPL", OrderSideBuy, OrderTypeVWAP, d("100"))
	assert.False(t, ValidateOrder(order).Valid)

	start := timeMustParse(t, "2026-08-01T10:00:00Z")
	end := timeMustParse(t, "2026-08-01T11:00:00Z")

	require.NoError(t, order.SetConditions(&ScheduleConditions{
		Duration:  3600,
		StartTime: start,
		EndTime:   end,
	}))
	assert.True(t, ValidateOrder(order).Valid)

	// 窗口倒置被拒绝
	require.NoError(t, order.SetConditions(&ScheduleConditions{
		Duration:  3600,
		StartTime: end,
		EndTime:   start,
	}))
	assert.False(t, ValidateOrder(order).Valid)
}
