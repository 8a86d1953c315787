// Package marketdata 行情接入，从 Redis 读取上游行情服务写入的最新报价
package marketdata

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/tradeexecution/pkg/cache"
)

const quoteKeyPrefix = "quote:"

// RedisQuoteSource 以 Redis 为行情快照源
// 上游行情网关按 quote:<symbol> 写入最新成交价的十进制字符串
type RedisQuoteSource struct {
	cache *cache.RedisCache
}

// NewRedisQuoteSource 创建 Redis 行情源
func NewRedisQuoteSource(c *cache.RedisCache) *RedisQuoteSource {
	return &RedisQuoteSource{cache: c}
}

// GetCurrentPrice 取标的最新价，无报价或报价非法均返回错误
func (s *RedisQuoteSource) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	val, err := s.cache.Get(ctx, quoteKeyPrefix+symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch quote for %s: %w", symbol, err)
	}
	if val == "" {
		return decimal.Zero, fmt.Errorf("no quote available for %s", symbol)
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed quote for %s: %w", symbol, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("non-positive quote for %s: %s", symbol, price)
	}
	return price, nil
}
