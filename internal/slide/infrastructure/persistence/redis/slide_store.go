// Package redis 滑动会话的 Redis 镜像存储
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/tradeexecution/internal/slide/domain"
	"github.com/wyfcoding/tradeexecution/pkg/cache"
)

const slideKeyPrefix = "slide:order:"

// SlideOrderStore 带 TTL 的 Redis 会话存储
// TTL 与会话过期窗口一致，key 到期后由 Redis 自行淘汰
type SlideOrderStore struct {
	cache *cache.RedisCache
}

// NewSlideOrderStore 创建 Redis 会话存储
func NewSlideOrderStore(c *cache.RedisCache) *SlideOrderStore {
	return &SlideOrderStore{cache: c}
}

func slideKey(token string) string {
	return slideKeyPrefix + token
}

// Save JSON 序列化后写入，并设置与会话窗口一致的 TTL
func (s *SlideOrderStore) Save(ctx context.Context, order *domain.SlideOrder, ttl time.Duration) error {
	if err := s.cache.SetJSON(ctx, slideKey(order.SlideToken), order, ttl); err != nil {
		return fmt.Errorf("save slide order %s: %w", order.SlideToken, err)
	}
	return nil
}

// Get 按 token 取会话，不存在返回 (nil, nil)
func (s *SlideOrderStore) Get(ctx context.Context, token string) (*domain.SlideOrder, error) {
	var order domain.SlideOrder
	found, err := s.cache.GetJSON(ctx, slideKey(token), &order)
	if err != nil {
		return nil, fmt.Errorf("get slide order %s: %w", token, err)
	}
	if !found {
		return nil, nil
	}
	return &order, nil
}

// Delete 移除会话
func (s *SlideOrderStore) Delete(ctx context.Context, token string) error {
	if err := s.cache.Delete(ctx, slideKey(token)); err != nil {
		return fmt.Errorf("delete slide order %s: %w", token, err)
	}
	return nil
}
