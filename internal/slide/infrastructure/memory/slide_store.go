// Package memory 滑动会话的内存主存
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wyfcoding/tradeexecution/internal/slide/domain"
)

// SlideOrderStore 基于进程内 map 的会话存储，读写锁保护
// 作为主存使用，Redis 镜像仅用于跨实例可见与崩溃恢复
type SlideOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.SlideOrder
}

// NewSlideOrderStore 创建内存会话存储
func NewSlideOrderStore() *SlideOrderStore {
	return &SlideOrderStore{
		orders: make(map[string]*domain.SlideOrder),
	}
}

// Save 写入或覆盖会话；TTL 由会话自身的 ExpiresAt 表达，此处忽略
func (s *SlideOrderStore) Save(ctx context.Context, order *domain.SlideOrder, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.SlideToken] = order
	return nil
}

// Get 按 token 取会话，不存在返回 (nil, nil)
// 已过期的会话照常返回，过期语义由会话管理器判定
func (s *SlideOrderStore) Get(ctx context.Context, token string) (*domain.SlideOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[token]
	if !ok {
		return nil, nil
	}
	return order, nil
}

// Delete 移除会话，不存在时为空操作
func (s *SlideOrderStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, token)
	return nil
}

// DeleteExpired 移除所有已过期会话并返回被清理的会话
func (s *SlideOrderStore) DeleteExpired(ctx context.Context, now time.Time) ([]*domain.SlideOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*domain.SlideOrder
	for token, order := range s.orders {
		if order.IsExpired(now) {
			expired = append(expired, order)
			delete(s.orders, token)
		}
	}
	return expired, nil
}

// Len 当前会话数，用于指标上报
func (s *SlideOrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
