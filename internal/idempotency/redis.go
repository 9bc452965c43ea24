// Package idempotency 意图投递的幂等检查
// NSQ 至少投递一次,同一条暗码广播被重投时只处理第一次
package idempotency

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ==================== 常量定义 ====================

const (
	keySeparator          = ":"
	idempotencyPrefix     = "idemp"
	redisPlaceholderValue = "1"
)

// ==================== 错误定义 ====================

var (
	// ErrRedisSetFailed Redis 设置失败错误
	ErrRedisSetFailed = errors.New("failed to set idempotency key in redis")

	// ErrEmptyKey 没有可用于去重的标识
	ErrEmptyKey = errors.New("idempotency key is empty")
)

// ==================== 接口定义 ====================

// Checker 幂等性检查器接口
type Checker interface {
	// CheckAndSet 第一次见到 key 时返回 true,ttl 内再次出现返回 false
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget 处理失败时撤销标记,允许重投
	Forget(ctx context.Context, key string) error
}

// ==================== Redis 实现 ====================

// RedisChecker 基于 Redis SETNX 的幂等性检查器,多实例共享
type RedisChecker struct {
	client    *redis.Client
	Namespace string // 命名空间,用于隔离不同服务的幂等性键
}

// NewRedisChecker 创建 Redis 幂等性检查器实例
func NewRedisChecker(client *redis.Client, namespace string) *RedisChecker {
	return &RedisChecker{
		client:    client,
		Namespace: namespace,
	}
}

// CheckAndSet 检查并设置幂等性
func (checker *RedisChecker) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	isNew, err := checker.client.SetNX(ctx, checker.buildIdempotencyKey(key), redisPlaceholderValue, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisSetFailed, err)
	}
	return isNew, nil
}

// Forget 删除标记
func (checker *RedisChecker) Forget(ctx context.Context, key string) error {
	if err := checker.client.Del(ctx, checker.buildIdempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete idempotency key: %w", err)
	}
	return nil
}

// buildIdempotencyKey 格式: {namespace}:idemp:{sha1(key)}
func (checker *RedisChecker) buildIdempotencyKey(key string) string {
	return strings.Join([]string{checker.Namespace, idempotencyPrefix, hashKey(key)}, keySeparator)
}

// ==================== 内存实现 ====================

// MemoryChecker 单实例部署或未配置 Redis 时使用
type MemoryChecker struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

// NewMemoryChecker 创建内存幂等性检查器
func NewMemoryChecker() *MemoryChecker {
	return &MemoryChecker{
		now:     time.Now,
		expires: make(map[string]time.Time),
	}
}

// CheckAndSet 顺带清理已过期的键
func (checker *MemoryChecker) CheckAndSet(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	checker.mu.Lock()
	defer checker.mu.Unlock()

	now := checker.now()
	for existing, expiresAt := range checker.expires {
		if !now.Before(expiresAt) {
			delete(checker.expires, existing)
		}
	}

	hashed := hashKey(key)
	if _, seen := checker.expires[hashed]; seen {
		return false, nil
	}
	checker.expires[hashed] = now.Add(ttl)
	return true, nil
}

// Forget 删除标记
func (checker *MemoryChecker) Forget(_ context.Context, key string) error {
	checker.mu.Lock()
	defer checker.mu.Unlock()
	delete(checker.expires, hashKey(key))
	return nil
}

// Len 当前保留的键数
func (checker *MemoryChecker) Len() int {
	checker.mu.Lock()
	defer checker.mu.Unlock()
	return len(checker.expires)
}

func hashKey(key string) string {
	hash := sha1.Sum([]byte(key))
	return hex.EncodeToString(hash[:])
}
