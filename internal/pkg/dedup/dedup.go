package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "kanbanhub:dedup:"

// Deduplicator 保证同一个 key 在 ttl 内只被处理一次。
//
// 配置了 Redis 时多个实例共享去重状态，否则退化为进程内记录。
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration

	mu    sync.Mutex
	local map[string]time.Time
	now   func() time.Time
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Deduplicator{
		rdb:   rdb,
		ttl:   ttl,
		local: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Key 由多个部分拼出去重 key，例如 ("due", cardID, userID, "2024-05-01")。
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Claim 首次出现返回 true，ttl 内重复出现返回 false。
func (d *Deduplicator) Claim(ctx context.Context, key string) (bool, error) {
	if d == nil || key == "" {
		return true, nil
	}
	hashed := keyPrefix + hashKey(key)
	if d.rdb == nil {
		return d.claimLocal(hashed), nil
	}
	ok, err := d.rdb.SetNX(ctx, hashed, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

// Release 删除记录，发送失败时调用以便下次重试。
func (d *Deduplicator) Release(ctx context.Context, key string) error {
	if d == nil || key == "" {
		return nil
	}
	hashed := keyPrefix + hashKey(key)
	if d.rdb == nil {
		d.mu.Lock()
		delete(d.local, hashed)
		d.mu.Unlock()
		return nil
	}
	if err := d.rdb.Del(ctx, hashed).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func (d *Deduplicator) claimLocal(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.local {
		if !now.Before(exp) {
			delete(d.local, k)
		}
	}
	if _, ok := d.local[key]; ok {
		return false
	}
	d.local[key] = now.Add(d.ttl)
	return true
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
