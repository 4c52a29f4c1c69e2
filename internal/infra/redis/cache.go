package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/pkg/logger"
)

const (
	// DefaultTTL is the default TTL for cached chart entries
	DefaultTTL = 10 * time.Minute

	// KeyPrefix is the prefix for chart cache keys
	KeyPrefix = "coa:"
)

// AccountCache is a Redis-backed cache of accounts and product-GL mappings.
// It implements ledger.AccountCache and is never authoritative.
type AccountCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewAccountCache creates a new chart cache with the default TTL
func NewAccountCache(client *redis.Client, log *logger.Logger) *AccountCache {
	return NewAccountCacheWithTTL(client, DefaultTTL, log)
}

// NewAccountCacheWithTTL creates a new chart cache with custom TTL
func NewAccountCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *AccountCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AccountCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "cache"),
	}
}

// cachedAccount is the JSON form of a cached account
type cachedAccount struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	IsGroup   bool       `json:"is_group"`
	IsActive  bool       `json:"is_active"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func accountKey(tenantID uuid.UUID, code string) string {
	return fmt.Sprintf("%s%s:account:%s", KeyPrefix, tenantID, code)
}

func mappingKey(tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey) string {
	return fmt.Sprintf("%s%s:map:%s:%s:%s", KeyPrefix, tenantID, productType, productID, key)
}

// GetAccount retrieves a cached account
func (c *AccountCache) GetAccount(ctx context.Context, tenantID uuid.UUID, code string) (*ledger.Account, bool, error) {
	val, err := c.client.Get(ctx, accountKey(tenantID, code)).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "code", code)
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get_account", "code", code, "error", err)
		return nil, false, fmt.Errorf("failed to get cached account: %w", err)
	}

	var cached cachedAccount
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached account: %w", err)
	}

	return &ledger.Account{
		ID:        cached.ID,
		TenantID:  cached.TenantID,
		Code:      cached.Code,
		Name:      cached.Name,
		Type:      ledger.AccountType(cached.Type),
		IsGroup:   cached.IsGroup,
		IsActive:  cached.IsActive,
		ParentID:  cached.ParentID,
		CreatedAt: cached.CreatedAt,
	}, true, nil
}

// SetAccount stores an account with the cache TTL
func (c *AccountCache) SetAccount(ctx context.Context, account *ledger.Account) error {
	data, err := json.Marshal(cachedAccount{
		ID:        account.ID,
		TenantID:  account.TenantID,
		Code:      account.Code,
		Name:      account.Name,
		Type:      string(account.Type),
		IsGroup:   account.IsGroup,
		IsActive:  account.IsActive,
		ParentID:  account.ParentID,
		CreatedAt: account.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := c.client.Set(ctx, accountKey(account.TenantID, account.Code), data, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set_account", "code", account.Code, "error", err)
		return fmt.Errorf("failed to set cached account: %w", err)
	}
	return nil
}

// DeleteAccount removes a cached account
func (c *AccountCache) DeleteAccount(ctx context.Context, tenantID uuid.UUID, code string) error {
	return c.client.Del(ctx, accountKey(tenantID, code)).Err()
}

// GetMapping retrieves a cached mapping's account code
func (c *AccountCache) GetMapping(ctx context.Context, tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey) (string, bool, error) {
	code, err := c.client.Get(ctx, mappingKey(tenantID, productType, productID, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get_mapping", "key", key, "error", err)
		return "", false, fmt.Errorf("failed to get cached mapping: %w", err)
	}
	return code, true, nil
}

// SetMapping stores a mapping with the cache TTL
func (c *AccountCache) SetMapping(ctx context.Context, m *ledger.ProductGLMap) error {
	k := mappingKey(m.TenantID, m.ProductType, m.ProductID, m.Key)
	if err := c.client.Set(ctx, k, m.AccountCode, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set_mapping", "key", m.Key, "error", err)
		return fmt.Errorf("failed to set cached mapping: %w", err)
	}
	return nil
}

// DeleteMapping removes a cached mapping
func (c *AccountCache) DeleteMapping(ctx context.Context, tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey) error {
	return c.client.Del(ctx, mappingKey(tenantID, productType, productID, key)).Err()
}

// ClearTenant removes every cached entry of a tenant
func (c *AccountCache) ClearTenant(ctx context.Context, tenantID uuid.UUID) error {
	pattern := fmt.Sprintf("%s%s:*", KeyPrefix, tenantID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
		if count >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			pipe = c.client.Pipeline()
			count = 0
		}
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	return iter.Err()
}
