package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/pkg/logger"
)

// Chart manages the chart of accounts and the product-GL map.
// Lookups go through the cache when one is configured; the cache is never
// authoritative and any cache failure falls through to the repository.
type Chart struct {
	repo   Repository
	cache  AccountCache
	logger *logger.Logger
}

// NewChart creates a chart service. cache may be nil.
func NewChart(repo Repository, cache AccountCache, log *logger.Logger) *Chart {
	return &Chart{
		repo:   repo,
		cache:  cache,
		logger: log.WithField("component", "chart"),
	}
}

// CreateAccount adds an account to a tenant's chart
func (c *Chart) CreateAccount(ctx context.Context, account *Account) (*Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	if err := account.Validate(); err != nil {
		return nil, apperrors.Validation("invalid account", err)
	}

	if account.ParentID != nil {
		parent, err := c.repo.GetAccount(ctx, account.TenantID, *account.ParentID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, apperrors.NotFound("parent account", err)
			}
			return nil, apperrors.Internal("failed to load parent account", err)
		}
		if !parent.IsGroup {
			return nil, apperrors.Validation(fmt.Sprintf("parent %s is not a group account", parent.Code), ErrAccountNotPostable)
		}
	}

	if err := c.repo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccountCode) {
			return nil, apperrors.Conflict(fmt.Sprintf("account code %s already exists", account.Code), err)
		}
		return nil, err
	}

	c.logger.WithContext(ctx).Info("account created",
		"tenant_id", account.TenantID,
		"code", account.Code,
		"type", account.Type,
		"is_group", account.IsGroup,
	)
	return account, nil
}

// ListAccounts returns the tenant's chart of accounts ordered by code
func (c *Chart) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]*Account, error) {
	return c.repo.ListAccounts(ctx, tenantID)
}

// SetAccountActive activates or deactivates an account. Inactive accounts stay
// in the chart with their history but reject new postings.
func (c *Chart) SetAccountActive(ctx context.Context, tenantID uuid.UUID, code string, active bool) error {
	account, err := c.ResolveAccount(ctx, tenantID, code, "")
	if err != nil {
		return err
	}

	if err := c.repo.SetAccountActive(ctx, tenantID, account.ID, active); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.DeleteAccount(ctx, tenantID, code); err != nil {
			c.logger.WithContext(ctx).Warn("failed to invalidate cached account", "code", code, "error", err)
		}
	}

	c.logger.WithContext(ctx).Info("account status changed", "tenant_id", tenantID, "code", code, "active", active)
	return nil
}

// ResolveAccount returns the account with the given code. An empty expected
// type accepts any type.
func (c *Chart) ResolveAccount(ctx context.Context, tenantID uuid.UUID, code string, expected AccountType) (*Account, error) {
	if _, err := ParseAccountCode(code); err != nil {
		return nil, apperrors.Validation("invalid account code", err)
	}

	account := c.cachedAccount(ctx, tenantID, code)
	if account == nil {
		var err error
		account, err = c.repo.GetAccountByCode(ctx, tenantID, code)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, apperrors.NotFound(fmt.Sprintf("account %s", code), err)
			}
			return nil, apperrors.Internal("failed to resolve account", err)
		}
		c.storeAccount(ctx, account)
	}

	if expected != "" && account.Type != expected {
		return nil, apperrors.Validation(
			fmt.Sprintf("account %s is %s, expected %s", code, account.Type, expected),
			ErrAccountTypeMismatch,
		)
	}

	return account, nil
}

// SetProductMapping creates or replaces the account a product uses for a role
func (c *Chart) SetProductMapping(ctx context.Context, m ProductGLMap) error {
	if m.TenantID == uuid.Nil {
		return apperrors.Validation("tenant is required", ErrMissingTenant)
	}
	if !m.ProductType.IsValid() {
		return apperrors.Validation(fmt.Sprintf("unknown product type %q", m.ProductType), ErrInvalidProductType)
	}
	if m.ProductType == ProductGeneral && m.ProductID != uuid.Nil {
		return apperrors.Validation("general mappings use the nil product id", ErrInvalidProductType)
	}

	account, err := c.ResolveAccount(ctx, m.TenantID, m.AccountCode, "")
	if err != nil {
		return err
	}
	if !account.IsPostable() {
		return apperrors.Validation(fmt.Sprintf("account %s cannot be posted to", account.Code), ErrAccountNotPostable)
	}

	m.UpdatedAt = time.Now().UTC()
	if err := c.repo.UpsertProductMapping(ctx, &m); err != nil {
		return fmt.Errorf("failed to save product mapping: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.DeleteMapping(ctx, m.TenantID, m.ProductType, m.ProductID, m.Key); err != nil {
			c.logger.WithContext(ctx).Warn("failed to invalidate cached mapping", "key", m.Key, "error", err)
		}
	}

	c.logger.WithContext(ctx).Info("product mapping saved",
		"tenant_id", m.TenantID,
		"product_type", m.ProductType,
		"product_id", m.ProductID,
		"key", m.Key,
		"account_code", m.AccountCode,
	)
	return nil
}

// ResolveProductMapping returns the account code mapped for a product role.
// There is no fallback: a missing mapping blocks the business transaction.
func (c *Chart) ResolveProductMapping(ctx context.Context, tenantID uuid.UUID, productType ProductType, productID uuid.UUID, key MappingKey) (string, error) {
	if c.cache != nil {
		code, ok, err := c.cache.GetMapping(ctx, tenantID, productType, productID, key)
		if err != nil {
			c.logger.WithContext(ctx).Warn("mapping cache lookup failed", "key", key, "error", err)
		} else if ok {
			return code, nil
		}
	}

	m, err := c.repo.GetProductMapping(ctx, tenantID, productType, productID, key)
	if err != nil {
		if errors.Is(err, ErrGLMappingNotConfigured) {
			return "", apperrors.Validation(
				fmt.Sprintf("GL mapping not configured: %s/%s/%s", productType, productID, key),
				err,
			).WithDetail("product_type", string(productType)).
				WithDetail("product_id", productID.String()).
				WithDetail("key", string(key))
		}
		return "", apperrors.Internal("failed to resolve product mapping", err)
	}

	if c.cache != nil {
		if err := c.cache.SetMapping(ctx, m); err != nil {
			c.logger.WithContext(ctx).Warn("failed to cache mapping", "key", key, "error", err)
		}
	}

	return m.AccountCode, nil
}

// ResolveMappedAccount resolves a product mapping and then the account it
// points to.
func (c *Chart) ResolveMappedAccount(ctx context.Context, tenantID uuid.UUID, productType ProductType, productID uuid.UUID, key MappingKey, expected AccountType) (*Account, error) {
	code, err := c.ResolveProductMapping(ctx, tenantID, productType, productID, key)
	if err != nil {
		return nil, err
	}
	return c.ResolveAccount(ctx, tenantID, code, expected)
}

// ResolveGeneralAccount resolves a tenant-wide mapping such as cash or TDS payable
func (c *Chart) ResolveGeneralAccount(ctx context.Context, tenantID uuid.UUID, key MappingKey, expected AccountType) (*Account, error) {
	return c.ResolveMappedAccount(ctx, tenantID, ProductGeneral, uuid.Nil, key, expected)
}

func (c *Chart) cachedAccount(ctx context.Context, tenantID uuid.UUID, code string) *Account {
	if c.cache == nil {
		return nil
	}
	account, ok, err := c.cache.GetAccount(ctx, tenantID, code)
	if err != nil {
		c.logger.WithContext(ctx).Warn("account cache lookup failed", "code", code, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return account
}

func (c *Chart) storeAccount(ctx context.Context, account *Account) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetAccount(ctx, account); err != nil {
		c.logger.WithContext(ctx).Warn("failed to cache account", "code", account.Code, "error", err)
	}
}
