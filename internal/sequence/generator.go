package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/metrics"
)

// Allocator atomically advances the counter of a tenant series and returns
// the new value. A value handed out is never handed out again, even when the
// caller's business transaction later rolls back.
type Allocator interface {
	Next(ctx context.Context, tenantID uuid.UUID, series string) (int64, error)
}

// CounterSource is the durable record behind allocators that keep their
// counters outside the database. Current seeds them; Advance records every
// number they hand out so the durable counter never falls behind.
type CounterSource interface {
	Current(ctx context.Context, tenantID uuid.UUID, series string) (int64, error)
	Advance(ctx context.Context, tenantID uuid.UUID, series string, value int64) error
}

// Generator formats allocated counters into document numbers
type Generator struct {
	alloc   Allocator
	metrics *metrics.LedgerMetrics
	logger  *logger.Logger
}

// NewGenerator creates a generator over the given allocator
func NewGenerator(alloc Allocator, log *logger.Logger, m *metrics.LedgerMetrics) *Generator {
	return &Generator{
		alloc:   alloc,
		metrics: m,
		logger:  log.WithField("component", "sequence"),
	}
}

// NextNumber returns the next number of series for the tenant, e.g. CERT-000124
func (g *Generator) NextNumber(ctx context.Context, tenantID uuid.UUID, series string) (string, error) {
	s, err := Lookup(series)
	if err != nil {
		return "", apperrors.Validation("unknown sequence series", err)
	}
	if tenantID == uuid.Nil {
		return "", apperrors.Validation("tenant is required", nil)
	}

	n, err := g.alloc.Next(ctx, tenantID, series)
	if err != nil {
		g.logger.WithContext(ctx).Error("sequence allocation failed",
			"tenant_id", tenantID,
			"series", series,
			"error", err,
		)
		return "", fmt.Errorf("failed to allocate %s number: %w", series, err)
	}
	g.metrics.IncSequenceAllocation(series)

	return s.Format(n), nil
}

// MemoryAllocator keeps counters in process memory. It suits tests and
// single-process tools; it does not survive restarts.
type MemoryAllocator struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryAllocator returns an empty allocator
func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{counters: make(map[string]int64)}
}

func (a *MemoryAllocator) Next(ctx context.Context, tenantID uuid.UUID, series string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := tenantID.String() + ":" + series
	a.counters[key]++
	return a.counters[key], nil
}

func (a *MemoryAllocator) Current(ctx context.Context, tenantID uuid.UUID, series string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.counters[tenantID.String()+":"+series], nil
}

// Advance moves a counter forward to at least value
func (a *MemoryAllocator) Advance(ctx context.Context, tenantID uuid.UUID, series string, value int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := tenantID.String() + ":" + series
	a.counters[key] = max(a.counters[key], value)
	return nil
}
