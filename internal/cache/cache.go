package cache

import (
	"context"
	"time"

	"possale/backend/internal/domain"
)

// SaleCache holds read projections of committed sales. Writers must Invalidate after
// any change to a sale. Readers take a Version before loading from storage and store
// with SetIfVersion, so a projection read before an invalidation is never cached.
type SaleCache interface {
	Get(ctx context.Context, saleID string) (*domain.Sale, bool, error)
	Version(ctx context.Context, saleID string) (int64, error)
	// SetIfVersion reports false when saleID was invalidated after version was read.
	SetIfVersion(ctx context.Context, sale *domain.Sale, version int64, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, saleID string) error
}

type NoopSaleCache struct{}

func (NoopSaleCache) Get(_ context.Context, _ string) (*domain.Sale, bool, error) {
	return nil, false, nil
}

func (NoopSaleCache) Version(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopSaleCache) SetIfVersion(_ context.Context, _ *domain.Sale, _ int64, _ time.Duration) (bool, error) {
	return false, nil
}

func (NoopSaleCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
