package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"possale/backend/internal/cache"
	"possale/backend/internal/domain"
	"possale/backend/internal/gateway"
	"possale/backend/internal/metrics"
	"possale/backend/internal/sale"
	"possale/backend/internal/store"
	"possale/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options carries the optional collaborators. Zero values fall back to no-op
// implementations so tests only set what they exercise.
type Options struct {
	Cache    cache.SaleCache
	CacheTTL time.Duration
	Gateway  gateway.Gateway
	Currency string
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Clock    func() time.Time
}

type Service struct {
	repo     store.Repository
	builder  *sale.Builder
	cache    cache.SaleCache
	cacheTTL time.Duration
	gateway  gateway.Gateway
	currency string
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopSaleCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:     repo,
		builder:  sale.NewBuilder(repo, repo, repo).WithClock(opts.Clock),
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		gateway:  opts.Gateway,
		currency: opts.Currency,
		metrics:  opts.Metrics,
		logger:   opts.Logger.Named("service"),
		now:      opts.Clock,
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.Actor{}, fmt.Errorf("%w: authenticated user required", domain.ErrForbidden)
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", domain.ErrForbidden)
	}
	return actor, nil
}

// actorRef returns the acting user's id, or nil for anonymous callers.
func actorRef(ctx context.Context) *string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil
	}
	return actor.ActorID()
}

func (s *Service) ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, entityType, entityID, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "staff", Role: "staff"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New(),
		ActorID:    actor.ActorID(),
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

func (s *Service) invalidateSale(ctx context.Context, saleID string) {
	if err := s.cache.Invalidate(ctx, saleID); err != nil {
		s.logger.Warn("sale cache invalidate failed", zap.String("sale_id", saleID), zap.Error(err))
	}
}

// failureReason labels a commit failure for metrics.
func failureReason(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrDiscountUsageExceeded):
		return "discount_usage_exceeded"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

func saleNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrSaleNotFound
	}
	return err
}
