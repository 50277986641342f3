package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
	"github.com/rl1809/clinic-ledger/internal/port"
)

const (
	DefaultCatalogTTL         = 111600 * time.Second
	DefaultDentistCustomerTTL = 5 * time.Minute
)

type CatalogOptions struct {
	KeyPrefix  string
	TTL        time.Duration
	DentistTTL time.Duration
	Logger     *slog.Logger
}

// CatalogService serves reference lists through a read-through cache.
// Stock and billing figures are not catalog data and never pass through here.
type CatalogService struct {
	refs       port.ReferenceRepository
	cache      port.ReferenceCache
	prefix     string
	ttl        time.Duration
	dentistTTL time.Duration
	log        *slog.Logger
}

func NewCatalogService(refs port.ReferenceRepository, cache port.ReferenceCache, opts CatalogOptions) *CatalogService {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "catalog:"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCatalogTTL
	}
	if opts.DentistTTL <= 0 {
		opts.DentistTTL = DefaultDentistCustomerTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &CatalogService{
		refs:       refs,
		cache:      cache,
		prefix:     opts.KeyPrefix,
		ttl:        opts.TTL,
		dentistTTL: opts.DentistTTL,
		log:        opts.Logger,
	}
}

func (s *CatalogService) Dentists(ctx context.Context) ([]domain.Dentist, error) {
	return cached(ctx, s, "dentists", s.ttl, s.refs.ListDentists)
}

func (s *CatalogService) Customers(ctx context.Context) ([]domain.Customer, error) {
	return cached(ctx, s, "customers", s.ttl, s.refs.ListCustomers)
}

func (s *CatalogService) Services(ctx context.Context) ([]domain.Service, error) {
	return cached(ctx, s, "services", s.ttl, s.refs.ListServices)
}

func (s *CatalogService) Medicines(ctx context.Context) ([]domain.Medicine, error) {
	return cached(ctx, s, "medicines", s.ttl, s.refs.ListMedicines)
}

func (s *CatalogService) CustomersOfDentist(ctx context.Context, dentistID int64) ([]domain.Customer, error) {
	return cached(ctx, s, fmt.Sprintf("dentists:%d:customers", dentistID), s.dentistTTL,
		func(ctx context.Context) ([]domain.Customer, error) {
			return s.refs.ListCustomersByDentist(ctx, dentistID)
		})
}

// cached falls back to the repository when the cache is absent or failing.
func cached[T any](ctx context.Context, s *CatalogService, name string, ttl time.Duration, load func(context.Context) ([]T, error)) ([]T, error) {
	if s.cache == nil {
		return load(ctx)
	}

	key := s.prefix + name
	var items []T
	hit, err := s.cache.GetJSON(ctx, key, &items)
	if err != nil {
		s.log.WarnContext(ctx, "catalog cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	if hit && err == nil {
		return items, nil
	}

	items, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, items, ttl); err != nil {
		s.log.WarnContext(ctx, "catalog cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return items, nil
}
