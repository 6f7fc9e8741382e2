package metadata

import (
	"context"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/resilience"
)

type breakerClient struct {
	next    Client
	breaker *resilience.Breaker[*domain.MetadataBundle]
}

// WithBreaker guards next with a circuit breaker. Misses do not trip it.
func WithBreaker(next Client, s resilience.Settings) Client {
	return &breakerClient{
		next:    next,
		breaker: resilience.NewBreaker[*domain.MetadataBundle](serviceName, s),
	}
}

func (b *breakerClient) Lookup(ctx context.Context, title string, year *int) (*domain.MetadataBundle, error) {
	return b.breaker.Execute(func() (*domain.MetadataBundle, error) {
		return b.next.Lookup(ctx, title, year)
	})
}

func (b *breakerClient) LookupByID(ctx context.Context, externalID string) (*domain.MetadataBundle, error) {
	return b.breaker.Execute(func() (*domain.MetadataBundle, error) {
		return b.next.LookupByID(ctx, externalID)
	})
}
