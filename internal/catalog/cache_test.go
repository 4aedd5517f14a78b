package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/matices-erp/matices-pos/internal/shared"
)

type stubProducts struct {
	products map[int64]Product
	calls    int
}

func (s *stubProducts) Get(ctx context.Context, id int64) (*Product, error) {
	s.calls++
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return &p, nil
}

func newCacheUnderTest(t *testing.T, stub *stubProducts) ProductDirectory {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedProducts(stub, client, nil, time.Minute)
}

func TestCachedProductsReadThrough(t *testing.T) {
	stub := &stubProducts{products: map[int64]Product{
		7: {ID: 7, SKU: "PNT-BL-1GAL", Name: "Latex Blanco 1gal", SalePrice: 145.50, Active: true},
	}}
	cache := newCacheUnderTest(t, stub)
	ctx := context.Background()

	p, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "PNT-BL-1GAL", p.SKU)
	require.Equal(t, 1, stub.calls)

	// Second read is served from redis.
	p, err = cache.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 145.50, p.SalePrice)
	require.Equal(t, 1, stub.calls)
}

func TestCachedProductsMissPassesThroughError(t *testing.T) {
	stub := &stubProducts{products: map[int64]Product{}}
	cache := newCacheUnderTest(t, stub)

	_, err := cache.Get(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCachedProductsNilClientIsPassthrough(t *testing.T) {
	stub := &stubProducts{products: map[int64]Product{1: {ID: 1, SKU: "X", Name: "X", Active: true}}}
	dir := NewCachedProducts(stub, nil, nil, time.Minute)
	require.Same(t, ProductDirectory(stub), dir)

	_, err := dir.Get(context.Background(), 1)
	require.NoError(t, err)
	_, err = dir.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, stub.calls)
}
