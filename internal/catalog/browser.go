package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/boskobot/internal/cache"
	"github.com/example/boskobot/internal/favorites"
	"github.com/example/boskobot/internal/logger"
)

// API is the catalog service boundary consumed by the Browser.
type API interface {
	ListShops(ctx context.Context, limit int) ([]Shop, error)
	ListProducts(ctx context.Context, shopID int64) ([]Product, error)
	SearchProducts(ctx context.Context, phrase string) ([]Product, error)
}

// Availability pairs a shop with a product found on its current list.
type Availability struct {
	ShopName    string
	ProductName string
}

// Browser wraps the catalog API with the shared bucketed cache. The dialogue
// engine and the scheduler both read through one Browser, so a digest run in
// the same bucket as a recent manual lookup reuses its result.
type Browser struct {
	api       API
	cache     *cache.Cache
	ttl       time.Duration
	shopLimit int
	log       *slog.Logger
}

// NewBrowser builds a Browser over api with the given cache and bucket width.
func NewBrowser(api API, c *cache.Cache, ttl time.Duration, shopLimit int) *Browser {
	if shopLimit <= 0 {
		shopLimit = 999
	}
	return &Browser{
		api:       api,
		cache:     c,
		ttl:       ttl,
		shopLimit: shopLimit,
		log:       logger.Component("catalog"),
	}
}

// Shops returns the full shop list.
func (b *Browser) Shops(ctx context.Context) ([]Shop, error) {
	v, err := b.cache.GetOrCompute(ctx, "shops", b.ttl, func(ctx context.Context) (any, error) {
		return b.api.ListShops(ctx, b.shopLimit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Shop), nil
}

// ProductsAt returns the products currently offered at a shop.
func (b *Browser) ProductsAt(ctx context.Context, shopID int64) ([]Product, error) {
	key := fmt.Sprintf("products:%d", shopID)
	v, err := b.cache.GetOrCompute(ctx, key, b.ttl, func(ctx context.Context) (any, error) {
		return b.api.ListProducts(ctx, shopID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Product), nil
}

// Search queries the API-side product search.
func (b *Browser) Search(ctx context.Context, phrase string) ([]Product, error) {
	key := "search:" + favorites.Normalize(phrase)
	v, err := b.cache.GetOrCompute(ctx, key, b.ttl, func(ctx context.Context) (any, error) {
		return b.api.SearchProducts(ctx, phrase)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Product), nil
}

// SearchAvailable scans every shop's current product list for names containing
// the phrase. Shops whose fetch fails are skipped, matching the catalog's
// no-partial-result contract per shop rather than per scan.
func (b *Browser) SearchAvailable(ctx context.Context, phrase string) ([]Availability, error) {
	norm := favorites.Normalize(phrase)
	key := "available:" + norm
	v, err := b.cache.GetOrCompute(ctx, key, b.ttl, func(ctx context.Context) (any, error) {
		shops, err := b.Shops(ctx)
		if err != nil {
			return nil, err
		}
		var found []Availability
		for _, shop := range shops {
			products, err := b.ProductsAt(ctx, shop.ID)
			if err != nil {
				b.log.Warn("shop scan failed",
					slog.String("event", "catalog.scan"),
					slog.Int64("shop_id", shop.ID),
					slog.String("err", err.Error()),
				)
				continue
			}
			for _, p := range products {
				if containsNormalized(p.Name, norm) {
					found = append(found, Availability{ShopName: shop.Name, ProductName: p.Name})
				}
			}
		}
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Availability), nil
}

// Cities lists the distinct city names across all shops, sorted.
func (b *Browser) Cities(ctx context.Context) ([]string, error) {
	shops, err := b.Shops(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var cities []string
	for _, s := range shops {
		if s.City == "" {
			continue
		}
		if _, ok := seen[s.City]; ok {
			continue
		}
		seen[s.City] = struct{}{}
		cities = append(cities, s.City)
	}
	sort.Strings(cities)
	return cities, nil
}

// ShopsInCity returns the shops whose city matches the given name.
func (b *Browser) ShopsInCity(ctx context.Context, city string) ([]Shop, error) {
	shops, err := b.Shops(ctx)
	if err != nil {
		return nil, err
	}
	norm := favorites.Normalize(city)
	var out []Shop
	for _, s := range shops {
		if favorites.Normalize(s.City) == norm {
			out = append(out, s)
		}
	}
	return out, nil
}

// FindShopsByName returns the shops whose name contains the query.
func (b *Browser) FindShopsByName(ctx context.Context, query string) ([]Shop, error) {
	shops, err := b.Shops(ctx)
	if err != nil {
		return nil, err
	}
	norm := favorites.Normalize(query)
	var out []Shop
	for _, s := range shops {
		if containsNormalized(s.Name, norm) {
			out = append(out, s)
		}
	}
	return out, nil
}

func containsNormalized(name, normQuery string) bool {
	if normQuery == "" {
		return false
	}
	return strings.Contains(favorites.Normalize(name), normQuery)
}
