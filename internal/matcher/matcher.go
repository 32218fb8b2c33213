// Package matcher decides which favorite flavors are currently available at
// which favorite shops.
package matcher

import (
	"context"
	"log/slog"
	"strings"

	"github.com/example/boskobot/internal/catalog"
	"github.com/example/boskobot/internal/favorites"
	"github.com/example/boskobot/internal/logger"
)

// Source provides per-shop product lists; in production it is the cache-backed
// catalog Browser.
type Source interface {
	ProductsAt(ctx context.Context, shopID int64) ([]catalog.Product, error)
}

// Match is one (shop, product) availability hit.
type Match struct {
	Shop    favorites.ShopRef
	Product string
}

// Find returns the matches for the given favorite flavors across the given
// shops. Flavors are expected normalized (as stored); product names are
// normalized before the substring test. Shops whose product fetch fails are
// skipped so one unreachable shop never sinks a whole digest run. Result order
// is shops in input order, then products in fetch order.
func Find(ctx context.Context, src Source, flavors []string, shops []favorites.ShopRef) []Match {
	if len(flavors) == 0 || len(shops) == 0 {
		return nil
	}

	log := logger.Component("matcher")
	var matches []Match
	for _, shop := range shops {
		products, err := src.ProductsAt(ctx, shop.ID)
		if err != nil {
			log.Warn("shop fetch failed",
				slog.String("event", "matcher.fetch"),
				slog.Int64("shop_id", shop.ID),
				slog.String("shop", shop.Name),
				slog.String("err", err.Error()),
			)
			continue
		}
		for _, product := range products {
			name := favorites.Normalize(product.Name)
			for _, flavor := range flavors {
				if strings.Contains(name, flavor) {
					matches = append(matches, Match{Shop: shop, Product: product.Name})
				}
			}
		}
	}
	return matches
}
