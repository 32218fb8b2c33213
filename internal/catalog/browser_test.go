package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/boskobot/internal/cache"
)

type fakeAPI struct {
	shops       []Shop
	products    map[int64][]Product
	failShop    int64
	shopCalls   atomic.Int64
	productErrs atomic.Int64
}

func (f *fakeAPI) ListShops(ctx context.Context, limit int) ([]Shop, error) {
	f.shopCalls.Add(1)
	return f.shops, nil
}

func (f *fakeAPI) ListProducts(ctx context.Context, shopID int64) ([]Product, error) {
	if shopID == f.failShop {
		f.productErrs.Add(1)
		return nil, ErrUnavailable
	}
	return f.products[shopID], nil
}

func (f *fakeAPI) SearchProducts(ctx context.Context, phrase string) ([]Product, error) {
	var out []Product
	for _, ps := range f.products {
		for _, p := range ps {
			if containsNormalized(p.Name, phrase) {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func newFakeBrowser() (*fakeAPI, *Browser) {
	api := &fakeAPI{
		shops: []Shop{
			{ID: 1, Name: "Ursynów", City: "Warszawa"},
			{ID: 2, Name: "Mokotów", City: "Warszawa"},
			{ID: 3, Name: "Stare Miasto", City: "Kraków"},
		},
		products: map[int64][]Product{
			1: {{ID: 11, Name: "Tort Mascarpone Malinowy"}, {ID: 12, Name: "Sorbet Cytrynowy"}},
			2: {{ID: 21, Name: "Lody Waniliowe"}},
			3: {{ID: 31, Name: "Mascarpone Classic"}},
		},
	}
	return api, NewBrowser(api, cache.New(), time.Hour, 999)
}

func TestShopsCached(t *testing.T) {
	api, b := newFakeBrowser()
	ctx := context.Background()

	if _, err := b.Shops(ctx); err != nil {
		t.Fatalf("shops: %v", err)
	}
	if _, err := b.Cities(ctx); err != nil {
		t.Fatalf("cities: %v", err)
	}
	if _, err := b.FindShopsByName(ctx, "ursynow"); err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := api.shopCalls.Load(); got != 1 {
		t.Fatalf("shop list fetched %d times, want 1", got)
	}
}

func TestCities(t *testing.T) {
	_, b := newFakeBrowser()
	cities, err := b.Cities(context.Background())
	if err != nil {
		t.Fatalf("cities: %v", err)
	}
	want := []string{"Kraków", "Warszawa"}
	if len(cities) != len(want) {
		t.Fatalf("cities = %v, want %v", cities, want)
	}
	for i := range want {
		if cities[i] != want[i] {
			t.Fatalf("cities = %v, want %v", cities, want)
		}
	}
}

func TestShopsInCity(t *testing.T) {
	_, b := newFakeBrowser()
	shops, err := b.ShopsInCity(context.Background(), "warszawa")
	if err != nil {
		t.Fatalf("shops in city: %v", err)
	}
	if len(shops) != 2 {
		t.Fatalf("shops = %+v, want 2", shops)
	}
}

func TestFindShopsByNameDiacritics(t *testing.T) {
	_, b := newFakeBrowser()
	shops, err := b.FindShopsByName(context.Background(), "Ursynow")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(shops) != 1 || shops[0].ID != 1 {
		t.Fatalf("shops = %+v, want Ursynów", shops)
	}
}

func TestSearchAvailableSkipsFailingShop(t *testing.T) {
	api, b := newFakeBrowser()
	api.failShop = 3

	found, err := b.SearchAvailable(context.Background(), "mascarpone")
	if err != nil {
		t.Fatalf("search available: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found = %+v, want 1 entry", found)
	}
	if found[0].ShopName != "Ursynów" || found[0].ProductName != "Tort Mascarpone Malinowy" {
		t.Fatalf("found[0] = %+v", found[0])
	}
	if api.productErrs.Load() == 0 {
		t.Fatal("expected the failing shop to be attempted")
	}
}

func TestSearchAvailableAllShopsDown(t *testing.T) {
	api, b := newFakeBrowser()
	api.shops = []Shop{{ID: 3, Name: "Broken"}}
	api.failShop = 3

	found, err := b.SearchAvailable(context.Background(), "mascarpone")
	if err != nil {
		t.Fatalf("search available: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found = %+v, want empty", found)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("per-shop failures must not fail the scan")
	}
}
