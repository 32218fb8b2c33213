// Package favorites holds per-user favorite flavors and shops.
package favorites

// ShopRef is an immutable snapshot of a catalog shop taken at selection time.
type ShopRef struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Set is one user's favorites. Flavors are stored normalized; shops are
// deduplicated by id. Insertion order is preserved for display.
type Set struct {
	Flavors []string  `json:"flavors"`
	Shops   []ShopRef `json:"shops"`
}

// AddFlavor inserts a flavor after normalization, reporting whether it was new.
func (s *Set) AddFlavor(name string) bool {
	norm := Normalize(name)
	if norm == "" {
		return false
	}
	for _, f := range s.Flavors {
		if f == norm {
			return false
		}
	}
	s.Flavors = append(s.Flavors, norm)
	return true
}

// AddShop inserts a shop, reporting whether it was new.
func (s *Set) AddShop(shop ShopRef) bool {
	for _, sh := range s.Shops {
		if sh.ID == shop.ID {
			return false
		}
	}
	s.Shops = append(s.Shops, shop)
	return true
}

// HasFlavors reports whether at least one favorite flavor exists.
func (s *Set) HasFlavors() bool { return len(s.Flavors) > 0 }

// HasShops reports whether at least one favorite shop exists.
func (s *Set) HasShops() bool { return len(s.Shops) > 0 }

// Empty reports whether the set holds nothing at all.
func (s *Set) Empty() bool { return len(s.Flavors) == 0 && len(s.Shops) == 0 }

// Clone returns a deep copy, used when snapshotting favorites into a schedule.
func (s *Set) Clone() Set {
	out := Set{}
	if len(s.Flavors) > 0 {
		out.Flavors = append([]string(nil), s.Flavors...)
	}
	if len(s.Shops) > 0 {
		out.Shops = append([]ShopRef(nil), s.Shops...)
	}
	return out
}
