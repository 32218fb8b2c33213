// Package dialog implements the conversational state machine: a per-chat
// finite set of steps walking a user through favorite selection and digest
// schedule setup, one transition per incoming text event.
package dialog

import (
	"context"

	"github.com/example/boskobot/internal/catalog"
	"github.com/example/boskobot/internal/favorites"
	"github.com/example/boskobot/internal/sched"
)

// Step tags the current position in the dialogue.
type Step string

const (
	StepIdle                  Step = "idle"
	StepChoosingFavoriteType  Step = "choosing_favorite_type"
	StepSearchingFlavor       Step = "searching_flavor"
	StepSelectingFlavors      Step = "selecting_flavors"
	StepSearchingShop         Step = "searching_shop"
	StepChoosingCity          Step = "choosing_city"
	StepSelectingShop         Step = "selecting_shop"
	StepSelectingShopFromCity Step = "selecting_shop_from_city"
	StepScheduleSetup         Step = "schedule_setup"
	StepSelectingTime         Step = "selecting_time"
	StepSelectingDays         Step = "selecting_days"
)

// Scratch is the transient payload of an in-progress dialogue. It is cleared
// on entry into a new top-level conversation and discarded on cancel; nothing
// in it outlives the dialogue that built it.
type Scratch struct {
	FlavorOptions   []string            `json:"flavor_options,omitempty"`
	SelectedFlavors []string            `json:"selected_flavors,omitempty"`
	CityOptions     []string            `json:"city_options,omitempty"`
	ShopOptions     []favorites.ShopRef `json:"shop_options,omitempty"`
	SelectedShops   []favorites.ShopRef `json:"selected_shops,omitempty"`
	Hour            int                 `json:"hour,omitempty"`
	Minute          int                 `json:"minute,omitempty"`
	Days            []int               `json:"days,omitempty"`
}

// State is the persisted per-chat machine position.
type State struct {
	Step    Step    `json:"step"`
	Scratch Scratch `json:"scratch"`
}

// Idle reports whether no dialogue is in progress.
func (s State) Idle() bool { return s.Step == "" || s.Step == StepIdle }

// Event is one inbound text message.
type Event struct {
	ChatID int64
	UserID int64
	Text   string
	Args   []string
}

// MarkupKind selects how the outgoing keyboard behaves.
type MarkupKind int

const (
	// MarkupPlain sends text with no keyboard change.
	MarkupPlain MarkupKind = iota
	// MarkupChoice sends a one-shot reply keyboard.
	MarkupChoice
	// MarkupRemove clears any reply keyboard.
	MarkupRemove
)

// Markup describes the keyboard accompanying an outgoing message.
type Markup struct {
	Kind MarkupKind
	Rows [][]string
}

// Outbox delivers messages back to the chat transport.
type Outbox interface {
	Send(ctx context.Context, chatID int64, text string, m Markup) error
}

// StateStore persists per-chat machine state. An absent chat is IDLE.
type StateStore interface {
	Load(ctx context.Context, chatID int64) (State, bool, error)
	Save(ctx context.Context, chatID int64, s State) error
}

// FavoritesStore persists per-user favorites. An absent user has an empty set.
type FavoritesStore interface {
	Load(ctx context.Context, userID int64) (favorites.Set, error)
	Save(ctx context.Context, userID int64, set favorites.Set) error
}

// Scheduler is the digest schedule registry boundary.
type Scheduler interface {
	Install(ctx context.Context, s sched.Schedule) error
	Cancel(ctx context.Context, userID int64) (bool, error)
	Current(userID int64) (sched.Schedule, bool)
}

// Catalog is the cache-backed catalog boundary consumed by the dialogue.
// *catalog.Browser satisfies it.
type Catalog interface {
	Shops(ctx context.Context) ([]catalog.Shop, error)
	ProductsAt(ctx context.Context, shopID int64) ([]catalog.Product, error)
	Search(ctx context.Context, phrase string) ([]catalog.Product, error)
	SearchAvailable(ctx context.Context, phrase string) ([]catalog.Availability, error)
	Cities(ctx context.Context) ([]string, error)
	ShopsInCity(ctx context.Context, city string) ([]catalog.Shop, error)
	FindShopsByName(ctx context.Context, query string) ([]catalog.Shop, error)
}
