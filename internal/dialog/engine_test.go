package dialog

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/example/boskobot/internal/catalog"
	"github.com/example/boskobot/internal/favorites"
	"github.com/example/boskobot/internal/locks"
	"github.com/example/boskobot/internal/sched"
)

type memStates struct {
	mu     sync.Mutex
	states map[int64]State
}

func (m *memStates) Load(ctx context.Context, chatID int64) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[chatID]
	return st, ok, nil
}

func (m *memStates) Save(ctx context.Context, chatID int64, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[chatID] = st
	return nil
}

type memFavs struct {
	mu   sync.Mutex
	sets map[int64]favorites.Set
}

func (m *memFavs) Load(ctx context.Context, userID int64) (favorites.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[userID]
	return set.Clone(), nil
}

func (m *memFavs) Save(ctx context.Context, userID int64, set favorites.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[userID] = set
	return nil
}

type fakeCatalog struct {
	shops    []catalog.Shop
	products map[int64][]catalog.Product
	search   map[string][]catalog.Product
	down     bool
}

func (f *fakeCatalog) err() error {
	if f.down {
		return catalog.ErrUnavailable
	}
	return nil
}

func (f *fakeCatalog) Shops(ctx context.Context) ([]catalog.Shop, error) {
	return f.shops, f.err()
}

func (f *fakeCatalog) ProductsAt(ctx context.Context, shopID int64) ([]catalog.Product, error) {
	return f.products[shopID], f.err()
}

func (f *fakeCatalog) Search(ctx context.Context, phrase string) ([]catalog.Product, error) {
	if f.down {
		return nil, catalog.ErrUnavailable
	}
	return f.search[favorites.Normalize(phrase)], nil
}

func (f *fakeCatalog) SearchAvailable(ctx context.Context, phrase string) ([]catalog.Availability, error) {
	if f.down {
		return nil, catalog.ErrUnavailable
	}
	norm := favorites.Normalize(phrase)
	var out []catalog.Availability
	for _, s := range f.shops {
		for _, p := range f.products[s.ID] {
			if strings.Contains(favorites.Normalize(p.Name), norm) {
				out = append(out, catalog.Availability{ShopName: s.Name, ProductName: p.Name})
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) Cities(ctx context.Context) ([]string, error) {
	if f.down {
		return nil, catalog.ErrUnavailable
	}
	seen := map[string]bool{}
	var cities []string
	for _, s := range f.shops {
		if s.City != "" && !seen[s.City] {
			seen[s.City] = true
			cities = append(cities, s.City)
		}
	}
	return cities, nil
}

func (f *fakeCatalog) ShopsInCity(ctx context.Context, city string) ([]catalog.Shop, error) {
	if f.down {
		return nil, catalog.ErrUnavailable
	}
	var out []catalog.Shop
	for _, s := range f.shops {
		if favorites.Normalize(s.City) == favorites.Normalize(city) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) FindShopsByName(ctx context.Context, query string) ([]catalog.Shop, error) {
	if f.down {
		return nil, catalog.ErrUnavailable
	}
	norm := favorites.Normalize(query)
	var out []catalog.Shop
	for _, s := range f.shops {
		if strings.Contains(favorites.Normalize(s.Name), norm) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	installed []sched.Schedule
	cancelled []int64
}

func (f *fakeScheduler) Install(ctx context.Context, s sched.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = append(f.installed, s)
	return nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, userID)
	return len(f.installed) > 0, nil
}

func (f *fakeScheduler) Current(userID int64) (sched.Schedule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.installed) - 1; i >= 0; i-- {
		if f.installed[i].UserID == userID {
			return f.installed[i], true
		}
	}
	return sched.Schedule{}, false
}

type fakeOutbox struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeOutbox) Send(ctx context.Context, chatID int64, text string, m Markup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeOutbox) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type harness struct {
	engine    *Engine
	states    *memStates
	favs      *memFavs
	catalog   *fakeCatalog
	scheduler *fakeScheduler
	outbox    *fakeOutbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		states: &memStates{states: make(map[int64]State)},
		favs:   &memFavs{sets: make(map[int64]favorites.Set)},
		catalog: &fakeCatalog{
			shops: []catalog.Shop{
				{ID: 1, Name: "Ursynów", City: "Warszawa"},
				{ID: 2, Name: "Mokotów", City: "Warszawa"},
				{ID: 3, Name: "Kazimierz", City: "Kraków"},
			},
			products: map[int64][]catalog.Product{
				1: {{ID: 10, Name: "Mascarpone"}, {ID: 11, Name: "Sorbet Cytrynowy"}},
			},
			search: map[string][]catalog.Product{
				"mascarpone": {{ID: 10, Name: "Mascarpone"}, {ID: 12, Name: "Tort Mascarpone Malinowy"}},
			},
		},
		scheduler: &fakeScheduler{},
		outbox:    &fakeOutbox{},
	}
	h.engine = NewEngine(h.states, h.favs, h.catalog, h.scheduler, h.outbox, locks.NewKeyedMutex(), "Europe/Warsaw")
	return h
}

const (
	testChat int64 = 100
	testUser int64 = 100
)

func (h *harness) command(t *testing.T, cmd string, args ...string) {
	t.Helper()
	ev := Event{ChatID: testChat, UserID: testUser, Text: "/" + cmd, Args: args}
	if err := h.engine.HandleCommand(context.Background(), cmd, ev); err != nil {
		t.Fatalf("command /%s: %v", cmd, err)
	}
}

func (h *harness) text(t *testing.T, text string) {
	t.Helper()
	ev := Event{ChatID: testChat, UserID: testUser, Text: text}
	if err := h.engine.HandleText(context.Background(), ev); err != nil {
		t.Fatalf("text %q: %v", text, err)
	}
}

func (h *harness) step(t *testing.T) Step {
	t.Helper()
	st, _, err := h.states.Load(context.Background(), testChat)
	if err != nil {
		t.Fatal(err)
	}
	if st.Idle() {
		return StepIdle
	}
	return st.Step
}

func TestAddFlavorEndToEnd(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	if got := h.step(t); got != StepChoosingFavoriteType {
		t.Fatalf("step = %s", got)
	}

	h.text(t, btnFlavors)
	if got := h.step(t); got != StepSearchingFlavor {
		t.Fatalf("step = %s", got)
	}

	h.text(t, "mascarpone")
	if got := h.step(t); got != StepSelectingFlavors {
		t.Fatalf("step = %s", got)
	}

	h.text(t, "Mascarpone")
	h.text(t, btnDone)

	if got := h.step(t); got != StepIdle {
		t.Fatalf("step = %s, want idle", got)
	}
	set, _ := h.favs.Load(context.Background(), testUser)
	if len(set.Flavors) != 1 || set.Flavors[0] != "mascarpone" {
		t.Fatalf("flavors = %v, want [mascarpone]", set.Flavors)
	}
}

func TestFlavorMultiSelectIdempotent(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	h.text(t, btnFlavors)
	h.text(t, "mascarpone")

	h.text(t, "Mascarpone")
	h.text(t, "Mascarpone")
	h.text(t, "Tort Mascarpone Malinowy")
	h.text(t, btnDone)

	set, _ := h.favs.Load(context.Background(), testUser)
	if len(set.Flavors) != 2 {
		t.Fatalf("flavors = %v, want 2 distinct", set.Flavors)
	}
}

func TestDoneWithEmptyAccumulatorReprompts(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	h.text(t, btnFlavors)
	h.text(t, "mascarpone")

	h.text(t, btnDone)
	if got := h.step(t); got != StepSelectingFlavors {
		t.Fatalf("step = %s, want selecting_flavors", got)
	}
	set, _ := h.favs.Load(context.Background(), testUser)
	if len(set.Flavors) != 0 {
		t.Fatalf("flavors = %v, want none committed", set.Flavors)
	}
}

func TestStaleTapDoesNotAdvance(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	h.text(t, btnFlavors)
	h.text(t, "mascarpone")

	h.text(t, "Pistacja Premium") // not on the current menu
	if got := h.step(t); got != StepSelectingFlavors {
		t.Fatalf("step = %s", got)
	}
	st, _, _ := h.states.Load(context.Background(), testChat)
	if len(st.Scratch.SelectedFlavors) != 0 {
		t.Fatalf("selected = %v, want empty", st.Scratch.SelectedFlavors)
	}
}

func TestCancelIsTotal(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	h.text(t, btnFlavors)
	h.text(t, "mascarpone")
	h.text(t, "Mascarpone")

	h.text(t, btnCancel)
	if got := h.step(t); got != StepIdle {
		t.Fatalf("step = %s, want idle", got)
	}
	set, _ := h.favs.Load(context.Background(), testUser)
	if !set.Empty() {
		t.Fatalf("favorites = %+v, want nothing committed", set)
	}
	st, _, _ := h.states.Load(context.Background(), testChat)
	if len(st.Scratch.SelectedFlavors) != 0 || len(st.Scratch.FlavorOptions) != 0 {
		t.Fatalf("scratch not discarded: %+v", st.Scratch)
	}
}

func TestEmptySearchStays(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	h.text(t, btnFlavors)
	h.text(t, "pistacja")

	if got := h.step(t); got != StepSearchingFlavor {
		t.Fatalf("step = %s, want searching_flavor", got)
	}
}

func TestCatalogDownKeepsState(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	h.text(t, btnFlavors)

	h.catalog.down = true
	h.text(t, "mascarpone")
	if got := h.step(t); got != StepSearchingFlavor {
		t.Fatalf("step = %s, want searching_flavor after failure", got)
	}
	if h.outbox.last() != msgCatalogDown {
		t.Fatalf("last message = %q", h.outbox.last())
	}

	// Retry with the catalog back succeeds from the same step.
	h.catalog.down = false
	h.text(t, "mascarpone")
	if got := h.step(t); got != StepSelectingFlavors {
		t.Fatalf("step = %s after retry", got)
	}
}

func TestShopByNameSingleMatchCommits(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	h.text(t, btnShops)
	h.text(t, btnByName)
	h.text(t, "Ursynow") // diacritics-insensitive

	if got := h.step(t); got != StepIdle {
		t.Fatalf("step = %s, want idle", got)
	}
	set, _ := h.favs.Load(context.Background(), testUser)
	if len(set.Shops) != 1 || set.Shops[0].ID != 1 {
		t.Fatalf("shops = %+v", set.Shops)
	}
}

func TestShopByCityMultiSelect(t *testing.T) {
	h := newHarness(t)

	h.command(t, "add_favorite")
	h.text(t, btnShops)
	h.text(t, btnByCity)
	if got := h.step(t); got != StepChoosingCity {
		t.Fatalf("step = %s", got)
	}

	h.text(t, "Warszawa")
	if got := h.step(t); got != StepSelectingShopFromCity {
		t.Fatalf("step = %s", got)
	}

	h.text(t, "Ursynów")
	h.text(t, "Mokotów")
	h.text(t, btnDone)

	set, _ := h.favs.Load(context.Background(), testUser)
	if len(set.Shops) != 2 {
		t.Fatalf("shops = %+v, want 2", set.Shops)
	}
}

func TestScheduleSetupFlow(t *testing.T) {
	h := newHarness(t)
	seedFavorites(t, h)

	h.command(t, "daily_updates")
	if got := h.step(t); got != StepScheduleSetup {
		t.Fatalf("step = %s", got)
	}

	h.text(t, btnSetTime)
	h.text(t, "nonsense")
	if got := h.step(t); got != StepSelectingTime {
		t.Fatalf("invalid time advanced to %s", got)
	}

	h.text(t, "16:30")
	if got := h.step(t); got != StepSelectingDays {
		t.Fatalf("step = %s", got)
	}

	h.text(t, "Monday")
	h.text(t, "Monday") // additive, idempotent
	h.text(t, "Friday")
	h.text(t, btnDone)

	if got := h.step(t); got != StepIdle {
		t.Fatalf("step = %s", got)
	}
	if len(h.scheduler.installed) != 1 {
		t.Fatalf("installed = %+v", h.scheduler.installed)
	}
	s := h.scheduler.installed[0]
	if s.Hour != 16 || s.Minute != 30 {
		t.Fatalf("time = %02d:%02d", s.Hour, s.Minute)
	}
	if len(s.Days) != 2 {
		t.Fatalf("days = %v", s.Days)
	}
	if s.Timezone != "Europe/Warsaw" {
		t.Fatalf("timezone = %s", s.Timezone)
	}
}

func TestWeekdaysPresetFinalizesImmediately(t *testing.T) {
	h := newHarness(t)
	seedFavorites(t, h)

	h.command(t, "daily_updates")
	h.text(t, btnSetTime)
	h.text(t, "08:00")
	h.text(t, btnWeekdays)

	if got := h.step(t); got != StepIdle {
		t.Fatalf("step = %s", got)
	}
	s := h.scheduler.installed[0]
	want := []int{1, 2, 3, 4, 5}
	if len(s.Days) != len(want) {
		t.Fatalf("days = %v", s.Days)
	}
	for i := range want {
		if s.Days[i] != want[i] {
			t.Fatalf("days = %v, want %v", s.Days, want)
		}
	}
}

func TestScheduleSnapshotIsDetached(t *testing.T) {
	h := newHarness(t)
	seedFavorites(t, h)

	h.command(t, "daily_updates")
	h.text(t, btnSetTime)
	h.text(t, "09:00")
	h.text(t, btnAllDays)

	// Edit favorites after finalize; the installed snapshot must not change.
	set, _ := h.favs.Load(context.Background(), testUser)
	set.AddFlavor("pistacja")
	if err := h.favs.Save(context.Background(), testUser, set); err != nil {
		t.Fatal(err)
	}

	s := h.scheduler.installed[0]
	if len(s.Flavors) != 1 || s.Flavors[0] != "mascarpone" {
		t.Fatalf("snapshot = %v, want the finalize-time favorites", s.Flavors)
	}
}

func TestDailyUpdatesRequiresFavorites(t *testing.T) {
	h := newHarness(t)

	h.command(t, "daily_updates")
	if got := h.step(t); got != StepIdle {
		t.Fatalf("step = %s, want idle", got)
	}
	if h.outbox.last() != msgNeedFavorites {
		t.Fatalf("last = %q", h.outbox.last())
	}
}

func TestRemoveFavoriteIdleTaps(t *testing.T) {
	h := newHarness(t)
	seedFavorites(t, h)

	handled, err := h.engine.HandleIdleText(context.Background(),
		Event{ChatID: testChat, UserID: testUser, Text: btnRemoveFlavor})
	if err != nil || !handled {
		t.Fatalf("handled = %v, %v", handled, err)
	}
	set, _ := h.favs.Load(context.Background(), testUser)
	if set.HasFlavors() || !set.HasShops() {
		t.Fatalf("set = %+v, want flavors cleared only", set)
	}

	handled, err = h.engine.HandleIdleText(context.Background(),
		Event{ChatID: testChat, UserID: testUser, Text: "random"})
	if err != nil || handled {
		t.Fatalf("random text should not be consumed, got %v, %v", handled, err)
	}
}

func TestInProgress(t *testing.T) {
	h := newHarness(t)

	if in, _ := h.engine.InProgress(context.Background(), testChat); in {
		t.Fatal("fresh chat should be idle")
	}
	h.command(t, "add_favorite")
	if in, _ := h.engine.InProgress(context.Background(), testChat); !in {
		t.Fatal("dialogue should be in progress")
	}
	h.text(t, btnCancel)
	if in, _ := h.engine.InProgress(context.Background(), testChat); in {
		t.Fatal("cancel should return to idle")
	}
}

func seedFavorites(t *testing.T, h *harness) {
	t.Helper()
	set := favorites.Set{}
	set.AddFlavor("mascarpone")
	set.AddShop(favorites.ShopRef{ID: 1, Name: "Ursynów"})
	if err := h.favs.Save(context.Background(), testUser, set); err != nil {
		t.Fatal(err)
	}
}
