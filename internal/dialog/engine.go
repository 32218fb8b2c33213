package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/example/boskobot/internal/catalog"
	"github.com/example/boskobot/internal/favorites"
	"github.com/example/boskobot/internal/locks"
	"github.com/example/boskobot/internal/logger"
	"github.com/example/boskobot/internal/sched"
)

// Engine drives the dialogue. All event entry points serialize on the user's
// mutex, shared with the scheduler, so a conversation step and a digest fire
// for the same user never interleave.
type Engine struct {
	states    StateStore
	favs      FavoritesStore
	catalog   Catalog
	scheduler Scheduler
	out       Outbox
	locks     *locks.KeyedMutex
	log       *slog.Logger
	timezone  string
}

// NewEngine wires the dialogue over its collaborators. timezone is the IANA
// zone applied to newly created schedules.
func NewEngine(states StateStore, favs FavoritesStore, cat Catalog, scheduler Scheduler, out Outbox, userLocks *locks.KeyedMutex, timezone string) *Engine {
	return &Engine{
		states:    states,
		favs:      favs,
		catalog:   cat,
		scheduler: scheduler,
		out:       out,
		locks:     userLocks,
		log:       logger.Component("dialog"),
		timezone:  timezone,
	}
}

// InProgress reports whether the chat has a dialogue under way.
func (e *Engine) InProgress(ctx context.Context, chatID int64) (bool, error) {
	st, ok, err := e.states.Load(ctx, chatID)
	if err != nil {
		return false, err
	}
	return ok && !st.Idle(), nil
}

// HandleCommand processes one slash command.
func (e *Engine) HandleCommand(ctx context.Context, cmd string, ev Event) error {
	unlock := e.locks.Lock(ev.UserID)
	defer unlock()

	ctx = logger.WithHandler(ctx, "/"+cmd)

	switch cmd {
	case "start":
		return e.out.Send(ctx, ev.ChatID, msgStart, removeMarkup())
	case "shops":
		return e.cmdShops(ctx, ev)
	case "products":
		return e.cmdProducts(ctx, ev)
	case "search":
		return e.cmdSearch(ctx, ev)
	case "search_available":
		return e.cmdSearchAvailable(ctx, ev)
	case "favorites":
		return e.cmdFavorites(ctx, ev)
	case "add_favorite":
		return e.cmdAddFavorite(ctx, ev)
	case "remove_favorite":
		return e.cmdRemoveFavorite(ctx, ev)
	case "daily_updates":
		return e.cmdDailyUpdates(ctx, ev)
	case "stop_daily_updates":
		return e.cmdStopDailyUpdates(ctx, ev)
	case "cancel":
		return e.cancel(ctx, ev)
	default:
		return e.out.Send(ctx, ev.ChatID, "Unknown command. Try /start.", plainMarkup())
	}
}

// HandleText processes one free-text event for a chat with a dialogue in
// progress. Cancel works from every step and discards all scratch data.
func (e *Engine) HandleText(ctx context.Context, ev Event) error {
	unlock := e.locks.Lock(ev.UserID)
	defer unlock()

	st, _, err := e.states.Load(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	text := strings.TrimSpace(ev.Text)
	if text == btnCancel {
		return e.cancel(ctx, ev)
	}

	ctx = logger.WithHandler(ctx, string(st.Step))

	switch st.Step {
	case StepChoosingFavoriteType:
		return e.onChoosingFavoriteType(ctx, ev, st, text)
	case StepSearchingFlavor:
		return e.onSearchingFlavor(ctx, ev, st, text)
	case StepSelectingFlavors:
		return e.onSelectingFlavors(ctx, ev, st, text)
	case StepSearchingShop:
		return e.onSearchingShop(ctx, ev, st, text)
	case StepChoosingCity:
		return e.onChoosingCity(ctx, ev, st, text)
	case StepSelectingShop:
		return e.onSelectingShop(ctx, ev, st, text)
	case StepSelectingShopFromCity:
		return e.onSelectingShopFromCity(ctx, ev, st, text)
	case StepScheduleSetup:
		return e.onScheduleSetup(ctx, ev, st, text)
	case StepSelectingTime:
		return e.onSelectingTime(ctx, ev, st, text)
	case StepSelectingDays:
		return e.onSelectingDays(ctx, ev, st, text)
	default:
		return nil
	}
}

// HandleIdleText handles the one-shot taps valid outside any dialogue, the
// remove-favorites category buttons. It reports whether the text was consumed.
func (e *Engine) HandleIdleText(ctx context.Context, ev Event) (bool, error) {
	text := strings.TrimSpace(ev.Text)
	if text != btnRemoveFlavor && text != btnRemoveShops {
		return false, nil
	}

	unlock := e.locks.Lock(ev.UserID)
	defer unlock()

	set, err := e.favs.Load(ctx, ev.UserID)
	if err != nil {
		return true, fmt.Errorf("load favorites: %w", err)
	}
	switch text {
	case btnRemoveFlavor:
		set.Flavors = nil
		if err := e.favs.Save(ctx, ev.UserID, set); err != nil {
			return true, fmt.Errorf("save favorites: %w", err)
		}
		return true, e.out.Send(ctx, ev.ChatID, "Favorite flavors cleared.", removeMarkup())
	default:
		set.Shops = nil
		if err := e.favs.Save(ctx, ev.UserID, set); err != nil {
			return true, fmt.Errorf("save favorites: %w", err)
		}
		return true, e.out.Send(ctx, ev.ChatID, "Favorite shops cleared.", removeMarkup())
	}
}

// --- commands ---

func (e *Engine) cmdShops(ctx context.Context, ev Event) error {
	query := strings.TrimSpace(strings.Join(ev.Args, " "))
	var (
		shops []catalog.Shop
		err   error
	)
	if query == "" {
		shops, err = e.catalog.Shops(ctx)
	} else {
		shops, err = e.catalog.FindShopsByName(ctx, query)
	}
	if err != nil {
		return e.catalogNotice(ctx, ev.ChatID, err)
	}
	if len(shops) == 0 {
		return e.out.Send(ctx, ev.ChatID, "No shops found.", plainMarkup())
	}

	var b strings.Builder
	b.WriteString("🏪 Shops:\n")
	for _, s := range shops {
		b.WriteString("\n• " + s.Name)
		if s.City != "" {
			b.WriteString(" (" + s.City + ")")
		}
	}
	return e.out.Send(ctx, ev.ChatID, b.String(), plainMarkup())
}

func (e *Engine) cmdProducts(ctx context.Context, ev Event) error {
	query := strings.TrimSpace(strings.Join(ev.Args, " "))
	if query == "" {
		return e.out.Send(ctx, ev.ChatID, "Usage: /products <shop name>", plainMarkup())
	}
	shops, err := e.catalog.FindShopsByName(ctx, query)
	if err != nil {
		return e.catalogNotice(ctx, ev.ChatID, err)
	}
	switch {
	case len(shops) == 0:
		return e.out.Send(ctx, ev.ChatID, "No shop matches that name.", plainMarkup())
	case len(shops) > 1:
		var b strings.Builder
		b.WriteString("Several shops match, be more specific:\n")
		for _, s := range shops {
			b.WriteString("\n• " + s.Name)
		}
		return e.out.Send(ctx, ev.ChatID, b.String(), plainMarkup())
	}

	shop := shops[0]
	products, err := e.catalog.ProductsAt(ctx, shop.ID)
	if err != nil {
		return e.catalogNotice(ctx, ev.ChatID, err)
	}
	if len(products) == 0 {
		return e.out.Send(ctx, ev.ChatID, fmt.Sprintf("Nothing on offer at %s right now.", shop.Name), plainMarkup())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🍦 At %s today:\n", shop.Name)
	for _, p := range products {
		b.WriteString("\n• " + p.Name)
	}
	return e.out.Send(ctx, ev.ChatID, b.String(), plainMarkup())
}

func (e *Engine) cmdSearch(ctx context.Context, ev Event) error {
	phrase := strings.TrimSpace(strings.Join(ev.Args, " "))
	if phrase == "" {
		return e.out.Send(ctx, ev.ChatID, "Usage: /search <flavor>", plainMarkup())
	}
	products, err := e.catalog.Search(ctx, phrase)
	if err != nil {
		return e.catalogNotice(ctx, ev.ChatID, err)
	}
	if len(products) == 0 {
		return e.out.Send(ctx, ev.ChatID, "No products found.", plainMarkup())
	}
	var b strings.Builder
	b.WriteString("🍦 Found:\n")
	for _, p := range products {
		b.WriteString("\n• " + p.Name)
	}
	return e.out.Send(ctx, ev.ChatID, b.String(), plainMarkup())
}

func (e *Engine) cmdSearchAvailable(ctx context.Context, ev Event) error {
	phrase := strings.TrimSpace(strings.Join(ev.Args, " "))
	if phrase == "" {
		return e.out.Send(ctx, ev.ChatID, "Usage: /search_available <flavor>", plainMarkup())
	}
	found, err := e.catalog.SearchAvailable(ctx, phrase)
	if err != nil {
		return e.catalogNotice(ctx, ev.ChatID, err)
	}
	if len(found) == 0 {
		return e.out.Send(ctx, ev.ChatID, "Not available anywhere right now.", plainMarkup())
	}
	var b strings.Builder
	b.WriteString("🍦 Available now:\n")
	for _, a := range found {
		fmt.Fprintf(&b, "\n• %s at %s", a.ProductName, a.ShopName)
	}
	return e.out.Send(ctx, ev.ChatID, b.String(), plainMarkup())
}

func (e *Engine) cmdFavorites(ctx context.Context, ev Event) error {
	set, err := e.favs.Load(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	if set.Empty() {
		return e.out.Send(ctx, ev.ChatID, "You have no favorites yet — use /add_favorite.", plainMarkup())
	}
	var b strings.Builder
	b.WriteString("Your favorites:\n")
	if set.HasFlavors() {
		b.WriteString("\n🍦 Flavors:")
		for _, f := range set.Flavors {
			b.WriteString("\n• " + f)
		}
	}
	if set.HasShops() {
		b.WriteString("\n\n🏪 Shops:")
		for _, s := range set.Shops {
			b.WriteString("\n• " + s.Name)
		}
	}
	return e.out.Send(ctx, ev.ChatID, b.String(), plainMarkup())
}

func (e *Engine) cmdAddFavorite(ctx context.Context, ev Event) error {
	if err := e.save(ctx, ev.ChatID, State{Step: StepChoosingFavoriteType}); err != nil {
		return err
	}
	return e.out.Send(ctx, ev.ChatID, msgChooseType,
		choiceMarkup([]string{btnFlavors, btnShops}, btnCancel))
}

func (e *Engine) cmdRemoveFavorite(ctx context.Context, ev Event) error {
	set, err := e.favs.Load(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	if set.Empty() {
		return e.out.Send(ctx, ev.ChatID, "You have no favorites to remove.", plainMarkup())
	}
	return e.out.Send(ctx, ev.ChatID, "What do you want to clear?",
		choiceMarkup([]string{btnRemoveFlavor, btnRemoveShops}, btnCancel))
}

func (e *Engine) cmdDailyUpdates(ctx context.Context, ev Event) error {
	set, err := e.favs.Load(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	if !set.HasFlavors() || !set.HasShops() {
		return e.out.Send(ctx, ev.ChatID, msgNeedFavorites, plainMarkup())
	}
	if err := e.save(ctx, ev.ChatID, State{Step: StepScheduleSetup}); err != nil {
		return err
	}
	return e.out.Send(ctx, ev.ChatID, "Daily updates:",
		choiceMarkup([]string{btnSetTime, btnViewSettings}, btnCancel))
}

func (e *Engine) cmdStopDailyUpdates(ctx context.Context, ev Event) error {
	had, err := e.scheduler.Cancel(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}
	if !had {
		return e.out.Send(ctx, ev.ChatID, msgNoSchedule, plainMarkup())
	}
	return e.out.Send(ctx, ev.ChatID, "Daily updates stopped.", removeMarkup())
}

func (e *Engine) cancel(ctx context.Context, ev Event) error {
	if err := e.save(ctx, ev.ChatID, State{Step: StepIdle}); err != nil {
		return err
	}
	return e.out.Send(ctx, ev.ChatID, msgCancelled, removeMarkup())
}

// --- steps ---

func (e *Engine) onChoosingFavoriteType(ctx context.Context, ev Event, st State, text string) error {
	switch text {
	case btnFlavors:
		st = State{Step: StepSearchingFlavor}
		if err := e.save(ctx, ev.ChatID, st); err != nil {
			return err
		}
		return e.out.Send(ctx, ev.ChatID, msgAskFlavor, removeMarkup())
	case btnShops:
		st = State{Step: StepSearchingShop}
		if err := e.save(ctx, ev.ChatID, st); err != nil {
			return err
		}
		return e.out.Send(ctx, ev.ChatID, msgAskShopMethod,
			choiceMarkup([]string{btnByName, btnByCity}, btnCancel))
	default:
		if err := e.save(ctx, ev.ChatID, State{Step: StepIdle}); err != nil {
			return err
		}
		return e.out.Send(ctx, ev.ChatID, msgUseButtons, removeMarkup())
	}
}

func (e *Engine) onSearchingFlavor(ctx context.Context, ev Event, st State, text string) error {
	products, err := e.catalog.Search(ctx, text)
	if err != nil {
		return e.catalogNotice(ctx, ev.ChatID, err)
	}
	if len(products) == 0 {
		return e.out.Send(ctx, ev.ChatID, msgNoProducts, plainMarkup())
	}

	options := make([]string, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		norm := favorites.Normalize(p.Name)
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		options = append(options, p.Name)
	}

	st = State{Step: StepSelectingFlavors, Scratch: Scratch{FlavorOptions: options}}
	if err := e.save(ctx, ev.ChatID, st); err != nil {
		return err
	}
	return e.out.Send(ctx, ev.ChatID, "Tap the flavors you want, then finish:",
		choiceMarkup(options, btnDone, btnCancel))
}

func (e *Engine) onSelectingFlavors(ctx context.Context, ev Event, st State, text string) error {
	if text == btnDone {
		if len(st.Scratch.SelectedFlavors) == 0 {
			return e.out.Send(ctx, ev.ChatID, msgNothingSelected,
				choiceMarkup(st.Scratch.FlavorOptions, btnDone, btnCancel))
		}
		set, err := e.favs.Load(ctx, ev.UserID)
		if err != nil {
			return fmt.Errorf("load favorites: %w", err)
		}
		for _, f := range st.Scratch.SelectedFlavors {
			set.AddFlavor(f)
		}
		if err := e.favs.Save(ctx, ev.UserID, set); err != nil {
			return fmt.Errorf("save favorites: %w", err)
		}
		if err := e.save(ctx, ev.ChatID, State{Step: StepIdle}); err != nil {
			return err
		}
		return e.out.Send(ctx, ev.ChatID,
			fmt.Sprintf("Saved %d favorite flavor(s) ✅", len(st.Scratch.SelectedFlavors)),
			removeMarkup())
	}

	// A tap must reference the menu that is actually on screen; anything else
	// is stale and re-prompts.
	norm := favorites.Normalize(text)
	valid := false
	for _, opt := range st.Scratch.FlavorOptions {
		if favorites.Normalize(opt) == norm {
			valid = true
			break
		}
	}
	if !valid {
		return e.out.Send(ctx, ev.ChatID, msgUseButtons,
			choiceMarkup(st.Scratch.FlavorOptions, btnDone, btnCancel))
	}

	already := false
	for _, f := range st.Scratch.SelectedFlavors {
		if f == norm {
			already = true
			break
		}
	}
	if !already {
		st.Scratch.SelectedFlavors = append(st.Scratch.SelectedFlavors, norm)
		if err := e.save(ctx, ev.ChatID, st); err != nil {
			return err
		}
	}
	return e.out.Send(ctx, ev.ChatID,
		fmt.Sprintf("Added %q (%d selected). Tap more or finish.", norm, len(st.Scratch.SelectedFlavors)),
		choiceMarkup(st.Scratch.FlavorOptions, btnDone, btnCancel))
}

func (e *Engine) onSearchingShop(ctx context.Context, ev Event, st State, text string) error {
	switch text {
	case btnByName:
		if err := e.save(ctx, ev.ChatID, State{Step: StepSelectingShop}); err != nil {
			return err
		}
		return e.out.Send(ctx, ev.ChatID, msgAskShopName, removeMarkup())
	case btnByCity:
		cities, err := e.catalog.Cities(ctx)
		if err != nil {
			return e.catalogNotice(ctx, ev.ChatID, err)
		}
		if len(cities) == 0 {
			if err := e.save(ctx, ev.ChatID, State{Step: StepIdle}); err != nil {
				return err
			}
			return e.out.Send(ctx, ev.ChatID, "No cities known yet.", removeMarkup())
		}
		st = State{Step: StepChoosingCity, Scratch: Scratch{CityOptions: cities}}
		if err := e.save(ctx, ev.ChatID, st); err != nil {
			return err
		}
		return e.out.Send(ctx, ev.ChatID, msgChooseCity, choiceMarkup(cities, btnCancel))
	default:
		return e.out.Send(ctx, ev.ChatID, msgUseButtons,
			choiceMarkup([]string{btnByName, btnByCity}, btnCancel))
	}
}

func (e *Engine) onChoosingCity(ctx context.Context, ev Event, st State, text string) error {
	norm := favorites.Normalize(text)
	var city string
	for _, c := range st.Scratch.CityOptions {
		if favorites.Normalize(c) == norm {
			city = c
			break
		}
	}
	if city == "" {
		return e.out.Send(ctx, ev.ChatID, msgUseButtons,
			choiceMarkup(st.Scratch.CityOptions, btnCancel))
	}

	shops, err := e.catalog.ShopsInCity(ctx, city)
	if err != nil {
		return e.catalogNotice(ctx, ev.ChatID, err)
	}
	if len(shops) == 0 {
		return e.out.Send(ctx, ev.ChatID, msgChooseCity,
			choiceMarkup(st.Scratch.CityOptions, btnCancel))
	}
	return e.presentShopMenu(ctx, ev, shops)
}

func (e *Engine) onSelectingShop(ctx context.Context, ev Event, st State, text string) error {
	shops, err := e.catalog.FindShopsByName(ctx, text)
	if err != nil {
		return e.catalogNotice(ctx, ev.ChatID, err)
	}
	switch {
	case len(shops) == 0:
		return e.out.Send(ctx, ev.ChatID, msgNoShops, plainMarkup())
	case len(shops) == 1:
		return e.commitShops(ctx, ev, []favorites.ShopRef{{ID: shops[0].ID, Name: shops[0].Name}})
	default:
		return e.presentShopMenu(ctx, ev, shops)
	}
}

func (e *Engine) onSelectingShopFromCity(ctx context.Context, ev Event, st State, text string) error {
	options := make([]string, 0, len(st.Scratch.ShopOptions))
	for _, s := range st.Scratch.ShopOptions {
		options = append(options, s.Name)
	}

	if text == btnDone {
		if len(st.Scratch.SelectedShops) == 0 {
			return e.out.Send(ctx, ev.ChatID, msgNothingSelected,
				choiceMarkup(options, btnDone, btnCancel))
		}
		return e.commitShops(ctx, ev, st.Scratch.SelectedShops)
	}

	norm := favorites.Normalize(text)
	var picked *favorites.ShopRef
	for i := range st.Scratch.ShopOptions {
		if favorites.Normalize(st.Scratch.ShopOptions[i].Name) == norm {
			picked = &st.Scratch.ShopOptions[i]
			break
		}
	}
	if picked == nil {
		return e.out.Send(ctx, ev.ChatID, msgUseButtons,
			choiceMarkup(options, btnDone, btnCancel))
	}

	already := false
	for _, s := range st.Scratch.SelectedShops {
		if s.ID == picked.ID {
			already = true
			break
		}
	}
	if !already {
		st.Scratch.SelectedShops = append(st.Scratch.SelectedShops, *picked)
		if err := e.save(ctx, ev.ChatID, st); err != nil {
			return err
		}
	}
	return e.out.Send(ctx, ev.ChatID,
		fmt.Sprintf("Added %s (%d selected). Tap more or finish.", picked.Name, len(st.Scratch.SelectedShops)),
		choiceMarkup(options, btnDone, btnCancel))
}

func (e *Engine) onScheduleSetup(ctx context.Context, ev Event, st State, text string) error {
	switch text {
	case btnSetTime:
		if err := e.save(ctx, ev.ChatID, State{Step: StepSelectingTime}); err != nil {
			return err
		}
		return e.out.Send(ctx, ev.ChatID, msgAskTime, removeMarkup())
	case btnViewSettings:
		if err := e.save(ctx, ev.ChatID, State{Step: StepIdle}); err != nil {
			return err
		}
		current, ok := e.scheduler.Current(ev.UserID)
		if !ok {
			return e.out.Send(ctx, ev.ChatID, msgNoSchedule, removeMarkup())
		}
		text := fmt.Sprintf("⏰ Daily update at %s (%s) on: %s",
			current.TimeOfDay(), current.Timezone, strings.Join(current.DayNames(), ", "))
		return e.out.Send(ctx, ev.ChatID, text, removeMarkup())
	default:
		return e.out.Send(ctx, ev.ChatID, msgUseButtons,
			choiceMarkup([]string{btnSetTime, btnViewSettings}, btnCancel))
	}
}

func (e *Engine) onSelectingTime(ctx context.Context, ev Event, st State, text string) error {
	m := timeRE.FindStringSubmatch(text)
	if m == nil {
		return e.out.Send(ctx, ev.ChatID, "That doesn't look like a time. "+msgAskTime, plainMarkup())
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])

	st = State{Step: StepSelectingDays, Scratch: Scratch{Hour: hour, Minute: minute}}
	if err := e.save(ctx, ev.ChatID, st); err != nil {
		return err
	}
	return e.out.Send(ctx, ev.ChatID, msgChooseDays, dayMarkup())
}

func (e *Engine) onSelectingDays(ctx context.Context, ev Event, st State, text string) error {
	switch text {
	case btnAllDays:
		st.Scratch.Days = []int{0, 1, 2, 3, 4, 5, 6}
		return e.finalizeSchedule(ctx, ev, st)
	case btnWeekdays:
		st.Scratch.Days = []int{1, 2, 3, 4, 5}
		return e.finalizeSchedule(ctx, ev, st)
	case btnDone:
		if len(st.Scratch.Days) == 0 {
			return e.out.Send(ctx, ev.ChatID, msgNothingSelected, dayMarkup())
		}
		return e.finalizeSchedule(ctx, ev, st)
	}

	day := -1
	for i, label := range sched.WeekdayNames {
		if strings.EqualFold(text, label) {
			day = i
			break
		}
	}
	if day < 0 {
		return e.out.Send(ctx, ev.ChatID, msgUseButtons, dayMarkup())
	}

	// Days accumulate; there is no un-pick, only the preset buttons reset.
	already := false
	for _, d := range st.Scratch.Days {
		if d == day {
			already = true
			break
		}
	}
	if !already {
		st.Scratch.Days = append(st.Scratch.Days, day)
		if err := e.save(ctx, ev.ChatID, st); err != nil {
			return err
		}
	}
	return e.out.Send(ctx, ev.ChatID,
		fmt.Sprintf("Added %s (%d selected). Tap more or finish.", sched.WeekdayNames[day], len(st.Scratch.Days)),
		dayMarkup())
}

// --- shared transitions ---

func (e *Engine) presentShopMenu(ctx context.Context, ev Event, shops []catalog.Shop) error {
	refs := make([]favorites.ShopRef, 0, len(shops))
	options := make([]string, 0, len(shops))
	for _, s := range shops {
		refs = append(refs, favorites.ShopRef{ID: s.ID, Name: s.Name})
		options = append(options, s.Name)
	}
	st := State{Step: StepSelectingShopFromCity, Scratch: Scratch{ShopOptions: refs}}
	if err := e.save(ctx, ev.ChatID, st); err != nil {
		return err
	}
	return e.out.Send(ctx, ev.ChatID, "Tap the shops you want, then finish:",
		choiceMarkup(options, btnDone, btnCancel))
}

func (e *Engine) commitShops(ctx context.Context, ev Event, shops []favorites.ShopRef) error {
	set, err := e.favs.Load(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	for _, s := range shops {
		set.AddShop(s)
	}
	if err := e.favs.Save(ctx, ev.UserID, set); err != nil {
		return fmt.Errorf("save favorites: %w", err)
	}
	if err := e.save(ctx, ev.ChatID, State{Step: StepIdle}); err != nil {
		return err
	}
	return e.out.Send(ctx, ev.ChatID,
		fmt.Sprintf("Saved %d favorite shop(s) ✅", len(shops)), removeMarkup())
}

func (e *Engine) finalizeSchedule(ctx context.Context, ev Event, st State) error {
	set, err := e.favs.Load(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	snapshot := set.Clone()

	schedule := sched.Schedule{
		UserID:   ev.UserID,
		ChatID:   ev.ChatID,
		Hour:     st.Scratch.Hour,
		Minute:   st.Scratch.Minute,
		Days:     st.Scratch.Days,
		Timezone: e.timezone,
		Flavors:  snapshot.Flavors,
		Shops:    snapshot.Shops,
	}
	if err := e.scheduler.Install(ctx, schedule); err != nil {
		return fmt.Errorf("install schedule: %w", err)
	}
	if err := e.save(ctx, ev.ChatID, State{Step: StepIdle}); err != nil {
		return err
	}
	e.log.Info("schedule configured",
		slog.String("event", "dialog.schedule"),
		slog.Int64("user_id", ev.UserID),
		slog.String("time", schedule.TimeOfDay()),
	)
	return e.out.Send(ctx, ev.ChatID,
		fmt.Sprintf("✅ Daily updates set for %s on: %s",
			schedule.TimeOfDay(), strings.Join(schedule.DayNames(), ", ")),
		removeMarkup())
}

func (e *Engine) save(ctx context.Context, chatID int64, st State) error {
	if err := e.states.Save(ctx, chatID, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// catalogNotice turns an unavailable-catalog failure into a user notice while
// keeping the machine in its current step; other errors propagate.
func (e *Engine) catalogNotice(ctx context.Context, chatID int64, err error) error {
	if errors.Is(err, catalog.ErrUnavailable) {
		e.log.Warn("catalog unavailable",
			slog.String("event", "dialog.catalog"),
			slog.String("err", err.Error()),
		)
		return e.out.Send(ctx, chatID, msgCatalogDown, plainMarkup())
	}
	return err
}
