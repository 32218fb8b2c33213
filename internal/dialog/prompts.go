package dialog

import (
	"regexp"

	"github.com/example/boskobot/internal/sched"
)

// Button labels. Taps arrive back as plain text, so these double as match keys.
const (
	btnFlavors      = "🍦 Flavors"
	btnShops        = "🏪 Shops"
	btnCancel       = "❌ Cancel"
	btnDone         = "✅ Done selecting"
	btnByName       = "🏪 Search by shop name"
	btnByCity       = "🏙️ Browse by city"
	btnSetTime      = "⏰ Set Daily Updates"
	btnViewSettings = "📋 View Current Settings"
	btnAllDays      = "🗓️ All days"
	btnWeekdays     = "💼 Weekdays only"
	btnRemoveFlavor = "🍦 Remove Flavors"
	btnRemoveShops  = "🏪 Remove Shops"
)

const (
	msgStart = "Hi! I track ice cream availability for you.\n\n" +
		"/shops — list shops\n" +
		"/products <shop> — what a shop offers today\n" +
		"/search <flavor> — search the catalog\n" +
		"/search_available <flavor> — where a flavor is available right now\n" +
		"/add_favorite — pick favorite flavors and shops\n" +
		"/favorites — show your favorites\n" +
		"/remove_favorite — clear favorites\n" +
		"/daily_updates — schedule a daily digest\n" +
		"/stop_daily_updates — stop the digest\n" +
		"/cancel — abort the current dialogue"

	msgChooseType      = "What would you like to add to favorites?"
	msgAskFlavor       = "Send me a flavor to search for:"
	msgAskShopMethod   = "How do you want to find the shop?"
	msgAskShopName     = "Send me a shop name to search for:"
	msgChooseCity      = "Pick a city:"
	msgAskTime         = "Send the time for your daily update as HH:MM (24h):"
	msgChooseDays      = "Pick the days for your daily update:"
	msgCancelled       = "Cancelled. Back to the start."
	msgCatalogDown     = "😔 The catalog is unavailable right now, please try again."
	msgNoProducts      = "No products found, try another flavor:"
	msgNoShops         = "No shops found, try another name:"
	msgNothingSelected = "Nothing selected yet — tap at least one option first."
	msgUseButtons      = "Please use one of the buttons below."
	msgNeedFavorites   = "You need at least one favorite flavor and one favorite shop first — use /add_favorite."
	msgNoSchedule      = "You have no active daily update schedule."
)

// timeRE accepts 24h wall-clock times, with or without a leading zero.
var timeRE = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// keyboardRows lays options out two per row and appends the control rows.
func keyboardRows(options []string, controls ...string) [][]string {
	var rows [][]string
	for i := 0; i < len(options); i += 2 {
		end := i + 2
		if end > len(options) {
			end = len(options)
		}
		rows = append(rows, append([]string(nil), options[i:end]...))
	}
	for i := 0; i < len(controls); i += 2 {
		end := i + 2
		if end > len(controls) {
			end = len(controls)
		}
		rows = append(rows, append([]string(nil), controls[i:end]...))
	}
	return rows
}

func choiceMarkup(options []string, controls ...string) Markup {
	return Markup{Kind: MarkupChoice, Rows: keyboardRows(options, controls...)}
}

func dayMarkup() Markup {
	return choiceMarkup(sched.WeekdayNames, btnAllDays, btnWeekdays, btnDone, btnCancel)
}

func plainMarkup() Markup { return Markup{Kind: MarkupPlain} }

func removeMarkup() Markup { return Markup{Kind: MarkupRemove} }
