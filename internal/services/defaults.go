package services

import "finanzen/internal/core"

type defaultCategory struct {
	name     string
	typ      core.TransactionType
	color    string
	icon     string
	vat      *core.VatRate
	keywords []string
}

func rate(v core.VatRate) *core.VatRate { return &v }

// defaultCategories are seeded for every new user.
var defaultCategories = []defaultCategory{
	{"Gehalt", core.Income, "#2e7d32", "payments", nil, []string{"gehalt", "lohn", "bezuege", "entgeltabrechnung"}},
	{"Umsatzerlöse", core.Income, "#388e3c", "receipt_long", rate(core.VatStandard), []string{"rechnung", "re-nr", "honorar"}},
	{"Erstattungen", core.Income, "#43a047", "undo", nil, []string{"erstattung", "rueckerstattung", "gutschrift"}},
	{"Zinsen & Dividenden", core.Income, "#66bb6a", "savings", nil, []string{"zinsen", "dividende", "ertrag"}},
	{"Lebensmittel", core.Expense, "#ef6c00", "shopping_cart", rate(core.VatReduced), []string{"rewe", "edeka", "aldi", "lidl", "netto", "penny", "kaufland", "denns", "alnatura"}},
	{"Miete & Wohnen", core.Expense, "#6d4c41", "home", rate(core.VatZero), []string{"miete", "hausverwaltung", "nebenkosten", "hausgeld"}},
	{"Energie", core.Expense, "#f9a825", "bolt", rate(core.VatStandard), []string{"stadtwerke", "strom", "vattenfall", "e.on", "gasag", "abschlag"}},
	{"Versicherungen", core.Expense, "#5e35b1", "shield", rate(core.VatZero), []string{"versicherung", "allianz", "huk", "ergo", "debeka"}},
	{"Mobilität", core.Expense, "#1e88e5", "directions_car", rate(core.VatStandard), []string{"tankstelle", "aral", "shell", "deutsche bahn", "db vertrieb", "bvg", "mvg", "hvv", "deutschlandticket"}},
	{"Telefon & Internet", core.Expense, "#00897b", "wifi", rate(core.VatStandard), []string{"telekom", "vodafone", "o2", "1&1", "congstar"}},
	{"Freizeit & Unterhaltung", core.Expense, "#d81b60", "theaters", rate(core.VatStandard), []string{"netflix", "spotify", "kino", "disney", "steam"}},
	{"Gesundheit", core.Expense, "#e53935", "local_hospital", nil, []string{"apotheke", "arzt", "praxis", "zahnarzt"}},
	{"Restaurants", core.Expense, "#fb8c00", "restaurant", rate(core.VatStandard), []string{"restaurant", "lieferando", "cafe", "baeckerei"}},
	{"Bürobedarf", core.Expense, "#546e7a", "work", rate(core.VatStandard), []string{"buerobedarf", "schreibwaren", "druckerei"}},
	{"Steuern & Gebühren", core.Expense, "#455a64", "account_balance", nil, []string{"finanzamt", "gebuehr", "kontofuehrung", "entgelt", "rundfunkbeitrag"}},
	{"Bargeld", core.Expense, "#8d6e63", "atm", nil, []string{"geldautomat", "bargeldauszahlung", "auszahlung gaa"}},
	{"Umbuchung", core.Transfer, "#757575", "swap_horiz", nil, []string{"umbuchung", "uebertrag", "eigenes konto"}},
}

func seedCategories(userID string) []core.Category {
	out := make([]core.Category, 0, len(defaultCategories))
	for _, d := range defaultCategories {
		out = append(out, core.Category{
			UserID:         userID,
			Name:           d.name,
			Type:           d.typ,
			Color:          d.color,
			Icon:           d.icon,
			Keywords:       append([]string(nil), d.keywords...),
			DefaultVatRate: d.vat,
			IsSystem:       true,
		})
	}
	return out
}
