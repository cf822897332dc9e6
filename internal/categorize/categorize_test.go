package categorize

import (
	"testing"

	"finanzen/internal/core"
)

func testCategories() []core.Category {
	return []core.Category{
		{Base: core.Base{ID: "food"}, Name: "Lebensmittel", Type: core.Expense, Keywords: []string{"REWE", "Edeka", "Bäckerei"}},
		{Base: core.Base{ID: "drugstore"}, Name: "Drogerie", Type: core.Expense, Keywords: []string{"rewe"}},
		{Base: core.Base{ID: "salary"}, Name: "Gehalt", Type: core.Income, Keywords: []string{"gehalt", "lohn"}},
		{Base: core.Base{ID: "rent"}, Name: "Miete", Type: core.Expense, Keywords: []string{"miete", "vermieter"}},
		{Base: core.Base{ID: "savings"}, Name: "Umbuchung", Type: core.Transfer, Keywords: []string{"umbuchung"}},
		{Base: core.Base{ID: "empty"}, Name: "Sonstiges", Type: core.Expense},
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Bäckerei   MÜLLER ": "baeckerei mueller",
		"Straße":               "strasse",
		"ÖL\tWechsel":          "oel wechsel",
		"":                     "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatcher_Suggest(t *testing.T) {
	m := New(testCategories())

	tests := []struct {
		name         string
		description  string
		counterparty string
		direction    core.TransactionType
		wantFirst    string
		wantCount    int
	}{
		{"umlaut folded keyword", "Kartenzahlung", "Baeckerei Schulz", core.Expense, "food", 1},
		{"longest total wins", "REWE Markt, Edeka", "", core.Expense, "food", 2},
		{"tie broken by name", "REWE", "", core.Expense, "drugstore", 2},
		{"direction filters expense categories", "Lohn und Gehalt", "ACME", core.Income, "salary", 1},
		{"income does not match expense keywords", "Miete Rückzahlung", "", core.Income, "", 0},
		{"transfer categories match any direction", "Umbuchung Sparkonto", "", core.Expense, "savings", 1},
		{"no direction considers all", "Miete März", "Vermieter", "", "rent", 1},
		{"nothing matches", "Tankstelle", "", core.Expense, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Suggest(tt.description, tt.counterparty, tt.direction)
			if len(got) != tt.wantCount {
				t.Fatalf("Suggest() returned %d suggestions, want %d: %+v", len(got), tt.wantCount, got)
			}
			if tt.wantCount == 0 {
				return
			}
			if got[0].CategoryID != tt.wantFirst {
				t.Errorf("first suggestion = %s, want %s", got[0].CategoryID, tt.wantFirst)
			}
			for _, s := range got {
				if s.Confidence <= 0 || s.Confidence > 1 {
					t.Errorf("confidence %v out of range", s.Confidence)
				}
			}
		})
	}
}

func TestMatcher_Best(t *testing.T) {
	m := New(testCategories())
	best, ok := m.Best("Dauerauftrag Miete", "Vermieter GmbH", core.Expense)
	if !ok {
		t.Fatal("expected a match")
	}
	if best.CategoryID != "rent" || best.Keyword != "vermieter" || best.Score != len("miete")+len("vermieter") {
		t.Errorf("Best() = %+v", best)
	}
	if _, ok := New(nil).Best("REWE", "", core.Expense); ok {
		t.Error("empty matcher should not match")
	}
}
