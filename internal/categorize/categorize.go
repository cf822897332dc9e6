// Package categorize suggests categories for bookings by keyword matching.
package categorize

import (
	"sort"
	"strings"

	"finanzen/internal/core"
)

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss", "Ä", "ae", "Ö", "oe", "Ü", "ue", "ẞ", "ss")

// Normalize lower-cases s, folds German umlauts and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(umlauts.Replace(s))), " ")
}

// Suggestion is a ranked category candidate.
type Suggestion struct {
	CategoryID string  `json:"categoryId"`
	Name       string  `json:"name"`
	Keyword    string  `json:"keyword"`
	Score      int     `json:"score"`
	Confidence float64 `json:"confidence"`
}

type rule struct {
	category core.Category
	keywords []string
}

// Matcher holds the normalized keywords of a category set.
type Matcher struct {
	rules []rule
}

// New builds a matcher from categories; categories without keywords never match.
func New(categories []core.Category) *Matcher {
	m := &Matcher{}
	for _, c := range categories {
		var kws []string
		seen := make(map[string]bool)
		for _, k := range c.Keywords {
			if k = Normalize(k); k != "" && !seen[k] {
				seen[k] = true
				kws = append(kws, k)
			}
		}
		if len(kws) > 0 {
			m.rules = append(m.rules, rule{category: c, keywords: kws})
		}
	}
	return m
}

// Suggest ranks the categories whose keywords occur in description or
// counterparty. Each matching keyword scores its length. When direction is
// set, only categories of that direction (or transfer categories) qualify.
// Ties are broken by category name.
func (m *Matcher) Suggest(description, counterparty string, direction core.TransactionType) []Suggestion {
	text := Normalize(description + " " + counterparty)
	if text == "" {
		return nil
	}

	var out []Suggestion
	for _, r := range m.rules {
		if direction != "" && !r.category.Matches(direction) {
			continue
		}
		score, best := 0, ""
		for _, k := range r.keywords {
			if strings.Contains(text, k) {
				score += len(k)
				if len(k) > len(best) {
					best = k
				}
			}
		}
		if score == 0 {
			continue
		}
		conf := float64(score) / float64(len(text))
		if conf > 1 {
			conf = 1
		}
		out = append(out, Suggestion{
			CategoryID: r.category.ID,
			Name:       r.category.Name,
			Keyword:    best,
			Score:      score,
			Confidence: conf,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Best returns the top suggestion.
func (m *Matcher) Best(description, counterparty string, direction core.TransactionType) (Suggestion, bool) {
	s := m.Suggest(description, counterparty, direction)
	if len(s) == 0 {
		return Suggestion{}, false
	}
	return s[0], true
}
