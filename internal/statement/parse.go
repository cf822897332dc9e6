package statement

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"finanzen/internal/core"
)

const (
	datePattern   = `\d{2}\.\d{2}\.(?:\d{4}|\d{2})?`
	amountPattern = `[+-]?\d{1,3}(?:\.\d{3})*,\d{2}|[+-]?\d+,\d{2}`
)

var (
	entryLine = regexp.MustCompile(`^(` + datePattern + `)\s+(?:(` + datePattern + `)\s+)?(.*?)\s+(` + amountPattern + `)\s*(-|\+|S|H)?\s*(?:€|EUR)?$`)
	ibanStart = regexp.MustCompile(`^[A-Z]{2}\d{2}`)
	bicField  = regexp.MustCompile(`(?i)\bBIC\s*:?\s*([A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?)\b`)
	holder    = regexp.MustCompile(`(?i)^(?:Kontoinhaber(?:in)?|Inhaber)\s*:?\s*(.+)$`)
	period    = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})\s*(?:-|–|bis)\s*(\d{2}\.\d{2}\.\d{4})`)
	balance   = regexp.MustCompile(`(?i)\b(alter|neuer)\s+kontostand\b.*?(` + amountPattern + `)\s*(-|\+|S|H)?\s*(?:€|EUR)?$`)
	footer    = regexp.MustCompile(`(?i)^(seite\s+\d+|übertrag|kontoauszug\b|buchungstag\b|datum\s+.*betrag|blatt\s+\d+)`)
	refPrefix = regexp.MustCompile(`(?i)^(?:verwendungszweck|svwz\+|ref\.?)\s*:?\s*`)
	ibanLabel = regexp.MustCompile(`(?i)\bIBAN\b\s*:?`)
)

// ParseText extracts header fields and bookings from the text of a statement.
// Bookings start with a booking date, optionally followed by a value date,
// and end with an amount whose sign is given by a leading or trailing sign
// or an S (Soll, debit) / H (Haben, credit) marker. Lines that follow a
// booking and match nothing else continue its description.
func ParseText(text string) (Statement, error) {
	var (
		st      Statement
		current *Entry
		extra   []string
		entries []*Entry
		extras  [][]string
	)
	flush := func() {
		if current != nil {
			entries = append(entries, current)
			extras = append(extras, extra)
		}
		current, extra = nil, nil
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.Join(strings.Fields(sc.Text()), " ")
		if line == "" {
			continue
		}

		if m := balance.FindStringSubmatch(line); m != nil {
			flush()
			if amt, ok := signedAmount(m[2], m[3]); ok {
				if strings.EqualFold(m[1], "alter") {
					st.OpeningBalance = &amt
				} else {
					st.ClosingBalance = &amt
				}
			}
			continue
		}

		if m := entryLine.FindStringSubmatch(line); m != nil {
			if e, ok := newEntry(m, st.PeriodTo); ok {
				flush()
				current = e
				continue
			}
		}

		if current == nil {
			parseHeader(&st, line)
			continue
		}
		if footer.MatchString(line) {
			flush()
			continue
		}
		extra = append(extra, line)
	}
	flush()
	if err := sc.Err(); err != nil {
		return Statement{}, err
	}

	seen := make(map[string]int)
	for i, e := range entries {
		finishEntry(e, extras[i])
		base := ImportHash(e.BookingDate, e.Amount, e.Description)
		seen[base]++
		e.ImportHash = base
		if n := seen[base]; n > 1 {
			e.ImportHash = ImportHash(e.BookingDate, e.Amount, e.Description+"#"+strconv.Itoa(n))
		}
		st.Entries = append(st.Entries, *e)
	}

	if len(st.Entries) == 0 {
		return st, ErrNoTransactions
	}
	return st, nil
}

func parseHeader(st *Statement, line string) {
	if st.IBAN.IsZero() && ibanLabel.MatchString(line) {
		if iban, _, ok := findIBAN(line); ok {
			st.IBAN = iban
		}
	}
	if st.BIC == "" {
		if m := bicField.FindStringSubmatch(line); m != nil {
			st.BIC = strings.ToUpper(m[1])
		}
	}
	if st.AccountHolder == "" {
		if m := holder.FindStringSubmatch(line); m != nil {
			st.AccountHolder = strings.TrimSpace(m[1])
		}
	}
	if st.PeriodFrom == nil {
		if m := period.FindStringSubmatch(line); m != nil {
			from, err1 := core.ParseDate(m[1])
			to, err2 := core.ParseDate(m[2])
			if err1 == nil && err2 == nil && !to.Before(from) {
				st.PeriodFrom, st.PeriodTo = &from, &to
			}
		}
	}
}

func newEntry(m []string, periodEnd *core.Date) (*Entry, bool) {
	booking, ok := parseDay(m[1], periodEnd)
	if !ok {
		return nil, false
	}
	amount, ok := signedAmount(m[4], m[5])
	if !ok || amount.IsZero() {
		return nil, false
	}
	e := &Entry{BookingDate: booking, Amount: amount, Description: strings.TrimSpace(m[3])}
	if m[2] != "" {
		if v, ok := parseDay(m[2], periodEnd); ok {
			e.ValueDate = &v
		}
	}
	return e, true
}

// parseDay parses DD.MM.YYYY, DD.MM.YY or DD.MM. where the year is taken
// from the statement period.
func parseDay(s string, periodEnd *core.Date) (core.Date, bool) {
	if strings.HasSuffix(s, ".") {
		if periodEnd == nil {
			return core.Date{}, false
		}
		t, err := time.Parse("02.01.", s)
		if err != nil {
			return core.Date{}, false
		}
		d := core.NewDate(periodEnd.Year(), int(t.Month()), t.Day())
		if d.After(periodEnd.Time) {
			d = core.NewDate(periodEnd.Year()-1, int(t.Month()), t.Day())
		}
		return d, true
	}
	d, err := core.ParseDate(s)
	return d, err == nil
}

func signedAmount(raw, marker string) (core.Money, bool) {
	d, err := core.ParseGermanAmount(raw)
	if err != nil {
		return core.Money{}, false
	}
	switch strings.ToUpper(marker) {
	case "-", "S":
		d = d.Abs().Neg()
	case "H":
		d = d.Abs()
	}
	return core.EUR(d), true
}

// finishEntry distributes continuation lines: the first line names the
// counterparty, the rest form the reference. IBANs found anywhere are
// taken as the counterparty account.
func finishEntry(e *Entry, extra []string) {
	var rest []string
	for _, line := range extra {
		if e.CounterpartyIBAN == nil {
			if iban, raw, ok := findIBAN(line); ok {
				e.CounterpartyIBAN = &iban
				line = strings.Replace(line, raw, "", 1)
				line = strings.Join(strings.Fields(ibanLabel.ReplaceAllString(line, "")), " ")
			}
		}
		if m := bicField.FindStringIndex(line); m != nil {
			line = strings.TrimSpace(line[:m[0]] + line[m[1]:])
		}
		if line == "" {
			continue
		}
		if e.Counterparty == "" && !refPrefix.MatchString(line) {
			e.Counterparty = line
			continue
		}
		rest = append(rest, refPrefix.ReplaceAllString(line, ""))
	}
	e.Reference = strings.Join(rest, " ")

	parts := []string{e.Description}
	if e.Counterparty != "" {
		parts = append(parts, e.Counterparty)
	}
	if e.Reference != "" {
		parts = append(parts, e.Reference)
	}
	e.Description = truncate(strings.Join(parts, " "), core.MaxDescriptionLength)
	if e.Description == "" {
		e.Description = "Buchung"
	}
}

// findIBAN looks for a valid IBAN printed either compact or in groups
// separated by single spaces. It returns the IBAN and the text it was read from.
func findIBAN(line string) (core.IBAN, string, bool) {
	fields := strings.Fields(line)
	for i, f := range fields {
		f = strings.TrimPrefix(f, "IBAN:")
		if !ibanStart.MatchString(f) {
			continue
		}
		candidate := f
		for j := i; j < len(fields) && j < i+9; j++ {
			if j > i {
				candidate += fields[j]
			}
			if iban, err := core.ParseIBAN(candidate); err == nil {
				raw := strings.Join(fields[i:j+1], " ")
				return iban, strings.TrimPrefix(raw, "IBAN:"), true
			}
		}
	}
	return core.IBAN{}, "", false
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
