// Package statement turns German bank statements into bookings.
package statement

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"finanzen/internal/core"
)

var (
	ErrNoTransactions  = errors.New("statement contains no transactions")
	ErrBalanceMismatch = errors.New("bookings do not add up to the closing balance")
)

// Statement is the parsed content of one bank statement.
type Statement struct {
	IBAN           core.IBAN
	BIC            string
	AccountHolder  string
	PeriodFrom     *core.Date
	PeriodTo       *core.Date
	OpeningBalance *core.Money
	ClosingBalance *core.Money
	Entries        []Entry
}

// Entry is one booking line of a statement.
type Entry struct {
	BookingDate      core.Date
	ValueDate        *core.Date
	Amount           core.Money
	Description      string
	Counterparty     string
	CounterpartyIBAN *core.IBAN
	Reference        string
	ImportHash       string
}

// Reconcile checks opening balance plus bookings against the closing
// balance. Statements without both balances pass.
func (s Statement) Reconcile() error {
	if s.OpeningBalance == nil || s.ClosingBalance == nil {
		return nil
	}
	total := *s.OpeningBalance
	for _, e := range s.Entries {
		var err error
		if total, err = total.Add(e.Amount); err != nil {
			return err
		}
	}
	if !total.Equal(*s.ClosingBalance) {
		return fmt.Errorf("%w: computed %s, statement says %s", ErrBalanceMismatch,
			core.FormatGerman(total), core.FormatGerman(*s.ClosingBalance))
	}
	return nil
}

// ImportHash identifies a booking across repeated imports of the same statement.
func ImportHash(date core.Date, amount core.Money, description string) string {
	key := strings.Join([]string{
		date.String(),
		amount.Amount.StringFixed(2),
		strings.ToLower(strings.Join(strings.Fields(description), " ")),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
