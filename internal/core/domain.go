package core

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"

	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountCash       AccountType = "cash"
	AccountBusiness   AccountType = "business"

	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"

	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileProcessed  FileStatus = "processed"
	FileFailed     FileStatus = "failed"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	MaxNotesLength       = 2000
)

type (
	Role            string
	AccountType     string
	TransactionType string
	FileStatus      string

	// Base carries identity, audit timestamps and the optimistic concurrency
	// token of every persisted entity.
	Base struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
		Version   int64     `json:"version"`
	}

	User struct {
		Base
		Email        string     `json:"email"`
		PasswordHash string     `json:"-"`
		FirstName    string     `json:"firstName"`
		LastName     string     `json:"lastName"`
		Role         Role       `json:"role"`
		LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
		IsActive     bool       `json:"isActive"`
	}

	Account struct {
		Base
		UserID         string      `json:"userId"`
		Name           string      `json:"name"`
		IBAN           IBAN        `json:"iban"`
		BIC            string      `json:"bic,omitempty"`
		BankName       string      `json:"bankName,omitempty"`
		Type           AccountType `json:"type"`
		Currency       string      `json:"currency"`
		OpeningBalance Money       `json:"openingBalance"`
		Balance        Money       `json:"balance"`
		IsActive       bool        `json:"isActive"`
	}

	Category struct {
		Base
		UserID         string          `json:"userId"`
		Name           string          `json:"name"`
		Description    string          `json:"description,omitempty"`
		Type           TransactionType `json:"type"`
		Color          string          `json:"color,omitempty"`
		Icon           string          `json:"icon,omitempty"`
		ParentID       *string         `json:"parentId,omitempty"`
		Keywords       []string        `json:"keywords"`
		DefaultVatRate *VatRate        `json:"defaultVatRate,omitempty"`
		IsSystem       bool            `json:"isSystem"`
	}

	Transaction struct {
		Base
		UserID           string          `json:"userId"`
		AccountID        string          `json:"accountId"`
		CategoryID       *string         `json:"categoryId,omitempty"`
		UploadedFileID   *string         `json:"uploadedFileId,omitempty"`
		BookingDate      Date            `json:"bookingDate"`
		ValueDate        *Date           `json:"valueDate,omitempty"`
		Amount           Money           `json:"amount"`
		Type             TransactionType `json:"type"`
		Description      string          `json:"description"`
		Counterparty     string          `json:"counterparty,omitempty"`
		CounterpartyIBAN *IBAN           `json:"counterpartyIban,omitempty"`
		Reference        string          `json:"reference,omitempty"`
		VatRate          *VatRate        `json:"vatRate,omitempty"`
		VatAmount        Money           `json:"vatAmount"`
		Notes            string          `json:"notes,omitempty"`
		IsReconciled     bool            `json:"isReconciled"`
		ImportHash       string          `json:"importHash,omitempty"`
		SheetsSyncedAt   *time.Time      `json:"sheetsSyncedAt,omitempty"`
	}

	UploadedFile struct {
		Base
		UserID           string     `json:"userId"`
		AccountID        *string    `json:"accountId,omitempty"`
		OriginalName     string     `json:"originalName"`
		StoredName       string     `json:"storedName"`
		ContentType      string     `json:"contentType"`
		Size             int64      `json:"size"`
		SHA256           string     `json:"sha256"`
		Status           FileStatus `json:"status"`
		ErrorMessage     string     `json:"errorMessage,omitempty"`
		TransactionCount int        `json:"transactionCount"`
		ProcessedAt      *time.Time `json:"processedAt,omitempty"`
	}
)

var (
	ErrEmptyName        = errors.New("name is required")
	ErrEmptyDescription = errors.New("description is required")
	ErrInvalidType      = errors.New("invalid type")
	ErrInvalidColor     = errors.New("color must be a hex value like #1a2b3c")
	ErrZeroAmount       = errors.New("amount must not be zero")
	ErrInvalidDate      = errors.New("invalid date")
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCreditCard, AccountCash, AccountBusiness:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

// TypeForAmount derives income or expense from the sign of amount.
func TypeForAmount(amount Money) TransactionType {
	if amount.IsNegative() {
		return Expense
	}
	return Income
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (a Account) Validate() error {
	v := NewValidationError()
	if strings.TrimSpace(a.Name) == "" {
		v.Add("name", ErrEmptyName.Error())
	} else if len(a.Name) > MaxNameLength {
		v.Add("name", fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
	if !a.Type.Valid() {
		v.Add("type", ErrInvalidType.Error())
	}
	if _, err := NormalizeCurrency(a.Currency); err != nil {
		v.Add("currency", err.Error())
	}
	if a.OpeningBalance.Currency != "" && a.Currency != "" && a.OpeningBalance.Currency != strings.ToUpper(a.Currency) {
		v.Add("openingBalance", ErrCurrencyMismatch.Error())
	}
	return v.OrNil()
}

func (c Category) Validate() error {
	v := NewValidationError()
	if strings.TrimSpace(c.Name) == "" {
		v.Add("name", ErrEmptyName.Error())
	} else if len(c.Name) > MaxNameLength {
		v.Add("name", fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
	if !c.Type.Valid() {
		v.Add("type", ErrInvalidType.Error())
	}
	if c.Color != "" && !hexColor.MatchString(c.Color) {
		v.Add("color", ErrInvalidColor.Error())
	}
	if c.ParentID != nil && *c.ParentID == c.ID && c.ID != "" {
		v.Add("parentId", "a category cannot be its own parent")
	}
	return v.OrNil()
}

// Matches reports whether the category may classify a booking of type t.
func (c Category) Matches(t TransactionType) bool {
	return c.Type == t || c.Type == Transfer
}

func (t Transaction) Validate() error {
	v := NewValidationError()
	if t.AccountID == "" {
		v.Add("accountId", "account is required")
	}
	if t.BookingDate.IsZero() {
		v.Add("bookingDate", ErrInvalidDate.Error())
	}
	if t.Amount.IsZero() {
		v.Add("amount", ErrZeroAmount.Error())
	}
	if strings.TrimSpace(t.Description) == "" {
		v.Add("description", ErrEmptyDescription.Error())
	} else if len(t.Description) > MaxDescriptionLength {
		v.Add("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	if len(t.Notes) > MaxNotesLength {
		v.Add("notes", fmt.Sprintf("must be at most %d characters", MaxNotesLength))
	}
	if t.Type != "" && !t.Type.Valid() {
		v.Add("type", ErrInvalidType.Error())
	}
	return v.OrNil()
}

// ApplyVat sets VatAmount from VatRate treating Amount as gross. The tax
// carries the sign of the amount.
func (t *Transaction) ApplyVat() {
	if t.VatRate == nil || t.VatRate.IsZero() {
		t.VatAmount = ZeroMoney(t.Amount.Currency)
		return
	}
	_, vat := t.VatRate.Split(t.Amount)
	t.VatAmount = vat
}

// Net returns the amount without VAT.
func (t Transaction) Net() Money {
	net, err := t.Amount.Sub(t.VatAmount)
	if err != nil {
		return t.Amount
	}
	return net
}

// Date is a calendar day without time of day, serialized as 2006-01-02.
type Date struct {
	time.Time
}

const isoDate = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts ISO (2006-01-02), German (02.01.2006, 02.01.06) and RFC 3339 input.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{isoDate, GermanDateLayout, "02.01.06", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoDate)
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Value stores the day as an ISO string, portable across SQL dialects.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	}
	return fmt.Errorf("core.Date: cannot scan %T", src)
}

func (d *Date) scanString(s string) error {
	if len(s) >= len(isoDate) {
		s = s[:len(isoDate)]
	}
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	*d = Date{Time: t}
	return nil
}

// SumMoney adds amounts of one currency; an empty slice yields zero in currency.
func SumMoney(currency string, amounts ...Money) (Money, error) {
	total := ZeroMoney(currency)
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// ComputeBalance returns opening balance plus sum, where sum is the signed total of
// the account's transactions.
func (a Account) ComputeBalance(sum decimal.Decimal) Money {
	return Money{Amount: a.OpeningBalance.Amount.Add(sum).Round(2), Currency: a.OpeningBalance.Currency}
}
