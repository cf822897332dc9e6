package services

import (
	"time"

	"github.com/shopspring/decimal"

	"finanzen/internal/core"
)

type (
	RegisterRequest struct {
		Email     string `json:"email" validate:"required,email,max=254"`
		Password  string `json:"password" validate:"required,password,max=128"`
		FirstName string `json:"firstName" validate:"max=100"`
		LastName  string `json:"lastName" validate:"max=100"`
	}

	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	// AuthResponse is returned by register and login.
	AuthResponse struct {
		Token     string    `json:"token"`
		TokenType string    `json:"tokenType"`
		ExpiresAt time.Time `json:"expiresAt"`
		User      core.User `json:"user"`
	}

	ChangePasswordRequest struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,password,max=128,nefield=CurrentPassword"`
	}

	UpdateProfileRequest struct {
		Email     string `json:"email" validate:"omitempty,email,max=254"`
		FirstName string `json:"firstName" validate:"max=100"`
		LastName  string `json:"lastName" validate:"max=100"`
	}
)

type AccountRequest struct {
	Name           string           `json:"name" validate:"required,max=100"`
	IBAN           string           `json:"iban" validate:"omitempty,iban"`
	BIC            string           `json:"bic" validate:"omitempty,min=8,max=11,alphanum"`
	BankName       string           `json:"bankName" validate:"max=100"`
	Type           core.AccountType `json:"type" validate:"required,accounttype"`
	Currency       string           `json:"currency" validate:"omitempty,iso4217"`
	OpeningBalance decimal.Decimal  `json:"openingBalance"`
	IsActive       *bool            `json:"isActive"`
	// Version is required on update.
	Version int64 `json:"version" validate:"omitempty,min=1"`
}

type (
	CategoryRequest struct {
		Name           string               `json:"name" validate:"required,max=100"`
		Description    string               `json:"description" validate:"max=500"`
		Type           core.TransactionType `json:"type" validate:"required,txtype"`
		Color          string               `json:"color" validate:"omitempty,hexcolor"`
		Icon           string               `json:"icon" validate:"max=50"`
		ParentID       *string              `json:"parentId" validate:"omitempty,uuid"`
		Keywords       []string             `json:"keywords" validate:"max=50,dive,required,max=100"`
		DefaultVatRate *string              `json:"defaultVatRate" validate:"omitempty,vatrate"`
		Version        int64                `json:"version" validate:"omitempty,min=1"`
	}

	// CategoryNode is a category with its subcategories.
	CategoryNode struct {
		core.Category
		Children []CategoryNode `json:"children"`
	}

	SuggestRequest struct {
		Description  string `json:"description" validate:"required,max=500"`
		Counterparty string `json:"counterparty" validate:"max=200"`
		// Type is the booking direction; it defaults to expense.
		Type  core.TransactionType `json:"type" validate:"omitempty,txtype"`
		Limit int                  `json:"limit" validate:"omitempty,min=1,max=20"`
	}
)

type (
	TransactionRequest struct {
		AccountID        string               `json:"accountId" validate:"required,uuid"`
		CategoryID       *string              `json:"categoryId" validate:"omitempty,uuid"`
		BookingDate      core.Date            `json:"bookingDate"`
		ValueDate        *core.Date           `json:"valueDate"`
		Amount           decimal.Decimal      `json:"amount"`
		Type             core.TransactionType `json:"type" validate:"omitempty,txtype"`
		Description      string               `json:"description" validate:"required,max=500"`
		Counterparty     string               `json:"counterparty" validate:"max=200"`
		CounterpartyIBAN string               `json:"counterpartyIban" validate:"omitempty,iban"`
		Reference        string               `json:"reference" validate:"max=500"`
		VatRate          *string              `json:"vatRate" validate:"omitempty,vatrate"`
		Notes            string               `json:"notes" validate:"max=2000"`
		IsReconciled     bool                 `json:"isReconciled"`
		Version          int64                `json:"version" validate:"omitempty,min=1"`
	}

	SummaryRequest struct {
		From      *core.Date
		To        *core.Date
		AccountID string
	}

	SummaryResponse struct {
		From         *core.Date        `json:"from,omitempty"`
		To           *core.Date        `json:"to,omitempty"`
		Income       core.Money        `json:"income"`
		Expense      core.Money        `json:"expense"`
		Net          core.Money        `json:"net"`
		VatCollected core.Money        `json:"vatCollected"`
		VatPaid      core.Money        `json:"vatPaid"`
		VatPayable   core.Money        `json:"vatPayable"`
		Count        int               `json:"count"`
		ByCategory   []CategorySummary `json:"byCategory"`
		ByMonth      []MonthSummary    `json:"byMonth"`
	}

	CategorySummary struct {
		CategoryID   *string    `json:"categoryId"`
		CategoryName string     `json:"categoryName"`
		Income       core.Money `json:"income"`
		Expense      core.Money `json:"expense"`
		Net          core.Money `json:"net"`
		Count        int        `json:"count"`
	}

	MonthSummary struct {
		Month   string     `json:"month"`
		Income  core.Money `json:"income"`
		Expense core.Money `json:"expense"`
		Net     core.Money `json:"net"`
		Count   int        `json:"count"`
	}
)

type (
	UploadRequest struct {
		AccountID   *string
		FileName    string
		ContentType string
		// AutoImport imports right away when no broker is configured.
		AutoImport bool
	}

	ImportResult struct {
		File     core.UploadedFile `json:"file"`
		Imported int               `json:"imported"`
		Skipped  int               `json:"skipped"`
		// Reconciled is false when the bookings do not add up to the closing balance.
		Reconciled bool `json:"reconciled"`
	}
)

type (
	VatCalculateRequest struct {
		Amount   decimal.Decimal  `json:"amount"`
		Rate     *string          `json:"rate" validate:"omitempty,vatrate"`
		RateKind core.VatRateKind `json:"rateKind" validate:"omitempty,oneof=standard reduced zero"`
		Mode     string           `json:"mode" validate:"required,oneof=net gross"`
		Currency string           `json:"currency" validate:"omitempty,iso4217"`
	}

	VatCalculation struct {
		Net      core.Money       `json:"net"`
		Vat      core.Money       `json:"vat"`
		Gross    core.Money       `json:"gross"`
		Rate     core.VatRate     `json:"rate"`
		RateKind core.VatRateKind `json:"rateKind"`
	}

	VatRateInfo struct {
		Kind        core.VatRateKind `json:"kind"`
		Rate        core.VatRate     `json:"rate"`
		Label       string           `json:"label"`
		Description string           `json:"description"`
	}
)

type EraseRequest struct {
	Password string `json:"password" validate:"required"`
}
