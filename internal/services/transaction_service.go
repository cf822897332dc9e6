package services

import (
	"context"
	"errors"
	"strings"

	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/storage"
	"finanzen/internal/validation"
)

type TransactionService struct {
	store      *storage.Store
	categories *CategoryService
	publisher  SyncPublisher
	logger     *log.Logger
	events     *log.StructuredLogger
}

// NewTransactionService creates the service; publisher may be nil when no broker is configured.
func NewTransactionService(store *storage.Store, categories *CategoryService, publisher SyncPublisher, logger *log.Logger) *TransactionService {
	l := logger.WithComponent(log.ComponentTransaction)
	return &TransactionService{
		store:      store,
		categories: categories,
		publisher:  publisher,
		logger:     l,
		events:     log.NewStructuredLogger(l),
	}
}

// List returns one page of the transactions matching f.
func (s *TransactionService) List(ctx context.Context, userID string, f storage.TransactionFilter) (Page[core.Transaction], error) {
	f.Normalize()
	items, total, err := s.store.ListTransactions(ctx, userID, f)
	if err != nil {
		return Page[core.Transaction]{}, err
	}
	return newPage(items, f.Page, f.PageSize, total), nil
}

// Get returns one transaction of the user.
func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

// Create stores a booking. Without a category the best keyword match is
// used; without a VAT rate the category's default rate applies.
func (s *TransactionService) Create(ctx context.Context, userID string, req TransactionRequest) (core.Transaction, error) {
	t := core.Transaction{UserID: userID}
	if err := s.apply(ctx, &t, req, true); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.CreateTransaction(ctx, &t); err != nil {
		return core.Transaction{}, err
	}
	s.events.LogTransactionCreated(ctx, t.ID, t.AccountID, t.Amount.Amount.StringFixed(2), t.Amount.Currency)
	s.publishSync(ctx, t)
	return t, nil
}

// Update replaces the booking when req.Version is current and
// publishes a sync message for the new version.
func (s *TransactionService) Update(ctx context.Context, userID, id string, req TransactionRequest) (core.Transaction, error) {
	if err := requireVersion(req.Version); err != nil {
		return core.Transaction{}, err
	}
	t, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.apply(ctx, &t, req, false); err != nil {
		return core.Transaction{}, err
	}
	t.Version = req.Version
	if err := s.store.UpdateTransaction(ctx, &t); err != nil {
		return core.Transaction{}, err
	}
	s.publishSync(ctx, t)
	return t, nil
}

// Delete removes a transaction.
func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	return s.store.DeleteTransaction(ctx, userID, id)
}

// Summary aggregates income, expenses and VAT of the user's bookings in EUR.
// Transfers are left out.
func (s *TransactionService) Summary(ctx context.Context, userID string, req SummaryRequest) (SummaryResponse, error) {
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return SummaryResponse{}, core.FieldError("to", "must not be before from")
	}
	sum, err := s.store.Summarize(ctx, userID, storage.TransactionFilter{From: req.From, To: req.To, AccountID: req.AccountID})
	if err != nil {
		return SummaryResponse{}, err
	}
	names, err := s.categories.Names(ctx, userID)
	if err != nil {
		return SummaryResponse{}, err
	}

	money := func(cents int64) core.Money { return storage.CentsToMoney(cents, core.DefaultCurrency) }
	t := sum.Totals
	out := SummaryResponse{
		From:         req.From,
		To:           req.To,
		Income:       money(t.IncomeCents),
		Expense:      money(t.ExpenseCents),
		Net:          money(t.IncomeCents + t.ExpenseCents),
		VatCollected: money(t.VatCollectedCents),
		VatPaid:      money(-t.VatPaidCents),
		VatPayable:   money(t.VatCollectedCents + t.VatPaidCents),
		Count:        t.Count,
		ByCategory:   make([]CategorySummary, 0, len(sum.ByCategory)),
		ByMonth:      make([]MonthSummary, 0, len(sum.ByMonth)),
	}
	for _, c := range sum.ByCategory {
		cs := CategorySummary{
			CategoryName: "Ohne Kategorie",
			Income:       money(c.IncomeCents),
			Expense:      money(c.ExpenseCents),
			Net:          money(c.IncomeCents + c.ExpenseCents),
			Count:        c.Count,
		}
		if c.CategoryID != "" {
			id := c.CategoryID
			cs.CategoryID = &id
			cs.CategoryName = names[id]
		}
		out.ByCategory = append(out.ByCategory, cs)
	}
	for _, m := range sum.ByMonth {
		out.ByMonth = append(out.ByMonth, MonthSummary{
			Month:   m.Month,
			Income:  money(m.IncomeCents),
			Expense: money(m.ExpenseCents),
			Net:     money(m.IncomeCents + m.ExpenseCents),
			Count:   m.Count,
		})
	}
	return out, nil
}

func (s *TransactionService) apply(ctx context.Context, t *core.Transaction, req TransactionRequest, create bool) error {
	if err := validation.Struct(req); err != nil {
		return err
	}

	account, err := s.store.GetAccount(ctx, t.UserID, req.AccountID)
	if errors.Is(err, core.ErrNotFound) {
		return core.FieldError("accountId", "does not exist")
	}
	if err != nil {
		return err
	}
	amount, err := core.NewMoney(req.Amount, account.Currency)
	if err != nil {
		return core.FieldError("amount", err.Error())
	}

	typ := core.TypeForAmount(amount)
	switch req.Type {
	case "", typ:
	case core.Transfer:
		typ = core.Transfer
	default:
		return core.FieldError("type", "does not match the sign of amount")
	}

	var category *core.Category
	switch categoryID := emptyToNil(req.CategoryID); {
	case categoryID != nil:
		c, err := s.store.GetCategory(ctx, t.UserID, *categoryID)
		if errors.Is(err, core.ErrNotFound) {
			return core.FieldError("categoryId", "does not exist")
		}
		if err != nil {
			return err
		}
		category = &c
	case create:
		cl, err := s.categories.classifier(ctx, t.UserID)
		if err != nil {
			return err
		}
		category = cl.classify(req.Description, req.Counterparty, typ)
	}

	vat, err := optionalVatRate(req.VatRate)
	if err != nil {
		return core.FieldError("vatRate", err.Error())
	}
	if vat == nil && category != nil && typ != core.Transfer {
		vat = category.DefaultVatRate
	}

	var cpIBAN *core.IBAN
	if req.CounterpartyIBAN != "" {
		iban, err := core.ParseIBAN(req.CounterpartyIBAN)
		if err != nil {
			return core.FieldError("counterpartyIban", err.Error())
		}
		cpIBAN = &iban
	}

	t.AccountID = account.ID
	t.CategoryID = nil
	if category != nil {
		t.CategoryID = &category.ID
	}
	t.BookingDate = req.BookingDate
	t.ValueDate = req.ValueDate
	t.Amount = amount
	t.Type = typ
	t.Description = strings.TrimSpace(req.Description)
	t.Counterparty = strings.TrimSpace(req.Counterparty)
	t.CounterpartyIBAN = cpIBAN
	t.Reference = strings.TrimSpace(req.Reference)
	t.VatRate = vat
	t.Notes = req.Notes
	t.IsReconciled = req.IsReconciled
	t.ApplyVat()
	return t.Validate()
}

// publishSync never fails the request; the worker sweep mirrors missed rows.
func (s *TransactionService) publishSync(ctx context.Context, t core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionSync(ctx, t.ID, t.UserID, t.Version); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldTransactionID, t.ID, log.FieldError, err)
	}
}
