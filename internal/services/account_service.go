package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/storage"
	"finanzen/internal/validation"
)

type AccountService struct {
	store  *storage.Store
	logger *log.Logger
}

// NewAccountService creates the account service.
func NewAccountService(store *storage.Store, logger *log.Logger) *AccountService {
	return &AccountService{store: store, logger: logger.WithComponent(log.ComponentAccount)}
}

// List returns the user's accounts with their current balances.
func (s *AccountService) List(ctx context.Context, userID string) ([]core.Account, error) {
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []core.Account{}
	}
	return accounts, nil
}

// Get returns one account of the user, or ErrNotFound.
func (s *AccountService) Get(ctx context.Context, userID, id string) (core.Account, error) {
	return s.store.GetAccount(ctx, userID, id)
}

// Create validates req and stores a new account. A duplicate IBAN is a conflict.
func (s *AccountService) Create(ctx context.Context, userID string, req AccountRequest) (core.Account, error) {
	a := core.Account{UserID: userID, IsActive: true}
	if err := s.apply(ctx, &a, req); err != nil {
		return core.Account{}, err
	}
	if err := s.store.CreateAccount(ctx, &a); err != nil {
		return core.Account{}, err
	}
	s.logger.InfoContext(ctx, "Account created", log.FieldUserID, userID, log.FieldAccountID, a.ID)
	return a, nil
}

// Update applies req when req.Version matches the stored version.
func (s *AccountService) Update(ctx context.Context, userID, id string, req AccountRequest) (core.Account, error) {
	if err := requireVersion(req.Version); err != nil {
		return core.Account{}, err
	}
	a, err := s.store.GetAccount(ctx, userID, id)
	if err != nil {
		return core.Account{}, err
	}
	if err := s.apply(ctx, &a, req); err != nil {
		return core.Account{}, err
	}
	a.Version = req.Version
	if err := s.store.UpdateAccount(ctx, &a); err != nil {
		return core.Account{}, err
	}
	return s.store.GetAccount(ctx, userID, id)
}

// Delete refuses accounts with bookings unless force is set; forced deletes remove the bookings too.
func (s *AccountService) Delete(ctx context.Context, userID, id string, force bool) error {
	if _, err := s.store.GetAccount(ctx, userID, id); err != nil {
		return err
	}
	n, err := s.store.CountAccountTransactions(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 && !force {
		return fmt.Errorf("%w: account still has %d transactions", core.ErrConflict, n)
	}
	if err := s.store.DeleteAccount(ctx, userID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Account deleted", log.FieldUserID, userID, log.FieldAccountID, id, log.FieldCount, n)
	return nil
}

func (s *AccountService) apply(ctx context.Context, a *core.Account, req AccountRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	currency, err := core.NormalizeCurrency(req.Currency)
	if err != nil {
		return core.FieldError("currency", err.Error())
	}
	opening, err := core.NewMoney(req.OpeningBalance, currency)
	if err != nil {
		return core.FieldError("openingBalance", err.Error())
	}

	var iban core.IBAN
	if req.IBAN != "" {
		if iban, err = core.ParseIBAN(req.IBAN); err != nil {
			return core.FieldError("iban", err.Error())
		}
		other, err := s.store.FindAccountByIBAN(ctx, a.UserID, iban)
		switch {
		case err == nil && other.ID != a.ID:
			return fmt.Errorf("%w: an account with IBAN %s already exists", core.ErrConflict, iban.Formatted())
		case err != nil && !errors.Is(err, core.ErrNotFound):
			return err
		}
	}

	a.Name = strings.TrimSpace(req.Name)
	a.IBAN = iban
	a.BIC = strings.ToUpper(strings.TrimSpace(req.BIC))
	a.BankName = strings.TrimSpace(req.BankName)
	a.Type = req.Type
	a.Currency = currency
	a.OpeningBalance = opening
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	return a.Validate()
}
