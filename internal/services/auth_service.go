package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"finanzen/internal/auth"
	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/storage"
	"finanzen/internal/validation"
)

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", core.ErrUnauthorized)

// AuthService registers users, issues tokens and manages the own profile.
type AuthService struct {
	store  *storage.Store
	hasher *auth.Hasher
	tokens *auth.TokenIssuer
	logger *log.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates the authentication service.
func NewAuthService(store *storage.Store, hasher *auth.Hasher, tokens *auth.TokenIssuer, logger *log.Logger) *AuthService {
	return &AuthService{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		logger: logger.WithComponent(log.ComponentAuth),
		now:    time.Now,
	}
}

// Register creates the user with the default category set and signs them in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	if err := validation.Struct(req); err != nil {
		return AuthResponse{}, err
	}
	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return AuthResponse{}, err
	}

	u := core.User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         core.RoleUser,
		IsActive:     true,
	}
	err = s.store.WithTx(ctx, func(tx *storage.Store) error {
		if err := tx.CreateUser(ctx, &u); err != nil {
			if errors.Is(err, core.ErrConflict) {
				return fmt.Errorf("%w: email is already registered", core.ErrConflict)
			}
			return err
		}
		for _, c := range seedCategories(u.ID) {
			if err := tx.CreateCategory(ctx, &c); err != nil {
				return fmt.Errorf("seed category %q: %w", c.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return AuthResponse{}, err
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID, log.FieldOperation, log.OpRegister)
	return s.issue(u)
}

// Login checks the credentials. Unknown email, wrong password and inactive
// users all produce the same error.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	if err := validation.Struct(req); err != nil {
		return AuthResponse{}, err
	}
	u, err := s.store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, core.ErrNotFound) {
		s.burnHash(req.Password)
		return AuthResponse{}, errInvalidCredentials
	}
	if err != nil {
		return AuthResponse{}, err
	}
	ok, err := s.hasher.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return AuthResponse{}, err
	}
	if !ok || !u.IsActive {
		s.logger.WarnContext(ctx, "Login rejected", log.FieldUserID, u.ID, log.FieldOperation, log.OpLogin)
		return AuthResponse{}, errInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, u.ID, now); err != nil {
		return AuthResponse{}, err
	}
	u.LastLoginAt = &now
	return s.issue(u)
}

// burnHash spends the time of a bcrypt comparison for unknown emails.
func (s *AuthService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.HashPassword("not-a-real-password")
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.CheckPassword(s.dummyHash, password)
	}
}

func (s *AuthService) issue(u core.User) (AuthResponse, error) {
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Token: token, TokenType: "Bearer", ExpiresAt: exp, User: u}, nil
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (core.User, error) {
	return s.Active(ctx, userID)
}

// Active loads the user a token was issued to. Erased and deactivated users
// are unauthorized even while their token has not expired.
func (s *AuthService) Active(ctx context.Context, userID string) (core.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("%w: user no longer exists", core.ErrUnauthorized)
	}
	if err != nil {
		return core.User{}, err
	}
	if !u.IsActive {
		return core.User{}, fmt.Errorf("%w: user is deactivated", core.ErrUnauthorized)
	}
	return u, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.CheckPassword(u.PasswordHash, req.CurrentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return core.FieldError("currentPassword", "is incorrect")
	}
	if u.PasswordHash, err = s.hasher.HashPassword(req.NewPassword); err != nil {
		return err
	}
	if err := s.store.UpdateUser(ctx, &u); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Password changed", log.FieldUserID, u.ID, log.FieldOperation, log.OpUpdate)
	return nil
}

// UpdateProfile changes name and email. The new email must be unused.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (core.User, error) {
	if err := validation.Struct(req); err != nil {
		return core.User{}, err
	}
	u, err := s.Me(ctx, userID)
	if err != nil {
		return core.User{}, err
	}
	if req.Email != "" {
		u.Email = req.Email
	}
	u.FirstName = strings.TrimSpace(req.FirstName)
	u.LastName = strings.TrimSpace(req.LastName)
	if err := s.store.UpdateUser(ctx, &u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return core.User{}, fmt.Errorf("%w: email is already registered", core.ErrConflict)
		}
		return core.User{}, err
	}
	return u, nil
}
