package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/preop/intake/internal/platform/auth"
)

const minPasswordLength = 8

// dummyHash keeps the cost of a login for an unknown user close to that of
// a wrong password.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z5EoH6Mm8U0C8gN1t5fmQdVK"

type LoginResult struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

type Service struct {
	repo   Repository
	tokens *auth.TokenIssuer
	logger zerolog.Logger
}

func NewService(repo Repository, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, logger: logger.With().Str("component", "staff").Logger()}
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		auth.CheckPassword(password, dummyHash)
		s.logger.Warn().Str("username", username).Msg("login for unknown user")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		s.logger.Warn().Str("username", username).Msg("login with wrong password")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("username", username).Msg("staff signed in")
	return &LoginResult{Token: token, TokenType: "Bearer", ExpiresAt: exp, User: u}, nil
}

func (s *Service) Create(ctx context.Context, in NewUser) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalid)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Username:     in.Username,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		IsAdmin:      in.IsAdmin || in.IsSuperAdmin,
		IsSuperAdmin: in.IsSuperAdmin,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("username", u.Username).Bool("admin", u.IsAdmin).Msg("staff account created")
	return u, nil
}

// EnsureAdmin creates the bootstrap administrator when it does not exist
// yet. An empty username or password disables the bootstrap.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		s.logger.Debug().Msg("admin bootstrap disabled")
		return nil
	}
	_, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	_, err = s.Create(ctx, NewUser{Username: username, Password: password, Name: "관리자", IsAdmin: true, IsSuperAdmin: true})
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}
