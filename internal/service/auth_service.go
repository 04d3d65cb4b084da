package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"caterchat/internal/domain"
	"caterchat/internal/security"
)

// AuthService handles registration, login, logout and bearer token lookup.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher

	// RememberMeTTL is the token lifetime for logins with RememberMe set.
	// Zero keeps the default lifetime.
	RememberMeTTL time.Duration
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
	}
}

type RegisterInput struct {
	Username string
	Email    *string
	FullName string
	Password string
}

type LoginInput struct {
	Username   string
	Password   string
	RememberMe bool
}

type TokenResponse struct {
	AccessToken string
	TokenType   string
	User        *domain.User
}

// Register creates a customer account. Staff accounts are provisioned with
// CreateUser from the command line.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	return s.CreateUser(ctx, in, domain.RoleCustomer)
}

func (s *AuthService) CreateUser(ctx context.Context, in RegisterInput, role domain.Role) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	if err := s.hash.Validate(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, domain.ErrConflict
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	if in.Email != nil && *in.Email == "" {
		in.Email = nil
	}
	if in.Email != nil {
		if _, err := s.users.GetByEmail(ctx, *in.Email); err == nil {
			return nil, domain.ErrConflict
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		}
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:       in.Username,
		Email:          in.Email,
		FullName:       strings.TrimSpace(in.FullName),
		Role:           role,
		HashedPassword: hashed,
		IsActive:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, in.Username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.ErrUnauthorized
	}
	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, domain.ErrUnauthorized
	}

	var token string
	if in.RememberMe && s.RememberMeTTL > 0 {
		token, err = s.tokens.CreateWithTTL(user.Username, s.RememberMeTTL)
	} else {
		token, err = s.tokens.CreateForUser(user.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	return s.users.SetOnlineStatus(ctx, userID, false)
}

// UserFromToken resolves a bearer token to an active user. Every failure is
// reported as domain.ErrUnauthorized.
func (s *AuthService) UserFromToken(ctx context.Context, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrUnauthorized
	}
	username, err := s.tokens.Subject(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}
