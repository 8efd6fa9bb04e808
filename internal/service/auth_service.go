package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/auth"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/repository"
)

type AuthService struct {
	userRepo       repository.UserRepository
	tokens         *auth.Tokens
	sessionTTL     time.Duration
	socketTokenTTL time.Duration
}

func NewAuthService(userRepo repository.UserRepository, tokens *auth.Tokens, sessionTTL, socketTokenTTL time.Duration) *AuthService {
	return &AuthService{
		userRepo:       userRepo,
		tokens:         tokens,
		sessionTTL:     sessionTTL,
		socketTokenTTL: socketTokenTTL,
	}
}

type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

type SocketToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(input.Email)

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrEmailTaken
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	token, _, err := s.tokens.Issue(user.ID, auth.AudienceAPI, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidCreds
	}

	if !auth.VerifyPassword(input.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCreds
	}

	token, _, err := s.tokens.Issue(user.ID, auth.AudienceAPI, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

// SocketToken mints the short-lived token the websocket handshake expects.
func (s *AuthService) SocketToken(ctx context.Context, userID uuid.UUID) (*SocketToken, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotAuthenticated
	}

	token, expires, err := s.tokens.Issue(userID, auth.AudienceSocket, s.socketTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("generating socket token: %w", err)
	}
	return &SocketToken{Token: token, ExpiresAt: expires}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
