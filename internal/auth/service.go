package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ayush/scrollable/internal/apperr"
	"github.com/ayush/scrollable/internal/models"
	"github.com/ayush/scrollable/internal/store"
	"github.com/ayush/scrollable/internal/validate"
)

// UserStore defines the interface for user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	UserExists(ctx context.Context, email, username string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

const (
	msgUserExists         = "User with this email or username already exists"
	msgMissingCredentials = "Please provide email and password"
	msgBadCredentials     = "Invalid email or password"
)

// Service owns registration, login and user lookup.
type Service struct {
	users   UserStore
	tokens  *TokenIssuer
	revoker Revoker
	log     logrus.FieldLogger
}

func NewService(users UserStore, tokens *TokenIssuer, revoker Revoker, log logrus.FieldLogger) *Service {
	if revoker == nil {
		revoker = NoopRevoker{}
	}
	return &Service{users: users, tokens: tokens, revoker: revoker, log: log.WithField("component", "auth")}
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = normalizeEmail(req.Email)
	req.ProfilePicture = strings.TrimSpace(req.ProfilePicture)
	if err := validate.Struct(&req); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	exists, err := s.users.UserExists(ctx, req.Email, req.Username)
	if err != nil {
		return nil, fmt.Errorf("check user exists: %w", err)
	}
	if exists {
		return nil, apperr.Conflict(msgUserExists)
	}

	hash, _, err := HashIfChanged("", req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, &models.User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   hash,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict(msgUserExists)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", user.ID).Info("user registered")
	return &models.AuthResponse{User: user, Token: token}, nil
}

// Authenticate does not reveal whether the email or the password was wrong.
func (s *Service) Authenticate(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.Validation(msgMissingCredentials)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, req.Password) {
		return nil, apperr.Unauthorized(msgBadCredentials)
	}
	user.PasswordHash = ""

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{User: user, Token: token}, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}
	return user, nil
}

// Logout denylists the token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, id *Identity) error {
	if id == nil || id.TokenID == "" {
		return nil
	}
	if err := s.revoker.Revoke(ctx, id.TokenID, id.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
