package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dom/shared-calendar/internal/config"
	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidToken = errors.New("invalid token")

type UserService struct {
	userRepo repository.UserRepository
	cfg      *config.Config
}

func NewUserService(userRepo repository.UserRepository, cfg *config.Config) *UserService {
	return &UserService{
		userRepo: userRepo,
		cfg:      cfg,
	}
}

// NormalizeUsername trims the name and checks its length.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", domain.ErrUsernameRequired
	}
	n := utf8.RuneCountInString(username)
	if n < domain.MinUsernameLength || n > domain.MaxUsernameLength {
		return "", domain.ErrUsernameLength
	}
	return username, nil
}

// CheckUsername reports whether username can be registered, with a message
// suitable for display.
func (s *UserService) CheckUsername(ctx context.Context, username string) (bool, string, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return false, err.Error(), nil
	}

	taken, err := s.usernameTaken(ctx, name, uuid.Nil)
	if err != nil {
		return false, "", err
	}
	if taken {
		return false, domain.ErrUsernameTaken.Message, nil
	}
	return true, "username is available", nil
}

func (s *UserService) Register(ctx context.Context, username string) (*domain.User, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	taken, err := s.usernameTaken(ctx, name, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrUsernameTaken
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     name,
		SessionToken: newSessionToken(),
		CreatedAt:    now,
		LastActive:   now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, domain.Internal("create user", err)
	}
	return user, nil
}

// Login resumes an existing identity by name and refreshes its activity time.
func (s *UserService) Login(ctx context.Context, username string) (*domain.User, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, name)
	if err != nil {
		return nil, lookupErr(err, domain.ErrUserNotFound, "load user")
	}
	return s.touch(ctx, user)
}

// CreateOrResume renames the user bound to sessionToken, or registers a new
// user when the token is empty or unknown.
func (s *UserService) CreateOrResume(ctx context.Context, sessionToken, username string) (*domain.User, error) {
	if sessionToken == "" {
		return s.Register(ctx, username)
	}

	user, err := s.userRepo.GetBySessionToken(ctx, sessionToken)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.Register(ctx, username)
	}
	if err != nil {
		return nil, domain.Internal("load user", err)
	}

	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	taken, err := s.usernameTaken(ctx, name, user.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrUsernameTaken
	}

	user.Username = name
	return s.touch(ctx, user)
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, domain.ErrUserNotFound, "load user")
	}
	return user, nil
}

func (s *UserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	user, err := s.userRepo.GetBySessionToken(ctx, token)
	if err != nil {
		return nil, lookupErr(err, domain.ErrUserNotFound, "load user")
	}
	return user, nil
}

func (s *UserService) IssueToken(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"name": user.Username,
		"exp":  time.Now().Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// ValidateToken checks a bearer token and returns the user id it was issued
// for.
func (s *UserService) ValidateToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

func (s *UserService) touch(ctx context.Context, user *domain.User) (*domain.User, error) {
	user.LastActive = time.Now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, domain.Internal("update user", err)
	}
	return user, nil
}

func (s *UserService) usernameTaken(ctx context.Context, name string, self uuid.UUID) (bool, error) {
	existing, err := s.userRepo.GetByUsername(ctx, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, domain.Internal("check username", err)
	}
	return existing.ID != self, nil
}

func newSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}
