package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"usdqs-ledger/internal/domain"
	"usdqs-ledger/internal/repository"
)

// UserService describes user lifecycle operations.
type UserService interface {
	Load(ctx context.Context) error
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	Exists(ctx context.Context, username string) bool
}

type userService struct {
	users    repository.UserRepository
	hashCost int
	logger   *logrus.Logger
	now      func() time.Time

	mu     sync.RWMutex
	byName map[string]domain.User
	order  []string
}

// NewUserService keeps the full user set in memory; call Load once at startup.
// A hashCost of zero selects bcrypt.DefaultCost.
func NewUserService(users repository.UserRepository, hashCost int, logger *logrus.Logger) UserService {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{
		users:    users,
		hashCost: hashCost,
		logger:   logger,
		now:      time.Now,
		byName:   make(map[string]domain.User),
	}
}

func (s *userService) Load(ctx context.Context) error {
	users, err := s.users.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	byName := make(map[string]domain.User, len(users))
	order := make([]string, 0, len(users))
	for _, u := range users {
		if _, dup := byName[u.Username]; dup {
			return fmt.Errorf("load users: duplicate username %q", u.Username)
		}
		byName[u.Username] = u
		order = append(order, u.Username)
	}

	s.mu.Lock()
	s.byName = byName
	s.order = order
	s.mu.Unlock()

	s.logger.Infof("loaded %d users", len(users))
	return nil
}

func (s *userService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || username == domain.SystemCounterparty {
		return nil, ErrInvalidUsername
	}
	if password == "" {
		return nil, ErrInvalidPassword
	}

	s.mu.RLock()
	_, taken := s.byName[username]
	s.mu.RUnlock()
	if taken {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrInvalidPassword
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[username]; taken {
		return nil, ErrUsernameTaken
	}

	next := make([]domain.User, 0, len(s.order)+1)
	for _, name := range s.order {
		next = append(next, s.byName[name])
	}
	next = append(next, user)

	if err := s.users.SaveUsers(ctx, next); err != nil {
		s.logger.WithError(err).WithField("username", username).Error("persist new user")
		return nil, fmt.Errorf("%w: save users: %w", ErrPersistence, err)
	}

	s.byName[username] = user
	s.order = append(s.order, username)
	s.logger.WithField("username", username).Info("user registered")

	return sanitizeUser(&user), nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)

	s.mu.RLock()
	user, ok := s.byName[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}

	return sanitizeUser(&user), nil
}

func (s *userService) Exists(ctx context.Context, username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[username]
	return ok
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	}
}
