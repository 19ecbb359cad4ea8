package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"r2r/internal/core"
	"r2r/internal/store"
)

const minPasswordLength = 8

// TokenIssuer signs session tokens for a user id.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Session is returned on signup and login.
type Session struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

type AccountService struct {
	users  store.UserStore
	tokens TokenIssuer
	locks  *keyedMutex
	cost   int
	now    func() time.Time

	onHousehold ChangeHook
}

func NewAccountService(users store.UserStore, tokens TokenIssuer) *AccountService {
	return &AccountService{
		users:  users,
		tokens: tokens,
		locks:  newKeyedMutex(),
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// OnHouseholdChange registers a hook run after a user joins or leaves a
// household, with the household concerned.
func (s *AccountService) OnHouseholdChange(hook ChangeHook) {
	s.onHousehold = hook
}

// Signup creates a user with a bcrypt password hash. The streak starts at
// one for the signup day.
func (s *AccountService) Signup(ctx context.Context, name, email, password string) (Session, error) {
	email = core.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return Session{}, &core.ValidationError{Field: "email", Err: core.ErrEmptyEmail}
	}
	if len(password) < minPasswordLength {
		return Session{}, &core.ValidationError{Field: "password", Err: core.ErrWeakPassword}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	u := core.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	u.Touch(s.now())

	if err := s.users.CreateUser(ctx, u); err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User signed up", "user_id", u.ID)
	return s.session(u)
}

// Login checks the password and counts the day toward the streak.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, core.ErrInvalidCredentials
	}

	u, err = s.touch(ctx, u.ID)
	if err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// Me returns the user, recording the visit toward the daily streak.
func (s *AccountService) Me(ctx context.Context, userID string) (core.User, error) {
	return s.touch(ctx, userID)
}

// JoinHousehold sets the user's single household membership.
func (s *AccountService) JoinHousehold(ctx context.Context, userID, householdID string) (core.User, error) {
	householdID = strings.TrimSpace(householdID)
	if householdID == "" {
		return core.User{}, &core.ValidationError{Field: "householdId", Err: errors.New("household id is required")}
	}
	u, err := s.update(ctx, userID, func(u *core.User) bool {
		if u.HouseholdID == householdID {
			return false
		}
		u.HouseholdID = householdID
		return true
	})
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User joined household", "user_id", userID, "household_id", householdID)
	s.householdChanged(userID, householdID)
	return u, nil
}

// LeaveHousehold clears the membership. Transactions already tagged with
// the household keep their tag.
func (s *AccountService) LeaveHousehold(ctx context.Context, userID string) (core.User, error) {
	var left string
	u, err := s.update(ctx, userID, func(u *core.User) bool {
		if u.HouseholdID == "" {
			return false
		}
		left, u.HouseholdID = u.HouseholdID, ""
		return true
	})
	if err != nil {
		return core.User{}, err
	}
	if left != "" {
		slog.InfoContext(ctx, "User left household", "user_id", userID, "household_id", left)
		s.householdChanged(userID, left)
	}
	return u, nil
}

func (s *AccountService) householdChanged(userID, householdID string) {
	if s.onHousehold != nil {
		s.onHousehold(userID, householdID)
	}
}

func (s *AccountService) touch(ctx context.Context, userID string) (core.User, error) {
	now := s.now()
	return s.update(ctx, userID, func(u *core.User) bool { return u.Touch(now) })
}

func (s *AccountService) update(ctx context.Context, userID string, apply func(*core.User) bool) (core.User, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return core.User{}, fmt.Errorf("load user: %w", err)
	}
	if !apply(&u) {
		return u, nil
	}
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func (s *AccountService) session(u core.User) (Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: u}, nil
}
