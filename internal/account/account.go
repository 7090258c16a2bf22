// Package account handles registration, login and profile changes.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/auth"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

const (
	ErrMsgBadCredentials = "invalid credentials"
	ErrMsgEmailTaken     = "email is already registered"
	ErrMsgInvalidEmail   = "invalid email format"
	minPasswordLen       = 6
	maxPasswordLen       = 72 // bcrypt limit
)

type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateUser(ctx context.Context, id domain.UserID, patch domain.UserPatch) (domain.User, error)
}

type TokenIssuer interface {
	Issue(u domain.User) (string, time.Time, error)
}

type Service struct {
	store      Store
	tokens     TokenIssuer
	adminEmail string
}

type Option func(*Service)

// WithAdminEmail makes the account registered under email an administrator.
func WithAdminEmail(email string) Option {
	return func(s *Service) { s.adminEmail = strings.ToLower(strings.TrimSpace(email)) }
}

func NewService(store Store, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{store: store, tokens: tokens}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

// Register creates a user. Only the configured admin email registers as an
// administrator. Emails are compared lower-cased.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Email == "" || in.Password == "" {
		return domain.User{}, apperr.New(apperr.KindInvalidInput, "name, email and password are required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if err := checkPassword(in.Password); err != nil {
		return domain.User{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{Name: name, Email: email, Phone: strings.TrimSpace(in.Phone), PasswordHash: hash}
	u.Admin = s.adminEmail != "" && email == s.adminEmail
	if err := s.store.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return domain.User{}, apperr.New(apperr.KindConflict, ErrMsgEmailTaken).WithKey(email)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login checks the password and issues a token. Unknown email and wrong
// password fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return Session{}, apperr.New(apperr.KindUnauthorized, ErrMsgBadCredentials)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get user by email: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return Session{}, apperr.New(apperr.KindUnauthorized, ErrMsgBadCredentials)
	}
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) Profile(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, userErr(id, err)
	}
	return u, nil
}

type ProfileUpdate struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Password *string `json:"password"`
}

func (s *Service) UpdateProfile(ctx context.Context, id domain.UserID, in ProfileUpdate) (domain.User, error) {
	var patch domain.UserPatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.User{}, apperr.New(apperr.KindInvalidInput, "name cannot be empty")
		}
		patch.Name = &name
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return domain.User{}, err
		}
		patch.Email = &email
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		patch.Phone = &phone
	}
	if in.Password != nil {
		if err := checkPassword(*in.Password); err != nil {
			return domain.User{}, err
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return domain.User{}, err
		}
		patch.PasswordHash = &hash
	}
	if patch.Empty() {
		return domain.User{}, apperr.New(apperr.KindInvalidInput, "no fields to update")
	}

	u, err := s.store.UpdateUser(ctx, id, patch)
	if errors.Is(err, ErrEmailTaken) {
		return domain.User{}, apperr.New(apperr.KindConflict, ErrMsgEmailTaken).WithKey(*patch.Email)
	}
	if err != nil {
		return domain.User{}, userErr(id, err)
	}
	return u, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", apperr.New(apperr.KindInvalidInput, ErrMsgInvalidEmail)
	}
	return email, nil
}

func userErr(id domain.UserID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.New(apperr.KindNotFound, "user not found").WithKey(id)
	}
	return fmt.Errorf("user %d: %w", id, err)
}

func checkPassword(pw string) error {
	switch {
	case len(pw) < minPasswordLen:
		return apperr.Newf(apperr.KindInvalidInput, "password must be at least %d characters", minPasswordLen)
	case len(pw) > maxPasswordLen:
		return apperr.Newf(apperr.KindInvalidInput, "password must be at most %d bytes", maxPasswordLen)
	}
	return nil
}
