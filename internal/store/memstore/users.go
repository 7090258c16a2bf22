package memstore

import (
	"context"

	"github.com/jlpozo/DesafioFinalBack/internal/account"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(u.Email, 0) {
		return account.ErrEmailTaken
	}
	s.st.nextUser++
	u.ID = domain.UserID(s.st.nextUser)
	u.CreatedAt = s.now()
	s.st.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return domain.User{}, account.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, account.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, id domain.UserID, patch domain.UserPatch) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return domain.User{}, account.ErrNotFound
	}
	if patch.Email != nil && s.emailTaken(*patch.Email, id) {
		return domain.User{}, account.ErrEmailTaken
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Phone != nil {
		u.Phone = *patch.Phone
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	s.st.users[id] = u
	return u, nil
}

// SetAdmin grants or revokes the administrator flag. There is no API for
// this; it seeds tests and local setups.
func (s *Store) SetAdmin(id domain.UserID, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.st.users[id]; ok {
		u.Admin = admin
		s.st.users[id] = u
	}
}

func (s *Store) emailTaken(email string, except domain.UserID) bool {
	for _, u := range s.st.users {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}
