package domain

import "time"

type User struct {
	ID           UserID    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Admin        bool      `json:"admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Caller is the identity the user acts as once authenticated.
func (u User) Caller() Caller {
	return Caller{ID: u.ID, Admin: u.Admin}
}

type UserPatch struct {
	Name         *string
	Email        *string
	Phone        *string
	PasswordHash *string
}

func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.PasswordHash == nil
}
