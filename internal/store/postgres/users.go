package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jlpozo/DesafioFinalBack/internal/account"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/tx"
)

var _ account.Store = (*Store)(nil)

const userColumns = `id, name, email, phone, password_hash, is_admin, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Admin, &u.CreatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO users(name, email, phone, password_hash, is_admin)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		u.Name, u.Email, u.Phone, u.PasswordHash, u.Admin).Scan(&u.ID, &u.CreatedAt)
	if tx.IsUniqueViolation(err) {
		return account.ErrEmailTaken
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, int64(id)))
	if err != nil {
		return domain.User{}, notFound(err, account.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
	if err != nil {
		return domain.User{}, notFound(err, account.ErrNotFound)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id domain.UserID, patch domain.UserPatch) (domain.User, error) {
	sql, args := userPatch(patch).UpdateSQL("id", int64(id), userColumns)
	u, err := scanUser(s.pool.QueryRow(ctx, sql, args...))
	if tx.IsUniqueViolation(err) {
		return domain.User{}, account.ErrEmailTaken
	}
	if err != nil {
		return domain.User{}, notFound(err, account.ErrNotFound)
	}
	return u, nil
}

// SetAdmin grants or revokes the administrator flag by email. The API has no
// route for this; cmd/storefront-api uses it to seed ADMIN_EMAIL.
func (s *Store) SetAdmin(ctx context.Context, email string, admin bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_admin=$2 WHERE email=$1`, email, admin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}
