package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jlpozo/DesafioFinalBack/internal/catalog"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/tx"
)

var _ catalog.Store = (*Store)(nil)

const categoryColumns = `id, name, description, created_at`

func scanCategory(row pgx.Row) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	return c, err
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	cs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Category, error) {
		return scanCategory(r)
	})
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []domain.Category{}
	}
	return cs, nil
}

func (s *Store) GetCategory(ctx context.Context, id domain.CategoryID) (domain.Category, error) {
	c, err := scanCategory(s.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=$1`, int64(id)))
	if err != nil {
		return domain.Category{}, notFound(err, catalog.ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products p WHERE p.category_id=$1 ORDER BY p.id`, int64(id))
	if err != nil {
		return domain.Category{}, err
	}
	c.Products, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Product, error) {
		return scanProduct(r)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if c.Products == nil {
		c.Products = []domain.Product{}
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	return s.pool.QueryRow(ctx, `INSERT INTO categories(name, description) VALUES ($1, $2) RETURNING id, created_at`,
		c.Name, c.Description).Scan(&c.ID, &c.CreatedAt)
}

func (s *Store) UpdateCategory(ctx context.Context, id domain.CategoryID, patch domain.CategoryPatch) (domain.Category, error) {
	sql, args := categoryPatch(patch).UpdateSQL("id", int64(id), categoryColumns)
	c, err := scanCategory(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return domain.Category{}, notFound(err, catalog.ErrNotFound)
	}
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id domain.CategoryID) error {
	return deleteByID(ctx, s, `DELETE FROM categories WHERE id=$1`, int64(id))
}

const productColumns = `p.id, p.name, p.price, p.brand, p.description, p.features, p.stock, p.image_url, p.category_id, p.created_at`

func scanProduct(row pgx.Row, extra ...any) (domain.Product, error) {
	var p domain.Product
	dest := append([]any{&p.ID, &p.Name, &p.Price, &p.Brand, &p.Description, &p.Features, &p.Stock, &p.ImageURL, &p.CategoryID, &p.CreatedAt}, extra...)
	err := row.Scan(dest...)
	return p, err
}

// scanProductWithCategory reads productColumns followed by the joined
// category's name and description.
func scanProductWithCategory(row pgx.Row) (domain.Product, error) {
	var c domain.Category
	p, err := scanProduct(row, &c.Name, &c.Description)
	if err != nil {
		return domain.Product{}, err
	}
	c.ID = p.CategoryID
	p.Category = &c
	return p, nil
}

const productWithCategory = `SELECT ` + productColumns + `, c.name, c.description
	FROM products p JOIN categories c ON c.id = p.category_id`

// ListProducts filters by category and a case-insensitive search over name,
// description and brand, ordered by name.
func (s *Store) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.CategoryID != 0 {
		args = append(args, int64(f.CategoryID))
		conds = append(conds, "p.category_id = $"+strconv.Itoa(len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := "$" + strconv.Itoa(len(args))
		conds = append(conds, "(p.name ILIKE "+n+" OR p.description ILIKE "+n+" OR p.brand ILIKE "+n+")")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products p`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	args = append(args, f.Page.Limit, f.Page.Offset())
	rows, err := s.pool.Query(ctx, productWithCategory+where+
		fmt.Sprintf(" ORDER BY p.name, p.id LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	ps, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Product, error) {
		return scanProductWithCategory(r)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan products: %w", err)
	}
	return ps, total, nil
}

func (s *Store) GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	p, err := scanProductWithCategory(s.pool.QueryRow(ctx, productWithCategory+` WHERE p.id=$1`, int64(id)))
	if err != nil {
		return domain.Product{}, notFound(err, catalog.ErrNotFound)
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	return s.pool.QueryRow(ctx, `INSERT INTO products(name, price, brand, description, features, stock, image_url, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`,
		p.Name, p.Price, p.Brand, p.Description, p.Features, p.Stock, p.ImageURL, int64(p.CategoryID)).
		Scan(&p.ID, &p.CreatedAt)
}

func (s *Store) UpdateProduct(ctx context.Context, id domain.ProductID, patch domain.ProductPatch) (domain.Product, error) {
	sql, args := productPatch(patch).UpdateSQL("id", int64(id), "")
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return domain.Product{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.Product{}, catalog.ErrNotFound
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	return deleteByID(ctx, s, `DELETE FROM products WHERE id=$1`, int64(id))
}

// deleteByID maps a foreign key violation to catalog.ErrInUse.
func deleteByID(ctx context.Context, s *Store, sql string, id int64) error {
	tag, err := s.pool.Exec(ctx, sql, id)
	if tx.IsForeignKeyViolation(err) {
		return catalog.ErrInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
