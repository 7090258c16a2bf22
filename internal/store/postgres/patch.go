package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

// Patch is an ordered set of column assignments for one table. Only columns
// in the table's whitelist may be set, so no caller-supplied text ever
// reaches the statement.
type Patch struct {
	table   string
	allowed map[string]struct{}
	cols    []string
	vals    []any
}

func NewPatch(table string, columns ...string) *Patch {
	allowed := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		allowed[c] = struct{}{}
	}
	return &Patch{table: table, allowed: allowed}
}

// Set assigns col. Setting a column twice keeps the last value.
func (p *Patch) Set(col string, v any) *Patch {
	if _, ok := p.allowed[col]; !ok {
		panic(fmt.Sprintf("postgres: column %q is not patchable on %s", col, p.table))
	}
	for i, c := range p.cols {
		if c == col {
			p.vals[i] = v
			return p
		}
	}
	p.cols = append(p.cols, col)
	p.vals = append(p.vals, v)
	return p
}

func (p *Patch) Empty() bool {
	return len(p.cols) == 0
}

// UpdateSQL renders "UPDATE table SET a = $1, b = $2 WHERE idCol = $3" with
// an optional RETURNING clause, plus its arguments.
func (p *Patch) UpdateSQL(idCol string, id any, returning string) (string, []any) {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(p.table)
	b.WriteString(" SET ")
	args := make([]any, 0, len(p.vals)+1)
	for i, c := range p.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		args = append(args, p.vals[i])
		b.WriteString(c)
		b.WriteString(" = $")
		b.WriteString(strconv.Itoa(len(args)))
	}
	args = append(args, id)
	b.WriteString(" WHERE ")
	b.WriteString(idCol)
	b.WriteString(" = $")
	b.WriteString(strconv.Itoa(len(args)))
	if returning != "" {
		b.WriteString(" RETURNING ")
		b.WriteString(returning)
	}
	return b.String(), args
}

func newCategoryPatch() *Patch {
	return NewPatch("categories", "name", "description")
}

func newProductPatch() *Patch {
	return NewPatch("products", "name", "price", "brand", "description", "features", "stock", "image_url", "category_id")
}

func newUserPatch() *Patch {
	return NewPatch("users", "name", "email", "phone", "password_hash")
}

func categoryPatch(in domain.CategoryPatch) *Patch {
	p := newCategoryPatch()
	if in.Name != nil {
		p.Set("name", *in.Name)
	}
	if in.Description != nil {
		p.Set("description", *in.Description)
	}
	return p
}

func productPatch(in domain.ProductPatch) *Patch {
	p := newProductPatch()
	if in.Name != nil {
		p.Set("name", *in.Name)
	}
	if in.Price != nil {
		p.Set("price", *in.Price)
	}
	if in.Brand != nil {
		p.Set("brand", *in.Brand)
	}
	if in.Description != nil {
		p.Set("description", *in.Description)
	}
	if in.Features != nil {
		p.Set("features", *in.Features)
	}
	if in.Stock != nil {
		p.Set("stock", *in.Stock)
	}
	if in.ImageURL != nil {
		p.Set("image_url", *in.ImageURL)
	}
	if in.CategoryID != nil {
		p.Set("category_id", int64(*in.CategoryID))
	}
	return p
}

func userPatch(in domain.UserPatch) *Patch {
	p := newUserPatch()
	if in.Name != nil {
		p.Set("name", *in.Name)
	}
	if in.Email != nil {
		p.Set("email", *in.Email)
	}
	if in.Phone != nil {
		p.Set("phone", *in.Phone)
	}
	if in.PasswordHash != nil {
		p.Set("password_hash", *in.PasswordHash)
	}
	return p
}
