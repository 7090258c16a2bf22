package memstore

import (
	"context"
	"sort"

	"github.com/jlpozo/DesafioFinalBack/internal/catalog"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

func (s *Store) ListCategories(context.Context) ([]domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Category, 0, len(s.st.categories))
	for _, c := range s.st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id domain.CategoryID) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.categories[id]
	if !ok {
		return domain.Category{}, catalog.ErrNotFound
	}
	c.Products = []domain.Product{}
	for _, p := range s.st.products {
		if p.CategoryID == id {
			c.Products = append(c.Products, p)
		}
	}
	sort.Slice(c.Products, func(i, j int) bool { return c.Products[i].ID < c.Products[j].ID })
	return c, nil
}

func (s *Store) CreateCategory(_ context.Context, c *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.nextCategory++
	c.ID = domain.CategoryID(s.st.nextCategory)
	c.CreatedAt = s.now()
	s.st.categories[c.ID] = *c
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, id domain.CategoryID, patch domain.CategoryPatch) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.categories[id]
	if !ok {
		return domain.Category{}, catalog.ErrNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	s.st.categories[id] = c
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, id domain.CategoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.categories[id]; !ok {
		return catalog.ErrNotFound
	}
	for _, p := range s.st.products {
		if p.CategoryID == id {
			return catalog.ErrInUse
		}
	}
	delete(s.st.categories, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, f domain.ProductFilter) ([]domain.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Product
	for _, p := range s.st.products {
		if f.CategoryID != 0 && p.CategoryID != f.CategoryID {
			continue
		}
		if f.Search != "" && !containsFold(p.Name, f.Search) && !containsFold(p.Description, f.Search) && !containsFold(p.Brand, f.Search) {
			continue
		}
		matched = append(matched, s.withCategory(p))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})
	return append([]domain.Product(nil), window(matched, f.Page)...), len(matched), nil
}

func (s *Store) GetProduct(_ context.Context, id domain.ProductID) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	if !ok {
		return domain.Product{}, catalog.ErrNotFound
	}
	return s.withCategory(p), nil
}

func (s *Store) CreateProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.nextProduct++
	p.ID = domain.ProductID(s.st.nextProduct)
	p.CreatedAt = s.now()
	p.Category = nil
	s.st.products[p.ID] = *p
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, id domain.ProductID, patch domain.ProductPatch) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	if !ok {
		return domain.Product{}, catalog.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Brand != nil {
		p.Brand = *patch.Brand
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Features != nil {
		p.Features = *patch.Features
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.CategoryID != nil {
		p.CategoryID = *patch.CategoryID
	}
	s.st.products[id] = p
	return s.withCategory(p), nil
}

func (s *Store) DeleteProduct(_ context.Context, id domain.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.products[id]; !ok {
		return catalog.ErrNotFound
	}
	for _, ls := range s.st.lines {
		if _, ok := ls[id]; ok {
			return catalog.ErrInUse
		}
	}
	delete(s.st.products, id)
	return nil
}

func (s *Store) withCategory(p domain.Product) domain.Product {
	if c, ok := s.st.categories[p.CategoryID]; ok {
		p.Category = &domain.Category{ID: c.ID, Name: c.Name, Description: c.Description}
	}
	return p
}
