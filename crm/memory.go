package crm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OrderHook observes orders created by a MemoryStore, standing in for the
// database notification the Postgres store emits.
type OrderHook func(Order)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	companies map[string]Company
	orders    map[string]Order
	hooks     []OrderHook
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies: map[string]Company{},
		orders:    map[string]Order{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnOrderCreated registers a hook invoked after each successful CreateOrder.
func (s *MemoryStore) OnOrderCreated(h OrderHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// SearchCompanies implements Store.
func (s *MemoryStore) SearchCompanies(_ context.Context, workspaceID, query string, limit int) ([]Company, error) {
	q, err := NormalizeQuery(query)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(q)

	s.mu.RLock()
	var matches []Company
	for _, c := range s.companies {
		if c.WorkspaceID != workspaceID {
			continue
		}
		if strings.Contains(strings.ToLower(c.Name), needle) {
			matches = append(matches, c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		ei := strings.EqualFold(matches[i].Name, q)
		ej := strings.EqualFold(matches[j].Name, q)
		if ei != ej {
			return ei
		}
		li, lj := strings.ToLower(matches[i].Name), strings.ToLower(matches[j].Name)
		if li != lj {
			return li < lj
		}
		return matches[i].ID < matches[j].ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// GetCompany implements Store.
func (s *MemoryStore) GetCompany(_ context.Context, workspaceID, id string) (*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("company %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

// CreateCompany implements Store.
func (s *MemoryStore) CreateCompany(_ context.Context, in NewCompany) (*Company, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c := Company{
		ID:          uuid.NewString(),
		WorkspaceID: in.WorkspaceID,
		Name:        strings.TrimSpace(in.Name),
		Domain:      strings.TrimSpace(in.Domain),
		CreatedAt:   s.now(),
	}
	s.mu.Lock()
	s.companies[c.ID] = c
	s.mu.Unlock()
	return &c, nil
}

// CreateOrder implements Store.
func (s *MemoryStore) CreateOrder(_ context.Context, in NewOrder) (*Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	c, ok := s.companies[in.CompanyID]
	if !ok || c.WorkspaceID != in.WorkspaceID {
		s.mu.Unlock()
		return nil, fmt.Errorf("company %s: %w", in.CompanyID, ErrNotFound)
	}
	o := Order{
		ID:             uuid.NewString(),
		WorkspaceID:    in.WorkspaceID,
		CompanyID:      c.ID,
		CompanyName:    c.Name,
		Product:        in.Product,
		Quantity:       in.Quantity,
		UnitPriceCents: in.UnitPriceCents,
		Currency:       in.Currency,
		Notes:          in.Notes,
		Status:         in.Status,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      s.now(),
	}
	s.orders[o.ID] = o
	hooks := append([]OrderHook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(o)
	}
	return &o, nil
}

// GetOrder implements Store.
func (s *MemoryStore) GetOrder(_ context.Context, workspaceID, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok || o.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return &o, nil
}

// ListOrders implements Store.
func (s *MemoryStore) ListOrders(_ context.Context, workspaceID string, opts ListOptions) ([]Order, error) {
	opts = opts.Normalize()

	s.mu.RLock()
	var out []Order
	for _, o := range s.orders {
		if o.WorkspaceID != workspaceID {
			continue
		}
		if opts.CompanyID != "" && o.CompanyID != opts.CompanyID {
			continue
		}
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		out = append(out, o)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if opts.Offset >= len(out) {
		return []Order{}, nil
	}
	out = out[opts.Offset:]
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
