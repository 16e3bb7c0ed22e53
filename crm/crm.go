package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when a company or order does not exist in the workspace.
	ErrNotFound = errors.New("crm: not found")

	// ErrInvalidOrder is returned when order input fails validation.
	ErrInvalidOrder = errors.New("crm: invalid order")

	// ErrEmptyQuery is returned when a company search has no usable query.
	ErrEmptyQuery = errors.New("crm: empty search query")

	// ErrInvalidCompany is returned when company input fails validation.
	ErrInvalidCompany = errors.New("crm: invalid company")
)

// DefaultCurrency is used when an order does not name a currency.
const DefaultCurrency = "USD"

// Order input bounds. MaxQuantity * MaxUnitPriceCents fits in an int64.
const (
	MaxQuantity       = 1_000_000
	MaxUnitPriceCents = 1_000_000_000_000
	MaxNotesLength    = 2000
)

// Company is a customer account within a workspace.
type Company struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses.
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is a purchase recorded for a company.
type Order struct {
	ID             string      `json:"id"`
	WorkspaceID    string      `json:"workspace_id"`
	CompanyID      string      `json:"company_id"`
	CompanyName    string      `json:"company_name"`
	Product        string      `json:"product"`
	Quantity       int         `json:"quantity"`
	UnitPriceCents int64       `json:"unit_price_cents"`
	Currency       string      `json:"currency"`
	Notes          string      `json:"notes,omitempty"`
	Status         OrderStatus `json:"status"`
	CreatedBy      string      `json:"created_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TotalCents returns quantity times unit price.
func (o Order) TotalCents() int64 { return int64(o.Quantity) * o.UnitPriceCents }

// NewCompany is the input for creating a company.
type NewCompany struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Domain      string `json:"domain,omitempty"`
}

// Validate checks required fields.
func (c NewCompany) Validate() error {
	if strings.TrimSpace(c.WorkspaceID) == "" {
		return fmt.Errorf("%w: workspace_id is required", ErrInvalidCompany)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCompany)
	}
	return nil
}

// NewOrder is the input for creating an order.
type NewOrder struct {
	WorkspaceID    string      `json:"workspace_id"`
	CompanyID      string      `json:"company_id"`
	Product        string      `json:"product"`
	Quantity       int         `json:"quantity"`
	UnitPriceCents int64       `json:"unit_price_cents"`
	Currency       string      `json:"currency,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	Status         OrderStatus `json:"status,omitempty"`
	CreatedBy      string      `json:"created_by,omitempty"`
}

// Validate checks the input and fills defaults (currency, status).
func (o *NewOrder) Validate() error {
	o.Product = strings.TrimSpace(o.Product)
	o.Currency = strings.ToUpper(strings.TrimSpace(o.Currency))

	switch {
	case strings.TrimSpace(o.WorkspaceID) == "":
		return fmt.Errorf("%w: workspace_id is required", ErrInvalidOrder)
	case strings.TrimSpace(o.CompanyID) == "":
		return fmt.Errorf("%w: company_id is required", ErrInvalidOrder)
	case o.Product == "":
		return fmt.Errorf("%w: product is required", ErrInvalidOrder)
	case o.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidOrder)
	case o.Quantity > MaxQuantity:
		return fmt.Errorf("%w: quantity must be at most %d", ErrInvalidOrder, MaxQuantity)
	case o.UnitPriceCents < 0:
		return fmt.Errorf("%w: unit_price_cents must not be negative", ErrInvalidOrder)
	case o.UnitPriceCents > MaxUnitPriceCents:
		return fmt.Errorf("%w: unit_price_cents must be at most %d", ErrInvalidOrder, int64(MaxUnitPriceCents))
	case utf8.RuneCountInString(o.Notes) > MaxNotesLength:
		return fmt.Errorf("%w: notes must be at most %d characters", ErrInvalidOrder, MaxNotesLength)
	}

	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if len(o.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrInvalidOrder)
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, o.Status)
	}
	return nil
}

// ListOptions filter and page ListOrders.
type ListOptions struct {
	CompanyID string
	Status    OrderStatus
	Limit     int
	Offset    int
}

// DefaultListLimit caps ListOrders when no limit is given.
const DefaultListLimit = 50

// Normalize applies the default limit.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 || o.Limit > 500 {
		o.Limit = DefaultListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Store persists companies and orders.
type Store interface {
	// SearchCompanies performs a case-insensitive substring match on company
	// names within a workspace. Exact name matches come first, then matches
	// ordered by name.
	SearchCompanies(ctx context.Context, workspaceID, query string, limit int) ([]Company, error)
	GetCompany(ctx context.Context, workspaceID, id string) (*Company, error)
	CreateCompany(ctx context.Context, in NewCompany) (*Company, error)

	// CreateOrder validates in, verifies the company belongs to the
	// workspace and inserts the order.
	CreateOrder(ctx context.Context, in NewOrder) (*Order, error)
	GetOrder(ctx context.Context, workspaceID, id string) (*Order, error)
	// ListOrders returns orders newest first.
	ListOrders(ctx context.Context, workspaceID string, opts ListOptions) ([]Order, error)
}

// NormalizeQuery trims a search query and rejects empty ones.
func NormalizeQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return q, nil
}
