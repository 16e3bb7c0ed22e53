package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/supportdesk/crm"
)

// OrdersChannel is the NOTIFY channel announcing created orders. Payloads
// carry only the order key, see orderNotification.
const OrdersChannel = "orders"

// orderNotification is the NOTIFY payload. Listeners load the full row, so
// the payload stays far below the NOTIFY size limit whatever the order holds.
type orderNotification struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
}

func notificationPayload(o crm.Order) (string, error) {
	b, err := json.Marshal(orderNotification{ID: o.ID, WorkspaceID: o.WorkspaceID})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txContextKey struct{}

// WithTx returns a context whose store operations run inside tx. Order
// creation then uses a savepoint of tx instead of its own transaction.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// Store implements crm.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) db(ctx context.Context) DBTX {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchCompanies implements crm.Store.
func (s *Store) SearchCompanies(ctx context.Context, workspaceID, query string, limit int) ([]crm.Company, error) {
	q, err := crm.NormalizeQuery(query)
	if err != nil {
		return nil, err
	}

	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.db(ctx).Query(ctx, `
		SELECT id, workspace_id, name, domain, created_at
		FROM companies
		WHERE workspace_id = $1
		  AND name ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY (lower(name) = lower($3)) DESC, lower(name), id
		LIMIT $4
	`, workspaceID, escapeLike(q), q, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to search companies: %w", err)
	}
	defer rows.Close()

	companies := []crm.Company{}
	for rows.Next() {
		var c crm.Company
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Domain, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", err)
	}
	return companies, nil
}

// GetCompany implements crm.Store.
func (s *Store) GetCompany(ctx context.Context, workspaceID, id string) (*crm.Company, error) {
	var c crm.Company
	err := s.db(ctx).QueryRow(ctx, `
		SELECT id, workspace_id, name, domain, created_at
		FROM companies
		WHERE workspace_id = $1 AND id = $2
	`, workspaceID, id).Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Domain, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", id, crm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// CreateCompany implements crm.Store.
func (s *Store) CreateCompany(ctx context.Context, in crm.NewCompany) (*crm.Company, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	c := crm.Company{
		ID:          uuid.NewString(),
		WorkspaceID: in.WorkspaceID,
		Name:        strings.TrimSpace(in.Name),
		Domain:      strings.TrimSpace(in.Domain),
	}
	err := s.db(ctx).QueryRow(ctx, `
		INSERT INTO companies (id, workspace_id, name, domain, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.WorkspaceID, c.Name, c.Domain, s.now()).Scan(&c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return &c, nil
}

// CreateOrder implements crm.Store. The company check, insert and
// notification share one transaction.
func (s *Store) CreateOrder(ctx context.Context, in crm.NewOrder) (*crm.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var order *crm.Order
	err := pgx.BeginFunc(ctx, s.db(ctx), func(tx pgx.Tx) error {
		var companyName string
		err := tx.QueryRow(ctx, `
			SELECT name FROM companies WHERE workspace_id = $1 AND id = $2 FOR SHARE
		`, in.WorkspaceID, in.CompanyID).Scan(&companyName)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("company %s: %w", in.CompanyID, crm.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock company: %w", err)
		}

		o := crm.Order{
			ID:             uuid.NewString(),
			WorkspaceID:    in.WorkspaceID,
			CompanyID:      in.CompanyID,
			CompanyName:    companyName,
			Product:        in.Product,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
			Currency:       in.Currency,
			Notes:          in.Notes,
			Status:         in.Status,
			CreatedBy:      in.CreatedBy,
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO orders (id, workspace_id, company_id, product, quantity, unit_price_cents,
			                    currency, notes, status, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at
		`, o.ID, o.WorkspaceID, o.CompanyID, o.Product, o.Quantity, o.UnitPriceCents,
			o.Currency, o.Notes, string(o.Status), o.CreatedBy, s.now()).Scan(&o.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		payload, err := notificationPayload(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order notification: %w", err)
		}
		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", OrdersChannel, payload); err != nil {
			return fmt.Errorf("failed to notify order: %w", err)
		}

		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

const orderColumns = `
	o.id, o.workspace_id, o.company_id, c.name, o.product, o.quantity, o.unit_price_cents,
	o.currency, o.notes, o.status, o.created_by, o.created_at
`

func scanOrder(row pgx.Row) (*crm.Order, error) {
	var (
		o      crm.Order
		status string
	)
	if err := row.Scan(
		&o.ID, &o.WorkspaceID, &o.CompanyID, &o.CompanyName, &o.Product, &o.Quantity, &o.UnitPriceCents,
		&o.Currency, &o.Notes, &status, &o.CreatedBy, &o.CreatedAt,
	); err != nil {
		return nil, err
	}
	o.Status = crm.OrderStatus(status)
	return &o, nil
}

// GetOrder implements crm.Store.
func (s *Store) GetOrder(ctx context.Context, workspaceID, id string) (*crm.Order, error) {
	row := s.db(ctx).QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN companies c ON c.id = o.company_id
		WHERE o.workspace_id = $1 AND o.id = $2
	`, workspaceID, id)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, crm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// ListOrders implements crm.Store.
func (s *Store) ListOrders(ctx context.Context, workspaceID string, opts crm.ListOptions) ([]crm.Order, error) {
	opts = opts.Normalize()

	var companyID, status any
	if opts.CompanyID != "" {
		companyID = opts.CompanyID
	}
	if opts.Status != "" {
		status = string(opts.Status)
	}

	rows, err := s.db(ctx).Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN companies c ON c.id = o.company_id
		WHERE o.workspace_id = $1
		  AND ($2::text IS NULL OR o.company_id = $2)
		  AND ($3::text IS NULL OR o.status = $3)
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $4 OFFSET $5
	`, workspaceID, companyID, status, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []crm.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

var _ crm.Store = (*Store)(nil)
