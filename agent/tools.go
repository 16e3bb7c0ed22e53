package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/crm"
	"github.com/hupe1980/supportdesk/tool"
)

// Tool names bound to the model.
const (
	FindCompanyTool = "find_company"
	CreateOrderTool = "create_order"
)

// LastOrderKey holds the id of the most recent order created in a run.
const LastOrderKey = "last_order_id"

// Match outcomes reported by find_company.
const (
	MatchUnique    = "unique"
	MatchExact     = "exact"
	MatchAmbiguous = "ambiguous"
)

type findCompanyArgs struct {
	Query string `json:"query" description:"Company name or a fragment of it, as written by the user"`
}

// CompanyCandidate is one company returned by find_company.
type CompanyCandidate struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// CompanyMatches is the find_company tool output.
type CompanyMatches struct {
	Query      string             `json:"query"`
	Match      string             `json:"match"`
	Candidates []CompanyCandidate `json:"candidates"`
	Truncated  bool               `json:"truncated,omitempty"`
	Guidance   string             `json:"guidance"`
}

type createOrderArgs struct {
	CompanyID      string `json:"company_id" description:"Id of the customer company as returned by find_company"`
	Product        string `json:"product" description:"Product or service being ordered"`
	Quantity       int    `json:"quantity" description:"Number of units" minimum:"1" maximum:"1000000"`
	UnitPriceCents *int64 `json:"unit_price_cents,omitempty" description:"Price per unit in the smallest currency unit (cents)" minimum:"0" maximum:"1000000000000"`
	Currency       string `json:"currency,omitempty" description:"ISO 4217 currency code, defaults to USD"`
	Notes          string `json:"notes,omitempty" description:"Free-form notes for the order" maxLength:"2000"`
}

// OrderReceipt is the create_order tool output. Message starts with the
// termination marker.
type OrderReceipt struct {
	Message string    `json:"message"`
	Order   crm.Order `json:"order"`
}

func newFindCompanyTool(store crm.Store, limit int) tool.Tool {
	return tool.NewTypedTool(
		FindCompanyTool,
		"Look up customer companies of the current workspace by name. Matching is case-insensitive and "+
			"accepts fragments. Returns the candidates with their ids.",
		func(tc *core.ToolContext, in findCompanyArgs) (any, error) {
			query, err := crm.NormalizeQuery(in.Query)
			if err != nil {
				return nil, tool.NewToolError(FindCompanyTool, "query must not be empty", tool.CodeValidation)
			}

			fetch := limit
			if limit > 0 {
				fetch = limit + 1
			}

			companies, err := store.SearchCompanies(tc.Context(), tc.WorkspaceID(), query, fetch)
			if err != nil {
				return nil, fmt.Errorf("search companies: %w", err)
			}

			if len(companies) == 0 {
				return nil, tool.NewToolError(
					FindCompanyTool,
					fmt.Sprintf("no company matches %q. Ask the user to check the spelling or name another company.", query),
					tool.CodeNotFound,
				)
			}

			truncated := limit > 0 && len(companies) > limit
			if truncated {
				companies = companies[:limit]
			}

			return matchesFor(query, companies, truncated), nil
		},
	)
}

// matchesFor classifies search results. Candidates keep the store order,
// which lists exact name matches first. A truncated result is never unique.
func matchesFor(query string, companies []crm.Company, truncated bool) *CompanyMatches {
	out := &CompanyMatches{Query: query, Truncated: truncated, Candidates: make([]CompanyCandidate, 0, len(companies))}
	exact := 0
	for _, c := range companies {
		out.Candidates = append(out.Candidates, CompanyCandidate{ID: c.ID, Name: c.Name, Domain: c.Domain})
		if strings.EqualFold(c.Name, query) {
			exact++
		}
	}

	switch {
	case len(companies) == 1 && !truncated:
		out.Match = MatchUnique
		out.Guidance = "Use this company id for create_order."
	case exact == 1:
		out.Match = MatchExact
		out.Guidance = fmt.Sprintf(
			"%q matches one company exactly; use its id unless the user meant one of the other candidates.",
			companies[0].Name,
		)
	case truncated:
		out.Match = MatchAmbiguous
		out.Guidance = "More companies match than are listed. Ask the user for the full company name. Do not create an order yet."
	default:
		out.Match = MatchAmbiguous
		out.Guidance = "Several companies match. List them and ask the user which one they mean. Do not create an order yet."
	}
	return out
}

func newCreateOrderTool(store crm.Store, marker string) tool.Tool {
	return tool.NewTypedTool(
		CreateOrderTool,
		"Create an order for a customer company. Only call this once the company id is known.",
		func(tc *core.ToolContext, in createOrderArgs) (any, error) {
			no := crm.NewOrder{
				WorkspaceID: tc.WorkspaceID(),
				CompanyID:   strings.TrimSpace(in.CompanyID),
				Product:     in.Product,
				Quantity:    in.Quantity,
				Currency:    in.Currency,
				Notes:       strings.TrimSpace(in.Notes),
				CreatedBy:   tc.UserID(),
			}
			if in.UnitPriceCents != nil {
				no.UnitPriceCents = *in.UnitPriceCents
			}

			order, err := store.CreateOrder(tc.Context(), no)
			switch {
			case errors.Is(err, crm.ErrNotFound):
				return nil, tool.NewToolError(
					CreateOrderTool,
					fmt.Sprintf("company %q does not exist in this workspace. Look it up with find_company first.", no.CompanyID),
					tool.CodeNotFound,
				)
			case errors.Is(err, crm.ErrInvalidOrder):
				return nil, tool.NewToolError(CreateOrderTool, err.Error(), tool.CodeValidation)
			case err != nil:
				return nil, fmt.Errorf("create order: %w", err)
			}

			tc.SetState(LastOrderKey, order.ID)

			return &OrderReceipt{Message: receiptMessage(marker, order), Order: *order}, nil
		},
	)
}

func receiptMessage(marker string, o *crm.Order) string {
	msg := fmt.Sprintf("%d x %s for %s (order %s, total %s)",
		o.Quantity, o.Product, o.CompanyName, o.ID, FormatCents(o.TotalCents(), o.Currency))
	if marker == "" {
		return "Order created: " + msg
	}
	return marker + ": " + msg
}

// FormatCents renders an amount in the smallest currency unit, e.g.
// "1234.50 EUR".
func FormatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
