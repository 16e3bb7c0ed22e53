package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hupe1980/supportdesk/agent"
	"github.com/hupe1980/supportdesk/crm"
	"github.com/hupe1980/supportdesk/flow"
	"github.com/hupe1980/supportdesk/internal/auth"
	"github.com/hupe1980/supportdesk/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// AgentOrderRequest is the JSON request body for POST /v1/agent/orders.
type AgentOrderRequest struct {
	Instruction string `json:"instruction"`
	ThreadID    string `json:"thread_id,omitempty"`
}

// AgentOrderResponse is the JSON response for POST /v1/agent/orders.
type AgentOrderResponse struct {
	ThreadID   string            `json:"thread_id"`
	RunID      string            `json:"run_id"`
	Answer     string            `json:"answer"`
	AnswerHTML string            `json:"answer_html"`
	Orders     []crm.Order       `json:"orders"`
	Steps      int               `json:"steps"`
	Usage      *model.TokenUsage `json:"usage,omitempty"`
}

// OrdersResponse is the JSON response for GET /v1/orders.
type OrdersResponse struct {
	Orders []crm.Order `json:"orders"`
}

// CompaniesResponse is the JSON response for GET /v1/companies.
type CompaniesResponse struct {
	Companies []crm.Company `json:"companies"`
}

// CreateCompanyRequest is the JSON request body for POST /v1/companies.
type CreateCompanyRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

func (s *Server) handleAgentOrder(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	var req AgentOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	res, err := s.deps.Agent.Run(ctx, agent.Request{
		WorkspaceID: p.WorkspaceID,
		ThreadID:    req.ThreadID,
		UserID:      p.UserID,
		Instruction: req.Instruction,
	})
	if err != nil {
		status, msg := agentErrorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("api.agent.error", "workspace_id", p.WorkspaceID, "error", err.Error())
		}
		s.sendJSONError(w, status, msg)
		return
	}

	html, err := s.renderer.HTML(res.Answer)
	if err != nil {
		s.logger.Warn("api.agent.render_failed", "error", err.Error())
	}

	s.sendJSON(w, http.StatusOK, AgentOrderResponse{
		ThreadID:   res.ThreadID,
		RunID:      res.RunID,
		Answer:     res.Answer,
		AnswerHTML: html,
		Orders:     res.Orders,
		Steps:      res.Steps,
		Usage:      res.Usage,
	})
}

func agentErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, flow.ErrRecursionLimit):
		return http.StatusUnprocessableEntity, "the agent did not finish within its step limit"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "the agent timed out"
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled"
	default:
		return http.StatusBadGateway, "the agent failed"
	}
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	q := r.URL.Query()

	opts := crm.ListOptions{CompanyID: q.Get("company_id")}
	if st := q.Get("status"); st != "" {
		opts.Status = crm.OrderStatus(st)
		if !opts.Status.Valid() {
			s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", st))
			return
		}
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	orders, err := s.deps.Store.ListOrders(r.Context(), p.WorkspaceID, opts)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if orders == nil {
		orders = []crm.Order{}
	}
	s.sendJSON(w, http.StatusOK, OrdersResponse{Orders: orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	o, err := s.deps.Store.GetOrder(r.Context(), p.WorkspaceID, r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, o)
}

func (s *Server) handleSearchCompanies(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if limit == 0 || limit > 100 {
		limit = 20
	}

	companies, err := s.deps.Store.SearchCompanies(r.Context(), p.WorkspaceID, q.Get("q"), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if companies == nil {
		companies = []crm.Company{}
	}
	s.sendJSON(w, http.StatusOK, CompaniesResponse{Companies: companies})
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	var req CreateCompanyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.deps.Store.CreateCompany(r.Context(), crm.NewCompany{
		WorkspaceID: p.WorkspaceID,
		Name:        req.Name,
		Domain:      req.Domain,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, c)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			s.logger.Warn("api.health.failed", "error", err.Error())
			s.sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// storeError maps CRM errors to HTTP responses.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crm.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, crm.ErrEmptyQuery), errors.Is(err, crm.ErrInvalidCompany), errors.Is(err, crm.ErrInvalidOrder):
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("api.store.error", "error", err.Error())
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("api.encode_failed", "error", err.Error())
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
