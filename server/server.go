package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/supportdesk/agent"
	"github.com/hupe1980/supportdesk/crm"
	"github.com/hupe1980/supportdesk/internal/auth"
	"github.com/hupe1980/supportdesk/internal/render"
	"github.com/hupe1980/supportdesk/logging"
)

// OrderRunner runs the order agent. *agent.OrderAgent implements it.
type OrderRunner interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Agent    OrderRunner
	Store    crm.Store
	Verifier auth.TokenVerifier
	// Feed publishes created orders to /v1/events. Optional.
	Feed crm.OrderFeed
	// Health checks backing services for /healthz. Optional.
	Health func(ctx context.Context) error
}

// Defaults applied by New, also for non-positive durations.
const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRequestTimeout  = 2 * time.Minute
	DefaultHeartbeat       = 25 * time.Second
)

// Options tune a Server.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	// RequestTimeout bounds a single agent run.
	RequestTimeout time.Duration
	AllowedOrigins []string
	// Heartbeat is the interval of SSE keep-alive comments.
	Heartbeat time.Duration
	Logger    logging.Logger
}

// Server is the HTTP front of supportdesk.
type Server struct {
	deps     Deps
	opts     Options
	logger   logging.Logger
	broker   *Broker
	renderer *render.Renderer
	handler  http.Handler
}

// New validates deps and builds the route table.
func New(deps Deps, optFns ...func(o *Options)) (*Server, error) {
	opts := Options{
		Addr:            ":8080",
		ShutdownTimeout: DefaultShutdownTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		Heartbeat:       DefaultHeartbeat,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}

	if deps.Agent == nil || deps.Store == nil || deps.Verifier == nil {
		return nil, errors.New("server: agent, store and verifier are required")
	}

	s := &Server{
		deps:     deps,
		opts:     opts,
		logger:   opts.Logger,
		broker:   NewBroker(16, opts.Logger),
		renderer: render.New(),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Broker returns the event broker feeding /v1/events.
func (s *Server) Broker() *Broker { return s.broker }

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/agent/orders", s.handleAgentOrder)
	api.HandleFunc("GET /v1/orders", s.handleListOrders)
	api.HandleFunc("GET /v1/orders/{id}", s.handleGetOrder)
	api.HandleFunc("GET /v1/companies", s.handleSearchCompanies)
	api.HandleFunc("POST /v1/companies", s.handleCreateCompany)
	api.HandleFunc("GET /v1/events", s.handleEvents)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.Handle("/v1/", auth.Middleware(s.deps.Verifier)(api))

	return chain(root,
		recoverer(s.logger),
		requestLogger(s.logger),
		cors(s.opts.AllowedOrigins),
	)
}

// Run serves HTTP on opts.Addr and fans the order feed out to event
// subscribers until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server.listen", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if s.deps.Feed != nil {
		g.Go(func() error { return s.broker.Run(gctx, s.deps.Feed) })
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("server.shutdown")
		// Open event streams only end once their subscriptions close.
		s.broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
