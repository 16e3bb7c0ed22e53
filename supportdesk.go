// Package supportdesk assembles the order agent and its HTTP front into a
// single Desk. Most applications:
//  1. Pick a model (model/openai, model/anthropic) and a crm.Store
//  2. Create a Desk via New(), optionally overriding the in-memory thread store
//  3. Either run instructions directly (Order) or serve the HTTP API (Run)
//
// Defaults are suitable for local development: threads live in memory and
// logging is disabled. Production deployments supply the Postgres stores,
// an order feed and a structured logger.
package supportdesk

import (
	"context"
	"errors"
	"net/http"

	"github.com/hupe1980/supportdesk/agent"
	"github.com/hupe1980/supportdesk/crm"
	"github.com/hupe1980/supportdesk/internal/auth"
	"github.com/hupe1980/supportdesk/logging"
	"github.com/hupe1980/supportdesk/model"
	"github.com/hupe1980/supportdesk/server"
	"github.com/hupe1980/supportdesk/session"
)

// ErrNoVerifier is returned by Run and Handler when the Desk was built
// without a token verifier.
var ErrNoVerifier = errors.New("supportdesk: no token verifier configured")

// Options configures a Desk.
type Options struct {
	// Sessions stores conversation threads (defaults to session.NewInMemoryStore).
	Sessions session.Store
	// Feed publishes created orders to event subscribers. Optional.
	Feed crm.OrderFeed
	// Verifier authenticates API callers. Without it the Desk can only run
	// instructions in-process.
	Verifier auth.TokenVerifier
	// Health checks backing services for /healthz. Optional.
	Health func(ctx context.Context) error

	// Agent and Server tune the underlying components.
	Agent  []func(o *agent.Options)
	Server []func(o *server.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Desk bundles the order agent with the HTTP server that exposes it.
type Desk struct {
	opts   Options
	agent  *agent.OrderAgent
	server *server.Server
}

// New creates a Desk around the given model and CRM store.
func New(m model.Model, store crm.Store, optFns ...func(o *Options)) (*Desk, error) {
	opts := Options{
		Sessions: session.NewInMemoryStore(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	agentOpts := append([]func(o *agent.Options){func(o *agent.Options) { o.Logger = opts.Logger }}, opts.Agent...)
	a, err := agent.New(m, store, opts.Sessions, agentOpts...)
	if err != nil {
		return nil, err
	}

	d := &Desk{opts: opts, agent: a}

	if opts.Verifier != nil {
		serverOpts := append([]func(o *server.Options){func(o *server.Options) { o.Logger = opts.Logger }}, opts.Server...)
		d.server, err = server.New(server.Deps{
			Agent:    a,
			Store:    store,
			Verifier: opts.Verifier,
			Feed:     opts.Feed,
			Health:   opts.Health,
		}, serverOpts...)
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Agent returns the underlying order agent.
func (d *Desk) Agent() *agent.OrderAgent { return d.agent }

// Order runs a single instruction through the agent.
func (d *Desk) Order(ctx context.Context, req agent.Request) (*agent.Result, error) {
	return d.agent.Run(ctx, req)
}

// Handler returns the HTTP handler of the API.
func (d *Desk) Handler() (http.Handler, error) {
	if d.server == nil {
		return nil, ErrNoVerifier
	}
	return d.server.Handler(), nil
}

// Run serves the API until ctx is cancelled.
func (d *Desk) Run(ctx context.Context) error {
	if d.server == nil {
		return ErrNoVerifier
	}
	return d.server.Run(ctx)
}
