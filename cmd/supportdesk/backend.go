package main

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/supportdesk"
	"github.com/hupe1980/supportdesk/agent"
	"github.com/hupe1980/supportdesk/crm"
	crmpg "github.com/hupe1980/supportdesk/crm/postgres"
	"github.com/hupe1980/supportdesk/internal/auth"
	"github.com/hupe1980/supportdesk/internal/config"
	"github.com/hupe1980/supportdesk/logging"
	"github.com/hupe1980/supportdesk/model"
	"github.com/hupe1980/supportdesk/model/anthropic"
	"github.com/hupe1980/supportdesk/model/openai"
	"github.com/hupe1980/supportdesk/server"
	"github.com/hupe1980/supportdesk/session"
	sessionpg "github.com/hupe1980/supportdesk/session/postgres"
)

// backend is the storage selected by the configuration: Postgres when a
// database URL is set, in-memory otherwise.
type backend struct {
	store    crm.Store
	sessions session.Store
	feed     crm.OrderFeed
	health   func(ctx context.Context) error
	close    func()
}

// newModel builds the configured model provider. Tests replace it.
var newModel = func(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// openBackend opens the stores. With listen set, the Postgres order listener
// is started so that /v1/events sees orders created by any process.
func openBackend(ctx context.Context, cfg *config.Config, logger logging.Logger, listen bool) (*backend, error) {
	if cfg.Database.URL == "" {
		mem := crm.NewMemoryStore()
		feed := crm.NewFeed(64)
		mem.OnOrderCreated(func(o crm.Order) { feed.Publish(o) })
		logger.Warn("backend.memory", "reason", "no database url configured")
		return &backend{
			store: mem,
			sessions: session.NewInMemoryStore(func(o *session.InMemoryOptions) {
				o.MaxMessages = cfg.Agent.ThreadMaxMessages
			}),
			feed:  feed,
			close: func() { _ = feed.Close() },
		}, nil
	}

	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		applied, err := crmpg.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("backend.migrated", "migrations", applied)
		}
	}

	b := &backend{
		store: crmpg.NewStore(pool),
		sessions: sessionpg.NewStore(pool, func(o *sessionpg.Options) {
			o.MaxMessages = cfg.Agent.ThreadMaxMessages
		}),
		health: pool.Ping,
		close:  pool.Close,
	}

	if listen {
		l := crmpg.NewListener(pool, func(o *crmpg.ListenerOptions) { o.Logger = logger })
		if err := l.Listen(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("listening for orders: %w", err)
		}
		b.feed = l
		b.close = func() {
			_ = l.Close()
			pool.Close()
		}
	}

	return b, nil
}

// newDesk wires model, storage and configuration into a Desk.
func newDesk(cfg *config.Config, b *backend, logger *logging.DeskLogger, extra ...func(o *agent.Options)) (*supportdesk.Desk, error) {
	m, err := newModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	instruction, err := cfg.LoadInstruction()
	if err != nil {
		return nil, err
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience),
	)

	agentOpts := append([]func(o *agent.Options){func(o *agent.Options) {
		o.MaxSteps = cfg.Agent.MaxSteps
		o.HistoryWindow = cfg.Agent.HistoryWindow
		o.SearchLimit = cfg.Agent.SearchLimit
		o.Marker = cfg.Agent.Marker
		o.Currency = cfg.Agent.Currency
		o.Stream = cfg.Model.Stream
		if instruction != "" {
			o.Instruction = agent.NewInstructionFromText(instruction)
		}
		o.Logger = logger.WithComponent("agent")
	}}, extra...)

	return supportdesk.New(m, b.store, func(o *supportdesk.Options) {
		o.Sessions = b.sessions
		o.Feed = b.feed
		o.Verifier = verifier
		o.Health = b.health
		o.Logger = logger.WithComponent("server")
		o.Agent = agentOpts
		o.Server = []func(o *server.Options){func(o *server.Options) {
			o.Addr = cfg.Server.HTTPAddr
			o.AllowedOrigins = cfg.Server.AllowedOrigins
			o.ShutdownTimeout = cfg.Server.ShutdownTimeout
			o.RequestTimeout = cfg.Server.RequestTimeout
		}}
	})
}
