// Package app assembles the engine from configuration. Both the HTTP
// server and the worker build the same object graph through Build.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/notification-agent/internal/agent"
	"github.com/ignite/notification-agent/internal/catalog"
	"github.com/ignite/notification-agent/internal/channel"
	"github.com/ignite/notification-agent/internal/config"
	"github.com/ignite/notification-agent/internal/cooldown"
	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/pkg/httpretry"
	"github.com/ignite/notification-agent/internal/pkg/logger"
	"github.com/ignite/notification-agent/internal/render"
	"github.com/ignite/notification-agent/internal/repository/file"
	"github.com/ignite/notification-agent/internal/repository/postgres"
	"github.com/ignite/notification-agent/internal/selector"
	"github.com/ignite/notification-agent/internal/storage"
	"github.com/ignite/notification-agent/internal/tracking"
)

// Deps are the opened infrastructure handles. Redis and AWS may be nil
// when nothing configured needs them.
type Deps struct {
	DB    *sql.DB
	Redis redis.UniversalClient
	AWS   *storage.AWSClients
}

// Engine is the assembled object graph.
type Engine struct {
	Catalog      *catalog.Catalog
	Renderer     *render.Renderer
	Dispatcher   *channel.Dispatcher
	Tracker      *delivery.Tracker
	Orchestrator *agent.Orchestrator
	Links        *tracking.Links
	Sink         tracking.Sink
}

// ConfigureLogger applies the log section.
func ConfigureLogger(c config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(c.Level))
	logger.SetRedactPII(c.Redact())
}

// OpenPostgres opens and pings the database.
func OpenPostgres(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}
	db, err := sql.Open("postgres", c.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis returns nil when no address is configured.
func OpenRedis(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	if c.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Build wires the engine. The catalog is loaded once before returning so
// the first event never sees an empty snapshot.
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("app: a database is required for delivery records")
	}

	var rules catalog.RuleSource
	var templates render.TemplateSource
	var bundle *file.Bundle
	if cfg.Catalog.Source == "file" || cfg.Templates.Source == "file" {
		bundle = file.NewBundle(cfg.Catalog.FilePath)
	}
	if cfg.Catalog.Source == "file" {
		rules = bundle
	} else {
		rules = postgres.NewRuleRepo(deps.DB)
	}
	if cfg.Templates.Source == "file" {
		templates = bundle
	} else {
		templates = postgres.NewTemplateRepo(deps.DB)
	}

	renderer := render.NewRenderer(templates, cfg.Templates.DefaultLocale, cfg.Templates.CacheTTL())
	cat := catalog.New(rules, cfg.Catalog.Interval(), cfg.Catalog.MaxStaleness()).WithTemplateChecker(renderer)
	if err := cat.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial catalog load: %w", err)
	}

	store, err := newCooldownStore(cfg.Cooldown, deps)
	if err != nil {
		return nil, err
	}
	scope, err := cooldown.ParseKeyScope(cfg.Cooldown.KeyScope)
	if err != nil {
		return nil, err
	}

	var links *tracking.Links
	if cfg.Tracking.BaseURL != "" && cfg.Tracking.SigningKey != "" {
		links = tracking.NewLinks(cfg.Tracking.BaseURL, cfg.Tracking.SigningKey)
	}
	dispatcher, err := newDispatcher(cfg.Channels, deps, links)
	if err != nil {
		return nil, err
	}

	tracker := delivery.NewTracker(postgres.NewDeliveryRepo(deps.DB), cfg.Tracking.MaxCASRetries)

	var sink tracking.Sink = tracking.DirectSink{Tracker: tracker}
	if cfg.Tracking.SQSQueueURL != "" && deps.AWS != nil {
		sink = tracking.NewPublisher(deps.AWS.SQS, cfg.Tracking.SQSQueueURL)
	}

	return &Engine{
		Catalog:      cat,
		Renderer:     renderer,
		Dispatcher:   dispatcher,
		Tracker:      tracker,
		Orchestrator: agent.New(selector.New(cat, store, scope), renderer, dispatcher, tracker),
		Links:        links,
		Sink:         sink,
	}, nil
}

func newCooldownStore(c config.CooldownConfig, deps Deps) (cooldown.Store, error) {
	switch c.Backend {
	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("cooldown backend redis needs redis.addr")
		}
		return cooldown.NewRedisStore(deps.Redis, c.KeyPrefix, c.Retention()), nil
	case "postgres":
		return cooldown.NewPostgresStore(deps.DB), nil
	case "dynamodb":
		if deps.AWS == nil {
			return nil, fmt.Errorf("cooldown backend dynamodb needs AWS clients")
		}
		return cooldown.NewDynamoStore(deps.AWS.DynamoDB, c.DynamoDBTable, c.Retention()), nil
	}
	return nil, fmt.Errorf("unknown cooldown backend %q", c.Backend)
}

func newDispatcher(c config.ChannelsConfig, deps Deps, links *tracking.Links) (*channel.Dispatcher, error) {
	d := channel.NewDispatcher(c.Timeout())
	httpClient := &http.Client{Timeout: c.Timeout()}

	if c.Email.Enabled {
		var a channel.Adapter
		switch c.Email.Provider {
		case "resend":
			a = channel.NewResendAdapter(c.Email.APIKey, c.Email.From)
		default:
			if deps.AWS == nil {
				return nil, fmt.Errorf("email provider ses needs AWS clients")
			}
			a = channel.NewSESAdapter(deps.AWS.SES, c.Email.From, c.Email.ConfigurationSet)
		}
		if links != nil {
			a = tracking.WithLinkTracking(a, links)
		}
		d.Register(a, c.Email.AddressPath)
	}
	if c.Push.Enabled {
		var a channel.Adapter = channel.NewPushAdapter(
			httpretry.NewRetryClient(httpClient, c.Push.MaxRetries), c.Push.GatewayURL, c.Push.AccessToken)
		if links != nil {
			a = tracking.WithLinkTracking(a, links)
		}
		d.Register(a, c.Push.AddressPath)
	}
	if c.SMS.Enabled {
		var a channel.Adapter = channel.NewSMSAdapter(
			httpretry.NewRetryClient(httpClient, c.SMS.MaxRetries), c.SMS.BaseURL, c.SMS.AccountSID, c.SMS.AuthToken, c.SMS.From)
		if links != nil {
			a = tracking.WithLinkTracking(a, links)
		}
		d.Register(a, c.SMS.AddressPath)
	}
	if c.InApp.Enabled {
		if deps.Redis == nil {
			return nil, fmt.Errorf("in-app channel needs redis.addr")
		}
		d.Register(channel.NewInAppAdapter(deps.Redis, c.InApp.KeyPrefix, c.InApp.MaxItems, c.InApp.Channel), c.InApp.AddressPath)
	}

	if len(d.Channels()) == 0 {
		logger.Warn("no channels enabled, every dispatch will fail")
	}
	return d, nil
}
