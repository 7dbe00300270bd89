// Command server runs the trygate authentication gateway.
//
// Configuration is read from a YAML file (discovered or passed with
// -config) with TRYGATE_* environment overrides; see pkg/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/trygate-dev/trygate/pkg/analytics"
	"github.com/trygate-dev/trygate/pkg/analytics/memory"
	"github.com/trygate-dev/trygate/pkg/analytics/postgres"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/anonymous"
	"github.com/trygate-dev/trygate/pkg/auth/session"
	"github.com/trygate-dev/trygate/pkg/config"
	"github.com/trygate-dev/trygate/pkg/debug"
	"github.com/trygate-dev/trygate/pkg/provider/aad"
	"github.com/trygate-dev/trygate/pkg/provider/facebook"
	"github.com/trygate-dev/trygate/pkg/provider/google"
	"github.com/trygate-dev/trygate/pkg/provider/local"
	"github.com/trygate-dev/trygate/pkg/provider/twitter"
	"github.com/trygate-dev/trygate/pkg/secret"
	transporthttp "github.com/trygate-dev/trygate/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: discover)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	debug.Init(cfg.Observability.Logging.Debug, cfg.Observability.Logging.Level)

	ctx := context.Background()

	events, err := newEventStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating analytics store: %w", err)
	}
	defer events.Close()

	gateway, gate, err := buildAuth(cfg, events)
	if err != nil {
		return fmt.Errorf("building authentication: %w", err)
	}

	adapter := transporthttp.NewAdapter(gateway, gate, events, transporthttp.DefaultConfig())

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	srv := transporthttp.NewServer(adapter,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithMetricsPath(metricsPath),
	)

	return srv.ListenAndServe()
}

// newEventStore creates the configured analytics backend.
func newEventStore(ctx context.Context, cfg *config.Config) (analytics.Store, error) {
	switch cfg.Analytics.Type {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Analytics.Postgres.DSN,
			MaxConns:       cfg.Analytics.Postgres.MaxConns,
			MigrateOnStart: cfg.Analytics.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("analytics enabled", "type", "postgres")
		return store, nil
	default:
		slog.Info("analytics enabled", "type", "memory", "max_size", cfg.Analytics.MaxSize)
		return memory.New(cfg.Analytics.MaxSize), nil
	}
}

// buildAuth wires the session codec, anonymous tracker, provider
// registry, and rate limiter into the gateway and admin gate.
func buildAuth(cfg *config.Config, events analytics.Store) (*auth.Gateway, *auth.Gate, error) {
	gate := &auth.Gate{AdminUser: cfg.Auth.AdminUser}

	if !cfg.Auth.Enabled {
		slog.Warn("authentication disabled, all requests run as the local identity")
		return &auth.Gateway{
			Enabled:       false,
			LocalIdentity: local.DefaultIdentity,
		}, gate, nil
	}

	key, err := config.DecodeKey(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, nil, err
	}
	secrets, err := secret.NewCodec(key)
	if err != nil {
		return nil, nil, err
	}

	sessions := session.NewCodec(secrets, cfg.Auth.SessionTTL)
	tracker := anonymous.NewTracker(secrets, events)

	registry, err := buildRegistry(cfg, sessions, events)
	if err != nil {
		return nil, nil, err
	}

	gw := &auth.Gateway{
		Enabled:   true,
		Registry:  registry,
		Sessions:  sessions,
		Anonymous: tracker,
		Routes:    transporthttp.NewRouteTable(),
		Classify:  auth.DefaultClassifier,
		Limiter:   auth.NewInProcessLimiter(cfg.Auth.BearerRPM),
	}
	return gw, gate, nil
}

// buildRegistry registers every provider carrying credentials. When none
// is configured the local development provider stands in as default.
func buildRegistry(cfg *config.Config, sessions *session.Codec, events analytics.Store) (*auth.Registry, error) {
	p := cfg.Auth.Providers

	type entry struct {
		name string
		make func() (auth.Provider, error)
	}
	entries := []entry{}

	if p.AAD.ClientID != "" {
		entries = append(entries, entry{aad.Name, func() (auth.Provider, error) {
			return aad.New(aad.Config{
				TenantID:     p.AAD.TenantID,
				ClientID:     p.AAD.ClientID,
				ClientSecret: p.AAD.ClientSecret,
				RedirectURL:  p.AAD.RedirectURL,
			}, sessions, events)
		}})
	}
	if p.Google.ClientID != "" {
		entries = append(entries, entry{google.Name, func() (auth.Provider, error) {
			return google.New(google.Config{
				ClientID:     p.Google.ClientID,
				ClientSecret: p.Google.ClientSecret,
				RedirectURL:  p.Google.RedirectURL,
			}, sessions, events)
		}})
	}
	if p.Facebook.ClientID != "" {
		entries = append(entries, entry{facebook.Name, func() (auth.Provider, error) {
			return facebook.New(facebook.Config{
				ClientID:     p.Facebook.ClientID,
				ClientSecret: p.Facebook.ClientSecret,
				RedirectURL:  p.Facebook.RedirectURL,
			}, sessions, events)
		}})
	}
	if p.Twitter.ClientID != "" {
		entries = append(entries, entry{twitter.Name, func() (auth.Provider, error) {
			return twitter.New(twitter.Config{
				ClientID:     p.Twitter.ClientID,
				ClientSecret: p.Twitter.ClientSecret,
				RedirectURL:  p.Twitter.RedirectURL,
			}, sessions, events)
		}})
	}

	defaultName := strings.ToLower(cfg.Auth.DefaultProvider)
	if len(entries) == 0 {
		slog.Warn("no identity provider configured, using the local provider")
		defaultName = local.Name
	}

	registry := auth.NewRegistry(defaultName)

	if len(entries) == 0 {
		if err := registry.Register(local.Name, local.New(sessions, auth.Identity{})); err != nil {
			return nil, err
		}
		return registry, registry.Validate()
	}

	configured := make(map[string]bool, len(entries))
	for _, e := range entries {
		prov, err := e.make()
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", e.name, err)
		}
		if err := registry.Register(e.name, prov); err != nil {
			return nil, err
		}
		configured[e.name] = true
		slog.Info("identity provider registered", "provider", e.name)
	}

	if !configured[defaultName] {
		return nil, fmt.Errorf("default provider %q has no credentials configured", defaultName)
	}

	return registry, registry.Validate()
}
