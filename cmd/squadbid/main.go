package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alejandrodnm/squadbid/config"
	"github.com/alejandrodnm/squadbid/internal/adapters/auth"
	"github.com/alejandrodnm/squadbid/internal/adapters/httpapi"
	"github.com/alejandrodnm/squadbid/internal/adapters/metrics"
	"github.com/alejandrodnm/squadbid/internal/adapters/notify"
	"github.com/alejandrodnm/squadbid/internal/adapters/oracle"
	"github.com/alejandrodnm/squadbid/internal/adapters/storage"
	"github.com/alejandrodnm/squadbid/internal/application/engine"
	"github.com/alejandrodnm/squadbid/internal/application/escrow"
	"github.com/alejandrodnm/squadbid/internal/application/query"
	"github.com/alejandrodnm/squadbid/internal/application/registry"
	"github.com/alejandrodnm/squadbid/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	serve := flag.Bool("serve", false, "run the HTTP API and the background engines")
	once := flag.Bool("once", false, "run one engine cycle and exit")
	report := flag.Bool("report", false, "print open bids, matches and the ledger summary")
	account := flag.String("account", "", "with -report: only this account")
	issue := flag.String("issue", "", "print a capability token for the comma-separated capabilities and exit")
	subject := flag.String("subject", "operator", "with -issue: token subject")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	authorizer, err := auth.NewJWTAuthorizer(cfg.Auth.Secret)
	if err != nil {
		slog.Error("failed to create authorizer", "err", err)
		os.Exit(1)
	}
	if *issue != "" {
		issueToken(authorizer, *subject, *issue, cfg.TokenTTL())
		return
	}

	slog.Info("squadbid starting",
		"config", *configPath,
		"serve", *serve,
		"once", *once,
		"report", *report,
		"match_interval", cfg.MatchInterval(),
		"settle_interval", cfg.SettleInterval(),
		"sweep_interval", cfg.SweepInterval(),
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := build(ctx, cfg, store, authorizer)
	if err != nil {
		slog.Error("failed to build services", "err", err)
		os.Exit(1)
	}

	switch {
	case *report:
		if err := runReport(ctx, app, *account); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
	case *once:
		rep := app.runner.RunOnce(ctx)
		if err := app.console.NotifyCycle(ctx, rep); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	case *serve:
		if err := runServer(ctx, cfg, app); err != nil {
			slog.Error("server exited with error", "err", err)
			os.Exit(1)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	slog.Info("squadbid stopped cleanly")
}

// app es el grafo de servicios ya cableado.
type app struct {
	escrow   *escrow.Service
	registry *registry.Service
	query    *query.Facade
	hub      *httpapi.Hub
	metrics  *metrics.Metrics
	runner   *engine.Runner
	console  *notify.Console
}

func build(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, authorizer *auth.JWTAuthorizer) (*app, error) {
	formations, err := cfg.FormationTable()
	if err != nil {
		return nil, err
	}

	var priceOracle ports.PriceOracle
	if cfg.Oracle.BaseURL != "" {
		priceOracle = oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.RequestsPerSecond, cfg.Oracle.Burst,
			time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second)
		slog.Info("price oracle", "base_url", cfg.Oracle.BaseURL)
	} else {
		static, err := oracle.NewStatic(cfg.Oracle.Static)
		if err != nil {
			return nil, err
		}
		priceOracle = static
		slog.Warn("no oracle.base_url set, using the static price table", "tokens", len(cfg.Oracle.Static))
	}

	hub := httpapi.NewHub(cfg.API.AllowedOrigins)
	meter := metrics.New()
	publisher := ports.Publishers{hub, meter}
	clock := ports.SystemClock{}

	esc := escrow.New(escrow.Config{
		Limits:       cfg.Limits(),
		Formations:   formations,
		GraceWindow:  cfg.Protocol.GraceWindow,
		DisputeAfter: cfg.Protocol.DisputeAfter,
	}, store, priceOracle, authorizer, clock, publisher)

	fees, err := esc.EnsureFeeConfig(ctx, cfg.FeeConfig())
	if err != nil {
		return nil, err
	}
	slog.Info("fee schedule", "version", fees.Version, "upfront_bps", fees.UpfrontBps)

	reg := registry.New(registry.Config{Formations: formations, ReviveWait: cfg.Protocol.ReviveWait}, store, clock, publisher)
	q := query.New(store)
	console := notify.NewConsole()

	a := &app{escrow: esc, registry: reg, query: q, hub: hub, metrics: meter, console: console}
	notifier := ports.Notifiers{console, meter}
	if cfg.Engine.Disabled {
		a.runner = engine.NewRunner(engine.Config{}, nil, nil, nil, notifier)
		return a, nil
	}

	tokens, err := engineTokens(authorizer, cfg.TokenTTL())
	if err != nil {
		return nil, err
	}
	a.runner = engine.NewRunner(
		engine.Config{
			MatchInterval:  cfg.MatchInterval(),
			SettleInterval: cfg.SettleInterval(),
			SweepInterval:  cfg.SweepInterval(),
		},
		engine.NewMatchmaker(esc, q, clock, tokens[ports.CapMatch]),
		engine.NewSettler(esc, q, priceOracle, clock, tokens[ports.CapSettle], tokens[ports.CapArbitrate], cfg.Protocol.DisputeAfter),
		engine.NewSweeper(esc, q, clock, tokens[ports.CapSweep], cfg.Protocol.StaleAfter),
		notifier,
	)
	return a, nil
}

// engineTokens mints one single-capability token per engine.
func engineTokens(a *auth.JWTAuthorizer, ttl time.Duration) (map[ports.Capability]string, error) {
	out := make(map[ports.Capability]string, 4)
	for _, c := range []ports.Capability{ports.CapMatch, ports.CapSettle, ports.CapSweep, ports.CapArbitrate} {
		tok, err := a.Issue("engine:"+string(c), ttl, c)
		if err != nil {
			return nil, err
		}
		out[c] = tok
	}
	return out, nil
}

func issueToken(a *auth.JWTAuthorizer, subject, list string, ttl time.Duration) {
	var caps []ports.Capability
	for _, c := range strings.Split(list, ",") {
		if c = strings.TrimSpace(c); c != "" {
			caps = append(caps, ports.Capability(c))
		}
	}
	tok, err := a.Issue(subject, ttl, caps...)
	if err != nil {
		slog.Error("failed to issue token", "err", err)
		os.Exit(1)
	}
	os.Stdout.WriteString(tok + "\n")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
