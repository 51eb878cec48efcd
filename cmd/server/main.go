// Okapi is an AI-assisted clinical triage service for community health
// programs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okapihealth/okapi/internal/authmw"
	"github.com/okapihealth/okapi/internal/cfg"
	"github.com/okapihealth/okapi/internal/llm"
	"github.com/okapihealth/okapi/internal/llm/bedrock"
	"github.com/okapihealth/okapi/internal/llm/claude"
	"github.com/okapihealth/okapi/internal/llm/hf"
	"github.com/okapihealth/okapi/internal/llm/kaggle"
	"github.com/okapihealth/okapi/internal/llm/vertex"
	"github.com/okapihealth/okapi/internal/notify/slack"
	"github.com/okapihealth/okapi/internal/triage"
	"github.com/okapihealth/okapi/internal/triage/memstore"
	"github.com/okapihealth/okapi/internal/triage/pgstore"
	"github.com/okapihealth/okapi/internal/triageapi"
)

const appName = "okapi"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

// store is the combined persistence surface the service needs.
type store interface {
	triage.Store
	triage.Rollup
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg, err := cfg.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).With().
		Timestamp().
		Str("app", appName).
		Logger()
	L := logger.With().Str("component", "server").Logger()

	L.Info().
		Int("port", appCfg.Port).
		Str("provider", appCfg.Provider).
		Bool("postgres", appCfg.DatabaseURL != "").
		Bool("auth", appCfg.APIToken != "").
		Msg("initializing")
	if appCfg.APIToken == "" {
		L.Warn().Msg("OKAPI_API_TOKEN not set, API authentication is DISABLED")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	triageMetrics := triage.NewMetrics(reg)

	var st store
	if appCfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, appCfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("pgstore init: %w", err)
		}
		defer pg.Close()
		st = pg
		L.Info().Msg("using postgres store")
	} else {
		st = memstore.New()
		L.Info().Msg("using in-memory store (no OKAPI_DATABASE_URL configured)")
	}

	llm.ConfigureTemplates(llm.TemplateConfig{
		Override: appCfg.PromptTemplate,
		FetchURL: appCfg.PromptTemplateURL,
		Logger:   logger.With().Str("component", "llm").Logger(),
		OnResolve: func(source llm.TemplateSource) {
			if source == llm.TemplateSourceRemote {
				triageMetrics.TemplateFetches.Inc()
			}
		},
	})

	provider, err := buildProvider(appCfg, logger)
	if err != nil {
		return err
	}
	L.Info().Str("provider", provider.Name()).Msg("initialized AI provider")

	engine := triage.NewEngine(provider, triage.NewRuleEngine(), logger, triageMetrics.Hooks(),
		time.Duration(appCfg.AITimeoutSeconds)*time.Second)

	var notifier triage.Notifier
	if appCfg.SlackWebhookURL != "" {
		notifier = slack.New(appCfg.SlackWebhookURL)
		L.Info().Str("type", "slack").Msg("notifier enabled")
	}

	svc := triage.NewService(st, engine, triage.StaticProtocol(appCfg.Protocols), st, notifier, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))

	// Ops endpoints stay unauthenticated; the API itself is token-gated.
	r.Get("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/-/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	api := triageapi.New(logger, svc)
	r.Group(func(r chi.Router) {
		r.Use(authmw.BearerToken(appCfg.APIToken))
		api.RegisterRoutes(r)
	})

	var h http.Handler = r
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready" && r.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", appCfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		L.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	L.Info().Msg("shutdown signal received")

	// Let in-flight requests finish and the load balancer notice before the
	// listener goes away. A second signal skips the drain.
	drain := time.Duration(appCfg.DrainSeconds) * time.Second
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	L.Info().Int("drain_seconds", appCfg.DrainSeconds).Msg("draining")
	select {
	case <-time.After(drain):
		L.Info().Msg("drain period complete")
	case <-forceCh:
		L.Warn().Msg("second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		L.Error().Err(err).Msg("http server shutdown")
	}

	L.Info().Msg("shutdown complete")
	return nil
}

func buildProvider(c *cfg.Config, logger zerolog.Logger) (triage.Provider, error) {
	var invoker llm.Invoker
	switch c.Provider {
	case cfg.ProviderBedrock:
		invoker = bedrock.New(c.BedrockAPIKey, c.BedrockRegion, c.BedrockModelID)
	case cfg.ProviderVertex:
		invoker = vertex.New(c.VertexAccessToken, c.VertexProject, c.VertexLocation, c.VertexModel)
	case cfg.ProviderHF:
		invoker = hf.New(c.HFToken, c.HFModel)
	case cfg.ProviderKaggle:
		invoker = kaggle.New(c.KaggleAPIKey, c.KaggleBaseURL, c.KaggleModel)
	case cfg.ProviderClaude:
		invoker = claude.New(c.ClaudeAPIKey, c.ClaudeModel)
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}

	return llm.NewAssessor(invoker, llm.AssessorConfig{
		Timeout:         time.Duration(c.AITimeoutSeconds) * time.Second,
		MaxInputTokens:  c.MaxInputTokens,
		MaxOutputTokens: c.MaxOutputTokens,
		Temperature:     &c.Temperature,
	}, logger), nil
}
