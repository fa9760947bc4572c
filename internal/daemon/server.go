package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/config"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm/configbuilder"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/observability"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/orchestrator"
	benchrpc "github.com/aashiqmuhamed/refusalbench-studio/internal/rpc/bench"
	toolrpc "github.com/aashiqmuhamed/refusalbench-studio/internal/rpc/tools"
	workflowrpc "github.com/aashiqmuhamed/refusalbench-studio/internal/rpc/workflow"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/store"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/version"
)

// Server hosts the evaluation daemon: workflow RPC, perturbation pipelines,
// and the health/metrics/config surface the study frontend talks to.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	tools      *tool.Registry
	runner     workflowrpc.Runner
	catalogue  *bench.Catalogue
	generator  *bench.Generator
	verifier   *bench.Verifier
	evaluators []*bench.Evaluator
	store      *store.Store
}

// NewServer constructs a daemon instance from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	metrics := observability.NewMetrics()
	toolRegistry := tool.NewRegistry()

	orchModel := cfg.Models[cfg.Workflow.OrchestratorModel]
	orchProvider := cfg.Providers[orchModel.Provider]
	client := orchestrator.NewAnthropicClient(orchProvider.BaseURL, orchProvider.APIKey)

	execProvider, execRoute, err := registry.Resolve(cfg.Workflow.ExecutionModel)
	if err != nil {
		return nil, fmt.Errorf("resolve execution model: %w", err)
	}

	orch := orchestrator.New(client, toolRegistry, execProvider, execRoute, orchestrator.Config{
		Model:         orchModel.Model,
		MaxTokens:     orchModel.MaxTokens,
		Temperature:   orchModel.Temperature,
		MaxTurns:      cfg.Workflow.MaxTurns,
		MaxConcurrent: cfg.Workflow.MaxConcurrent,
	}, logger)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		tools:     toolRegistry,
		runner:    &workflowrpc.WorkflowRunner{Orchestrator: orch, Metrics: metrics, Logger: logger},
		catalogue: bench.NewCatalogue(),
	}

	if err := s.buildPipelines(registry); err != nil {
		return nil, err
	}

	if cfg.Database.Enabled {
		st, err := store.Open(cfg.Database.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = st
	}

	return s, nil
}

// buildPipelines wires the generator, verifier, and evaluator pipelines from
// the configured model ids. Unset pipelines are left nil and their endpoints
// answer 503.
func (s *Server) buildPipelines(registry *llm.Registry) error {
	p := s.cfg.Pipelines

	if strings.TrimSpace(p.GeneratorModel) != "" {
		provider, route, err := registry.Resolve(p.GeneratorModel)
		if err != nil {
			return fmt.Errorf("resolve generator model: %w", err)
		}
		s.generator = bench.NewGenerator(provider, route, p.MaxConcurrent, p.MaxRetries, s.logger)
	}

	var verifiers []bench.VerifierModel
	for _, name := range p.VerifierModels {
		provider, route, err := registry.Resolve(name)
		if err != nil {
			return fmt.Errorf("resolve verifier model %q: %w", name, err)
		}
		verifiers = append(verifiers, bench.VerifierModel{Name: name, Provider: provider, Route: route})
	}
	s.verifier = bench.NewVerifier(verifiers, p.MaxConcurrent, p.MaxRetries, s.logger)

	for _, name := range p.EvaluatorModels {
		provider, route, err := registry.Resolve(name)
		if err != nil {
			return fmt.Errorf("resolve evaluator model %q: %w", name, err)
		}
		engineName := p.EngineModel
		if strings.TrimSpace(engineName) == "" {
			engineName = name
		}
		engine, engineRoute, err := registry.Resolve(engineName)
		if err != nil {
			return fmt.Errorf("resolve engine model %q: %w", engineName, err)
		}
		s.evaluators = append(s.evaluators, bench.NewEvaluator(provider, route, engine, engineRoute, p.MaxConcurrent, p.MaxRetries, s.logger))
	}

	return nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	if s.store != nil {
		if err := s.store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		defer s.store.Close()
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.metricsHandler).Methods(http.MethodGet)
	router.HandleFunc("/config", s.configHandler).Methods(http.MethodGet)
	router.Handle("/tools/schemas", toolrpc.SchemaHandler{Registry: s.tools}).Methods(http.MethodGet)

	router.Handle("/perturb", &benchrpc.PerturbHandler{Generator: s.generator, Metrics: s.metrics, Logger: s.logger}).Methods(http.MethodPost)
	router.Handle("/verify", &benchrpc.VerifyHandler{Verifier: s.verifier, Metrics: s.metrics, Logger: s.logger}).Methods(http.MethodPost)
	router.Handle("/evaluate", &benchrpc.EvaluateHandler{Evaluators: s.evaluators, Metrics: s.metrics, Logger: s.logger}).Methods(http.MethodPost)

	resultsHandler := &benchrpc.ResultsHandler{Logger: s.logger}
	choiceHandler := &benchrpc.ChoiceHandler{Logger: s.logger}
	if s.store != nil {
		resultsHandler.Store = s.store
		choiceHandler.Store = s.store
	}
	router.Handle("/results", resultsHandler).Methods(http.MethodPost)
	router.Handle("/workflow/choice", choiceHandler).Methods(http.MethodPost)

	transport := strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport))
	switch transport {
	case "ndjson":
		router.Handle("/workflow/run", workflowrpc.NewHandler(s.runner, s.metrics)).Methods(http.MethodPost)
	default:
		path, handler := workflowrpc.NewConnectHandler(s.runner, s.metrics)
		router.Handle(path, handler)
		// keep the NDJSON path available for clients that cannot speak h2c
		router.Handle("/workflow/run", workflowrpc.NewHandler(s.runner, s.metrics)).Methods(http.MethodPost)
	}

	handler := http.Handler(router)
	if transport != "ndjson" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting refusalbench daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down refusalbench daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Connect-Protocol-Version")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version.Full()})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// modelView is the sanitized model description exposed to the frontend.
// Provider credentials never leave the daemon.
type modelView struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	Provider     string `json:"provider"`
	ProviderType string `json:"provider_type"`
	Default      bool   `json:"default,omitempty"`
}

type configView struct {
	Version   string      `json:"version"`
	Models    []modelView `json:"models"`
	Workflow  interface{} `json:"workflow"`
	Catalogue interface{} `json:"catalogue"`
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	models := make([]modelView, 0, len(s.cfg.Models))
	for id, m := range s.cfg.Models {
		models = append(models, modelView{
			ID:           id,
			DisplayName:  m.DisplayName,
			Provider:     m.Provider,
			ProviderType: s.cfg.Providers[m.Provider].Type,
			Default:      m.Default,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	view := configView{
		Version: s.cfg.Version,
		Models:  models,
		Workflow: map[string]interface{}{
			"orchestrator_model": s.cfg.Workflow.OrchestratorModel,
			"execution_model":    s.cfg.Workflow.ExecutionModel,
			"max_turns":          s.cfg.Workflow.MaxTurns,
		},
		Catalogue: map[string]interface{}{
			"classes":     s.catalogue.Classes(),
			"intensities": s.catalogue.Intensities(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}
