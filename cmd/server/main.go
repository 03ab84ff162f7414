package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/propagation/event"
	"github.com/liamcoop/propagation/internal/config"
	"github.com/liamcoop/propagation/internal/logger"
	"github.com/liamcoop/propagation/internal/metrics"
	"github.com/liamcoop/propagation/propagation"
	"github.com/liamcoop/propagation/rules"
	"github.com/liamcoop/propagation/workitem"
)

// maxBodyBytes caps webhook and rule document bodies
const maxBodyBytes = 1 << 20

// Dependencies are the collaborators a Server is built from
type Dependencies struct {
	Config    *config.Config
	Gateway   *rules.Gateway
	Processor *propagation.Processor
	Manager   *workitem.Manager
	Metrics   *metrics.Metrics

	// HealthCheck probes the rule document backend. May be nil.
	HealthCheck func(ctx context.Context) error
}

type Server struct {
	config      *config.Config
	gateway     *rules.Gateway
	processor   *propagation.Processor
	manager     *workitem.Manager
	metrics     *metrics.Metrics
	healthCheck func(ctx context.Context) error
	limiter     *clientLimiter
	router      *chi.Mux
}

func NewServer(deps Dependencies) *Server {
	s := &Server{
		config:      deps.Config,
		gateway:     deps.Gateway,
		processor:   deps.Processor,
		manager:     deps.Manager,
		metrics:     deps.Metrics,
		healthCheck: deps.HealthCheck,
	}

	if s.config.RateLimitEnabled() {
		s.limiter = newClientLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst)
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	// Health check and metrics
	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Service hook deliveries
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		s.useBasicAuth(r)

		r.Post("/webhook/workitem/update", s.handleWebhook)
		r.Post("/api/v1/webhook/workitem/update", s.handleWebhook)
	})

	// Rule document management
	r.Route("/api/v1/rules", func(r chi.Router) {
		s.useBasicAuth(r)

		r.Get("/", s.handleListRules)
		r.Get("/{type}", s.handleGetRule)
		r.Put("/{type}", s.handlePutRule)
		r.Delete("/{type}", s.handleDeleteRule)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) useBasicAuth(r chi.Router) {
	if !s.config.BasicAuthEnabled() {
		return
	}
	r.Use(middleware.BasicAuth("propagation", map[string]string{
		s.config.WebhookUsername: s.config.WebhookPassword.Value(),
	}))
}

// rateLimit refuses requests from clients over their token bucket
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			s.metrics.RecordRateLimited()
			logger.Warn("rate limit exceeded", "ip", ip)
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger counts 4xx/5xx responses and logs every request at debug level
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
		case status >= 400:
			logger.WarnHttp4xx(status)
		}

		logger.Debug("request completed",
			"requestId", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:        "healthy",
		Backend:       s.config.RulesBackend,
		Organizations: s.manager.ListOrganizations(),
	}

	if s.healthCheck != nil {
		if err := s.healthCheck(r.Context()); err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// Webhook handler
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ev, err := event.Normalize(r.Body)
	if err != nil {
		s.metrics.RecordInvalidEvent()
		logger.Warn("invalid webhook delivery", "requestId", middleware.GetReqID(r.Context()), "error", err)
		respondError(w, http.StatusBadRequest, "The sent event are not from the correct type or hasn't a valid id or work item.", err)
		return
	}

	deliveryID := uuid.NewString()
	out := s.processor.Process(r.Context(), deliveryID, ev)

	w.Header().Set("X-Delivery-Id", deliveryID)
	respondJSON(w, http.StatusOK, WebhookResponse{
		Outcome:    out.Kind.String(),
		Message:    out.Message,
		DeliveryID: deliveryID,
	})
}

// List rule documents handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	types, err := s.gateway.ListTypes(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rule documents", err)
		return
	}

	respondJSON(w, http.StatusOK, RuleTypesResponse{Types: types})
}

// Get rule document handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	workItemType := chi.URLParam(r, "type")

	doc, err := s.gateway.Document(r.Context(), workItemType)
	if err != nil {
		if errors.Is(err, rules.ErrNoRules) {
			respondError(w, http.StatusNotFound, "rule document not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get rule document", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !doc.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", doc.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Content)
}

// Put rule document handler
func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	workItemType := chi.URLParam(r, "type")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rs, err := s.gateway.Save(r.Context(), workItemType, body)
	if err != nil {
		if errors.Is(err, rules.ErrInvalidDocument) {
			respondError(w, http.StatusBadRequest, "invalid rule document", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to store rule document", err)
		return
	}

	s.metrics.RecordRuleDocumentWrite("put")
	logger.Info("rule document stored", "workItemType", workItemType, "rules", len(rs.Rules))

	respondJSON(w, http.StatusOK, RuleDocumentResponse{
		Type:  workItemType,
		Key:   rules.DocumentKey(workItemType),
		Rules: len(rs.Rules),
	})
}

// Delete rule document handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	workItemType := chi.URLParam(r, "type")

	if err := s.gateway.Delete(r.Context(), workItemType); err != nil {
		if errors.Is(err, rules.ErrNoRules) {
			respondError(w, http.StatusNotFound, "rule document not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete rule document", err)
		return
	}

	s.metrics.RecordRuleDocumentWrite("delete")
	logger.Info("rule document deleted", "workItemType", workItemType)

	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// openDocumentStore connects the configured rule document backend
func openDocumentStore(ctx context.Context, cfg *config.Config) (rules.DocumentStore, func(context.Context) error, func(), error) {
	switch cfg.RulesBackend {
	case config.BackendBlob:
		store, err := rules.NewBlobDocumentStoreFromConnectionString(cfg.AzureStorageConnectionString.Value(), cfg.RulesContainer)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.EnsureContainer(ctx); err != nil {
			return nil, nil, nil, err
		}
		health := func(ctx context.Context) error {
			_, err := store.List(ctx)
			return err
		}
		return store, health, func() {}, nil

	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL.Value())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return rules.NewPostgresDocumentStore(db), db.PingContext, func() { db.Close() }, nil

	default:
		return rules.NewInMemoryDocumentStore(), nil, func() {}, nil
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Setup(ctx, logger.Options{
		Level:           cfg.LogLevel,
		ErrorSampleRate: cfg.ErrorSampleRate,
		OTELEnabled:     cfg.OTELEnabled,
		ServiceName:     cfg.OTELServiceName,
	}); err != nil {
		logger.Warn("logger setup degraded", "error", err)
	}
	defer logger.Shutdown(context.Background())

	store, healthCheck, closeStore, err := openDocumentStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s rule store: %w", cfg.RulesBackend, err)
	}
	defer closeStore()

	gateway := rules.NewGateway(store, rules.NewInMemoryRuleSetCache(rules.CacheConfig{TTL: cfg.RulesCacheTTL}))

	manager := workitem.NewManager(workitem.ManagerConfig{
		BaseURL:              cfg.DevOpsBaseURL,
		DefaultOrganization:  cfg.DevOpsDefaultOrganization,
		AllowedOrganizations: cfg.DevOpsAllowedOrganizations,
	}, workitem.DevOpsFactory(cfg.DevOpsPAT.Value()))

	m := metrics.Default()

	server := NewServer(Dependencies{
		Config:      cfg,
		Gateway:     gateway,
		Processor:   propagation.NewProcessor(gateway, manager, m),
		Manager:     manager,
		Metrics:     m,
		HealthCheck: healthCheck,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", httpServer.Addr,
			"backend", cfg.RulesBackend,
			"cacheTtl", cfg.RulesCacheTTL.String(),
			"basicAuth", cfg.BasicAuthEnabled(),
			"rateLimit", cfg.RateLimitEnabled(),
		)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}
