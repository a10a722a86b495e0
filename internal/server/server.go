// Package server implements the HTTP server that exposes rule retrieval and
// portfolio analytics via a REST API. The server is started by the
// `mbsiq serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantdesk/mbsiq/internal/analytics"
	"github.com/quantdesk/mbsiq/internal/logging"
	"github.com/quantdesk/mbsiq/internal/retrieval"
	"github.com/quantdesk/mbsiq/internal/rules"
)

// New constructs a Server from the provided components and config.
// reg receives the server's Prometheus metrics; pass a fresh registry in
// tests to keep them hermetic.
func New(ret retriever, ruleStore *rules.Store, eng *analytics.Engine, market MarketData, cfg *Config, reg prometheus.Registerer) (*Server, error) {
	if ret == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if ruleStore == nil {
		return nil, fmt.Errorf("server: rule store must not be nil")
	}
	if eng == nil {
		return nil, fmt.Errorf("server: analytics engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8085
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		retriever: ret,
		rules:     ruleStore,
		analytics: eng,
		market:    market,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: API key not configured — authentication disabled")
	}

	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", protected(s.handleAsk))
	mux.Handle("POST /api/rules", protected(s.handleAddRule))
	mux.Handle("GET /api/portfolio/report", protected(s.handlePortfolioReport))
	mux.Handle("GET /api/tba/summary", protected(s.handleTBASummary))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metricsGatherer(reg), promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the server's root handler, for use in httptest servers.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// handleAsk handles POST /api/ask. It ranks rules for the question and, when
// the question classifies into an analytics category, attaches the matching
// market-data summary to the response.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	scored, err := s.retriever.Retrieve(r.Context(), req.Question, req.TopK)
	if err != nil {
		log.Error("retrieve failed", slog.Any("error", err))
		s.metrics.askRequestsTotal.WithLabelValues("error").Inc()
		http.Error(w, "retrieval failed", http.StatusInternalServerError)
		return
	}

	resp := askResponse{Question: req.Question, Rules: make([]askRule, 0, len(scored))}
	for _, sr := range scored {
		resp.Rules = append(resp.Rules, askRule{
			ID:       sr.Rule.ID,
			Text:     sr.Rule.Text,
			Category: sr.Rule.Category,
			Score:    sr.Score,
			Semantic: sr.Semantic,
			Keyword:  sr.Keyword,
		})
	}

	if category, ok := retrieval.GuessCategory(req.Question); ok {
		resp.Category = category
		s.attachAnalytics(r.Context(), &resp, category, log)
	}

	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.askDurationSeconds.Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, resp, log)
}

// attachAnalytics enriches an ask response with the market-data view matching
// the question's category. Analytics failures degrade to rules-only answers
// rather than failing the request.
func (s *Server) attachAnalytics(ctx context.Context, resp *askResponse, category rules.Category, log *slog.Logger) {
	if s.market == nil {
		return
	}
	switch category {
	case rules.CategoryPoolFactor, rules.CategoryPerformance:
		pools, err := s.market.Pools(ctx)
		if err != nil {
			log.Warn("ask: pool data unavailable", slog.Any("error", err))
			return
		}
		report, err := s.analytics.AnalyzePortfolio(pools)
		if err != nil {
			if !errors.Is(err, analytics.ErrEmptyPortfolio) {
				log.Warn("ask: portfolio analysis failed", slog.Any("error", err))
			}
			return
		}
		resp.Portfolio = report
	case rules.CategoryTBA:
		secs, err := s.market.TBASecurities(ctx)
		if err != nil {
			log.Warn("ask: tba data unavailable", slog.Any("error", err))
			return
		}
		summary, err := analytics.SummarizeTBA(secs)
		if err != nil {
			if !errors.Is(err, analytics.ErrEmptyPortfolio) {
				log.Warn("ask: tba summary failed", slog.Any("error", err))
			}
			return
		}
		resp.TBA = summary
	}
}

// handleAddRule handles POST /api/rules. The new rule is embedded and indexed
// synchronously, so it is retrievable as soon as the response returns.
func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req addRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	category, err := rules.ParseCategory(req.Category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.rules.AddNew(r.Context(), req.Text, category, req.Keywords)
	if err != nil {
		log.Error("add rule failed", slog.Any("error", err))
		http.Error(w, "could not add rule", http.StatusInternalServerError)
		return
	}

	s.metrics.rulesAddedTotal.Inc()
	log.Info("rule added", slog.String("rule_id", id), slog.String("category", string(category)))
	writeJSON(w, http.StatusCreated, addRuleResponse{ID: id}, log)
}

// handlePortfolioReport handles GET /api/portfolio/report.
func (s *Server) handlePortfolioReport(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.market == nil {
		http.Error(w, "market data not configured", http.StatusServiceUnavailable)
		return
	}
	pools, err := s.market.Pools(r.Context())
	if err != nil {
		log.Error("pool data unavailable", slog.Any("error", err))
		http.Error(w, "market data unavailable", http.StatusInternalServerError)
		return
	}
	report, err := s.analytics.AnalyzePortfolio(pools)
	if err != nil {
		if errors.Is(err, analytics.ErrEmptyPortfolio) {
			http.Error(w, "no pool data loaded", http.StatusNotFound)
			return
		}
		log.Error("portfolio analysis failed", slog.Any("error", err))
		http.Error(w, "analysis failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report, log)
}

// handleTBASummary handles GET /api/tba/summary.
func (s *Server) handleTBASummary(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.market == nil {
		http.Error(w, "market data not configured", http.StatusServiceUnavailable)
		return
	}
	secs, err := s.market.TBASecurities(r.Context())
	if err != nil {
		log.Error("tba data unavailable", slog.Any("error", err))
		http.Error(w, "market data unavailable", http.StatusInternalServerError)
		return
	}
	summary, err := analytics.SummarizeTBA(secs)
	if err != nil {
		if errors.Is(err, analytics.ErrEmptyPortfolio) {
			http.Error(w, "no tba data loaded", http.StatusNotFound)
			return
		}
		log.Error("tba summary failed", slog.Any("error", err))
		http.Error(w, "analysis failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary, log)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}
