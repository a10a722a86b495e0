package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantdesk/mbsiq/internal/analytics"
	"github.com/quantdesk/mbsiq/internal/retrieval"
	"github.com/quantdesk/mbsiq/internal/rules"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8085).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// retriever is the interface handleAsk calls to rank rules for a question.
// *retrieval.Engine satisfies it; tests inject a fake.
type retriever interface {
	// Retrieve returns the topK rules ranked for the question.
	Retrieve(ctx context.Context, question string, topK int) ([]retrieval.ScoredRule, error)
}

// MarketData is the slice of the market store the handlers need.
// *store.SQLiteStore satisfies it; tests inject a fake.
type MarketData interface {
	// Pools returns every pool snapshot with its factor history.
	Pools(ctx context.Context) ([]analytics.Pool, error)
	// TBASecurities returns every TBA snapshot.
	TBASecurities(ctx context.Context) ([]analytics.TBASecurity, error)
}

// Server is the HTTP server that exposes retrieval and analytics over REST.
type Server struct {
	// retriever ranks rules for inbound questions.
	retriever retriever
	// rules is the business-rule corpus, used by the add-rule endpoint.
	rules *rules.Store
	// analytics computes portfolio reports.
	analytics *analytics.Engine
	// market reads pool and TBA data for the analytics endpoints.
	market MarketData
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the natural-language question to answer.
	Question string `json:"question"`
	// TopK is the number of rules to return. Zero selects the default.
	TopK int `json:"top_k,omitempty"`
}

// askRule is one ranked rule in an ask response.
type askRule struct {
	// ID is the rule identifier.
	ID string `json:"id"`
	// Text is the rule prose.
	Text string `json:"text"`
	// Category is the rule's classification.
	Category rules.Category `json:"category"`
	// Score is the combined ranking score.
	Score float64 `json:"score"`
	// Semantic and Keyword are the component scores behind Score.
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// Question echoes the question that was asked.
	Question string `json:"question"`
	// Category is the classified question category, when one was recognized.
	Category rules.Category `json:"category,omitempty"`
	// Rules is the ranked rule list.
	Rules []askRule `json:"rules"`
	// Portfolio carries the portfolio report when the question is about pool
	// factors or performance and market data is available.
	Portfolio *analytics.PortfolioReport `json:"portfolio,omitempty"`
	// TBA carries the TBA summary when the question is about TBA trading and
	// market data is available.
	TBA *analytics.TBASummary `json:"tba,omitempty"`
}

// addRuleRequest is the JSON body for POST /api/rules.
type addRuleRequest struct {
	// Text is the rule prose to add.
	Text string `json:"text"`
	// Category is the rule classification (e.g. "prepayment").
	Category string `json:"category"`
	// Keywords are the keyword phrases for keyword scoring.
	Keywords []string `json:"keywords,omitempty"`
}

// addRuleResponse is the JSON response for POST /api/rules.
type addRuleResponse struct {
	// ID is the assigned rule identifier.
	ID string `json:"id"`
}
