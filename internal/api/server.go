// Package api exposes the minimal HTTP surface the control room uses to
// drive the engine from outside the session task: login, config
// read/write, scanner start/stop, and a trade-history read. It never
// reaches into the session task directly; writes go through a small
// ControlPlane interface and reads come from the Redis-backed config
// snapshot and the Postgres-backed trade history.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"signalengine/config"
	"signalengine/internal/auth"
	"signalengine/internal/cache"
	"signalengine/internal/scanner"
)

// ControlPlane is the subset of the auto-trader session the HTTP surface
// is allowed to touch: config swaps go through the control mailbox, never
// through direct state mutation (spec's "HTTP handlers are outside the
// session task").
type ControlPlane interface {
	UpdateParams(ctx context.Context, cfg config.AnalysisDefaultConfig) error
	UpdateMode(ctx context.Context, mode string) error
}

// Server wraps the gin engine and its dependencies.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	log        zerolog.Logger

	jwt      *auth.JWTManager
	cache    *cache.Cache
	scanner  *scanner.Scanner
	control  ControlPlane
	sink     TradeHistoryReader

	loginUser string
	loginHash string
}

// TradeHistoryReader reads settled trades back out for the GET /trades
// endpoint.
type TradeHistoryReader interface {
	RecentTrades(ctx context.Context, limit int) ([]TradeSummary, error)
}

// TradeSummary is the shape returned by GET /trades.
type TradeSummary struct {
	ContractID string  `json:"contract_id"`
	Symbol     string  `json:"symbol"`
	TradeType  string  `json:"trade_type"`
	ProfitLoss float64 `json:"profit_loss"`
	Status     string  `json:"status"`
	TradeDate  string  `json:"trade_date"`
}

// Dependencies bundles everything NewServer needs.
type Dependencies struct {
	JWTManager   *auth.JWTManager
	Cache        *cache.Cache
	Scanner      *scanner.Scanner
	Control      ControlPlane
	TradeHistory TradeHistoryReader
	LoginUser    string // the single operator login (no multi-user accounts, per Non-goals)
	LoginHash    string // bcrypt hash of the operator password
	AllowedOrigins string
	Log          zerolog.Logger
}

// NewServer builds the HTTP surface and registers all routes.
func NewServer(deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Log))

	corsConfig := cors.DefaultConfig()
	if deps.AllowedOrigins == "" || deps.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{deps.AllowedOrigins}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		log:       deps.Log,
		jwt:       deps.JWTManager,
		cache:     deps.Cache,
		scanner:   deps.Scanner,
		control:   deps.Control,
		sink:      deps.TradeHistory,
		loginUser: deps.LoginUser,
		loginHash: deps.LoginHash,
	}
	s.setupRoutes()
	return s
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/auth/login", s.handleLogin)

	protected := s.router.Group("/")
	protected.Use(auth.Middleware(s.jwt))
	{
		protected.GET("/config", s.handleGetConfig)
		protected.POST("/config", s.handleUpdateConfig)
		protected.POST("/scanner/start", s.handleScannerStart)
		protected.POST("/scanner/stop", s.handleScannerStop)
		protected.GET("/trades", s.handleGetTrades)
	}
}

// Start runs the HTTP server until the process is asked to shut down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("http server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("run http server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
