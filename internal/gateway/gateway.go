// Package gateway serves the public HTTP surface: chat streaming over SSE,
// session and model management, health probes and metrics. It owns session
// state and forwards user turns to the agent service over gRPC.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/config"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/llm"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc/agentpb"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/session"
)

// AgentClient is the slice of the rpc client the gateway needs.
type AgentClient interface {
	Stream(ctx context.Context, req *agentpb.MessageRequest) (<-chan *agentpb.StreamChunk, error)
	Health(ctx context.Context) (*agentpb.HealthCheckResponse, error)
}

// Server is the HTTP/SSE gateway.
type Server struct {
	cfg       *config.GatewayConfig
	engine    *gin.Engine
	httpSrv   *http.Server
	sessions  *session.Store
	models    *llm.Manager
	agent     AgentClient
	logger    logging.Logger
	startTime time.Time
}

// NewServer builds the gateway over a session store, model catalog and agent
// connection.
func NewServer(cfg *config.GatewayConfig, sessions *session.Store, models *llm.Manager, agentClient AgentClient) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		cfg:       cfg,
		engine:    engine,
		sessions:  sessions,
		models:    models,
		agent:     agentClient,
		logger:    logging.NewComponentLogger("gateway"),
		startTime: time.Now(),
	}

	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.logger))
	engine.Use(metricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	s.routes()

	s.httpSrv = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: engine,
	}
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.POST("/chat/stream", s.handleChatStream)

	api.POST("/session/new", s.handleNewSession)
	api.GET("/sessions", s.handleListSessions)
	api.DELETE("/session/:id", s.handleDeleteSession)
	api.PUT("/session/:id/name", s.handleRenameSession)
	api.PUT("/session/:id/model", s.handleSetSessionModel)
	api.GET("/session/:id/model", s.handleGetSessionModel)
	api.POST("/clear/:id", s.handleClearSession)

	api.GET("/models", s.handleListModels)
	api.GET("/models/:id", s.handleGetModel)

	api.GET("/health", s.handleHealth)
	api.GET("/ready", s.handleReady)
	api.GET("/live", s.handleLive)

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("gateway listening on %s (agent at %s)", s.cfg.ListenAddr, s.cfg.AgentAddr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gateway shutting down")
	return s.httpSrv.Shutdown(ctx)
}

func respondError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "error": msg})
}
