package web

import (
	"context"
	"net/http"
	"time"

	"pharma-assistant/config"
	"pharma-assistant/web/handlers"
	"pharma-assistant/web/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router  *gin.Engine
	handler *handlers.AssistantHandler
	limiter *middleware.ClientRateLimiter
	logger  *zap.Logger
	config  *config.Config
}

func NewServer(handler *handlers.AssistantHandler, logger *zap.Logger, cfg *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	limiter := middleware.NewClientRateLimiter(middleware.RateLimiterConfig{
		MessagesPerMinute: cfg.RateLimitMessagesPerMin,
		BurstSize:         cfg.RateLimitBurstSize,
		CleanupInterval:   10 * time.Minute,
	}, logger)

	server := &Server{
		router:  router,
		handler: handler,
		limiter: limiter,
		logger:  logger,
		config:  cfg,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handler.Health)
	s.router.POST("/intent", s.handler.Intent)

	// Only the answering endpoints consume generation quota
	limited := s.router.Group("/", middleware.RateLimitMiddleware(s.limiter, s.logger))
	limited.POST("/chat", s.handler.Chat)
	limited.POST("/formulary-chat", s.handler.FormularyChat)
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	s.limiter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
