// Package server exposes the notification pipeline over HTTP for
// deployments that front EventBridge with an API instead of Lambda.
package server

import (
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/haneul-ops/ec2notify/internal/handler"
	"github.com/haneul-ops/ec2notify/internal/models"
	"github.com/haneul-ops/ec2notify/pkg/slack"
)

// Server is the HTTP intake around a Handler.
type Server struct {
	handler *handler.Handler
	logger  *zap.Logger
	engine  *gin.Engine
}

// New builds the router. Gin runs in release mode; request logging goes
// through zap rather than gin's default writer.
func New(h *handler.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{handler: h, logger: logger, engine: engine}

	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.POST("/v1/events", s.postEvent)

	return s
}

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error {
	s.logger.Info("http intake listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// postEvent accepts an EventBridge-style envelope, the same shape the
// Lambda entry receives.
func (s *Server) postEvent(c *gin.Context) {
	var event events.CloudWatchEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event envelope: " + err.Error()})
		return
	}

	err := s.handler.HandleLambda(c.Request.Context(), event)
	if err == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "delivered"})
		return
	}

	s.logger.Error("event processing failed", zap.Error(err))

	var unsupported *models.UnsupportedStateError
	var delivery *slack.DeliveryError
	switch {
	case errors.As(err, &unsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &delivery):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
