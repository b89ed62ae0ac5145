// Package api serves the REST, admin and notification endpoints
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
	"tipsterarena/backend/internal/reconciler"
	"tipsterarena/backend/internal/repository"
	"tipsterarena/backend/internal/tipsters"
)

// Tipsters is the user-facing workflow layer
type Tipsters interface {
	Register(ctx context.Context, username string) (*models.User, *models.TipsterProfile, error)
	Tipster(ctx context.Context, username string) (*tipsters.Tipster, error)
	Tips(ctx context.Context, userID int64, limit int) ([]*models.Tip, error)
	SubmitTip(ctx context.Context, in *models.TipInput) (*models.Tip, error)
	VerifyTip(ctx context.Context, tipID int64, status models.TipStatus) (*models.Tip, []string, error)
	Like(ctx context.Context, tipID, userID int64) (bool, error)
	Share(ctx context.Context, tipID, userID int64) (*models.Share, error)
	Comment(ctx context.Context, tipID, userID int64, body string) (*models.Comment, error)
	Subscribe(ctx context.Context, subscriberID, tipsterID int64) (bool, error)
}

// Events lists reconciled fixtures
type Events interface {
	ListByState(ctx context.Context, sport models.Sport, state models.EventState) ([]*models.Event, error)
}

// Reconciler runs reconciliation on demand
type Reconciler interface {
	Run(ctx context.Context, sports []models.Sport, opts reconciler.Options) []*reconciler.Result
}

// Evaluator re-evaluates one tipster's badges
type Evaluator interface {
	Evaluate(ctx context.Context, userID int64) ([]string, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server holds the handler dependencies
type Server struct {
	tipsters    Tipsters
	events      Events
	reconciler  Reconciler
	evaluator   Evaluator
	bus         notify.Bus
	health      HealthChecker
	adminSecret string

	// background reconciles outlive the request that started them
	baseCtx context.Context
}

// NewServer creates the handlers. ctx bounds background reconciles.
func NewServer(ctx context.Context, t Tipsters, events Events, r Reconciler, e Evaluator, bus notify.Bus, health HealthChecker, adminSecret string) *Server {
	return &Server{
		tipsters:    t,
		events:      events,
		reconciler:  r,
		evaluator:   e,
		bus:         bus,
		health:      health,
		adminSecret: adminSecret,
		baseCtx:     ctx,
	}
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/users", s.handleRegister)
		api.GET("/users/:username", s.handleGetTipster)
		api.GET("/tipsters/:id/tips", s.handleListTips)
		api.GET("/events", s.handleListEvents)
		api.POST("/tips", s.handleSubmitTip)
		api.POST("/tips/:id/likes", s.handleLike)
		api.POST("/tips/:id/shares", s.handleShare)
		api.POST("/tips/:id/comments", s.handleComment)
		api.POST("/tipsters/:id/subscribe", s.handleSubscribe)
	}

	admin := router.Group("/admin")
	admin.Use(AdminAuth(s.adminSecret))
	{
		admin.POST("/reconcile", s.handleReconcile)
		admin.POST("/tips/:id/verify", s.handleVerifyTip)
		admin.POST("/badges/:user_id/evaluate", s.handleEvaluate)
	}

	router.GET("/ws/notifications/:topic", s.handleNotifications)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPICall(route, strconv.Itoa(status), time.Since(start).Seconds())

		log.Debug().
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

// respondError maps domain errors onto status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tipsters.ErrInvalidTransition), errors.Is(err, repository.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, tipsters.ErrInvalidTip), errors.Is(err, tipsters.ErrInvalidUsername),
		errors.Is(err, models.ErrUnknownSport):
		status = http.StatusBadRequest
	case errors.Is(err, notify.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		metrics.RecordError("api", c.FullPath())
		log.Error().Err(err).Str("route", c.FullPath()).Msg("Request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
