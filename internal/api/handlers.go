package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/reconciler"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
}

type engagementRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

type commentRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Body   string `json:"body" binding:"required"`
}

type subscribeRequest struct {
	SubscriberID int64 `json:"subscriber_id" binding:"required"`
}

type verifyRequest struct {
	Status models.TipStatus `json:"status" binding:"required"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, profile, err := s.tipsters.Register(c.Request.Context(), req.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "profile": profile})
}

func (s *Server) handleGetTipster(c *gin.Context) {
	tipster, err := s.tipsters.Tipster(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tipster)
}

func (s *Server) handleListTips(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit := 0
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	tips, err := s.tipsters.Tips(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "tips": tips})
}

// handleListEvents lists one sport's events in a state, live ones by default
func (s *Server) handleListEvents(c *gin.Context) {
	sport, err := models.ParseSport(c.Query("sport"))
	if err != nil {
		badRequest(c, err)
		return
	}
	state := models.EventState(c.DefaultQuery("state", string(models.StateIn)))
	switch state {
	case models.StatePre, models.StateIn, models.StatePost:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be pre, in or post"})
		return
	}

	events, err := s.events.ListByState(c.Request.Context(), sport, state)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"sport": sport, "state": state, "events": events})
}

func (s *Server) handleSubmitTip(c *gin.Context) {
	var in models.TipInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	tip, err := s.tipsters.SubmitTip(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tip)
}

func (s *Server) handleLike(c *gin.Context) {
	tipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req engagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := s.tipsters.Like(c.Request.Context(), tipID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"tip_id": tipID, "user_id": req.UserID, "created": created})
}

func (s *Server) handleShare(c *gin.Context) {
	tipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req engagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	share, err := s.tipsters.Share(c.Request.Context(), tipID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}

func (s *Server) handleComment(c *gin.Context) {
	tipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	comment, err := s.tipsters.Comment(c.Request.Context(), tipID, req.UserID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) handleSubscribe(c *gin.Context) {
	tipsterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := s.tipsters.Subscribe(c.Request.Context(), req.SubscriberID, tipsterID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"tipster_id": tipsterID, "subscriber_id": req.SubscriberID, "created": created})
}

func (s *Server) handleVerifyTip(c *gin.Context) {
	tipID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tip, awarded, err := s.tipsters.VerifyTip(c.Request.Context(), tipID, req.Status)
	if err != nil && tip == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		// Settled, but the badge pass failed; the next evaluation catches up
		log.Error().Err(err).Int64("tip_id", tipID).Msg("Badge evaluation after settlement failed")
	}
	if awarded == nil {
		awarded = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tip": tip, "awarded": awarded})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	awarded, err := s.evaluator.Evaluate(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if awarded == nil {
		awarded = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "awarded": awarded})
}

// handleReconcile starts a run in the background and returns at once
func (s *Server) handleReconcile(c *gin.Context) {
	var sports []models.Sport
	if name := c.Query("sport"); name != "" {
		sport, err := models.ParseSport(name)
		if err != nil {
			badRequest(c, err)
			return
		}
		sports = []models.Sport{sport}
	}

	opts := reconciler.Options{}
	if d := c.Query("date"); d != "" {
		date, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		opts.Date = date
	}
	if f := c.Query("force"); f != "" {
		force, err := strconv.ParseBool(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "force must be a boolean"})
			return
		}
		opts.Force = force
	}

	log.Info().
		Interface("sports", sports).
		Str("date", c.Query("date")).
		Bool("force", opts.Force).
		Str("admin", c.GetString("admin_subject")).
		Msg("Reconcile requested")

	go func() {
		for _, res := range s.reconciler.Run(s.baseCtx, sports, opts) {
			if res.Err != nil {
				log.Warn().Err(res.Err).Str("sport", string(res.Sport)).Msg("Requested reconcile failed")
			}
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"sports": sports,
		"date":   c.Query("date"),
		"force":  opts.Force,
	})
}
