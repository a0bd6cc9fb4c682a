package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reconstudy/internal/dataset"
	"reconstudy/internal/models"
	"reconstudy/internal/session"
	"reconstudy/internal/worker"
	"reconstudy/internal/workflow"
)

// Handler wires HTTP routes to the study workflow.
type Handler struct {
	sessions   *session.Store
	controller *workflow.Controller
	library    *dataset.Library
	dispatch   *worker.Dispatcher
}

// NewHandler constructs a Handler instance.
func NewHandler(sessions *session.Store, controller *workflow.Controller, library *dataset.Library, dispatch *worker.Dispatcher) *Handler {
	return &Handler{
		sessions:   sessions,
		controller: controller,
		library:    library,
		dispatch:   dispatch,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/session", h.createSession)

	authed := api.Group("")
	authed.Use(h.sessions.Middleware(), h.sessions.CSRFMiddleware())
	authed.GET("/session", h.sessionSummary)
	authed.POST("/session/logout", h.logout)

	authed.GET("/levels/:level", h.beginLevel)
	authed.POST("/levels/:level/analyze", h.analyzeLevel)
	authed.GET("/levels/:level/display", h.displayLevel)
	authed.POST("/levels/:level/submit", h.submitLevel)

	authed.POST("/cooperative/decision", h.cooperativeDecision)
	authed.POST("/cooperative/next", h.cooperativeNext)
	authed.POST("/supervisory/note", h.supervisorNote)

	authed.POST("/errors", h.addError)
	authed.POST("/suggestions", h.suggestions)

	authed.GET("/documents/invoice", h.showInvoice)
	authed.GET("/documents/purchase", h.showPurchase)
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return
	}
	csrfToken, err := h.sessions.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return
	}
	h.setSessionCookies(c, sess.Token, csrfToken)
	c.JSON(http.StatusCreated, gin.H{
		"user_id":       sess.UserID,
		"session_token": sess.Token,
		"csrf_token":    csrfToken,
	})
}

func (h *Handler) sessionSummary(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      sess.UserID,
		"active_level": sess.ActiveLevel,
		"completed":    sess.Completed,
		"used_pairs":   len(sess.UsedDocumentIDs),
	})
}

func (h *Handler) logout(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), sess.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	h.dispatch.CancelUser(sess.UserID)
	h.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) beginLevel(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	level, err := models.ParseLevel(c.Param("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.controller.Begin(sess, level)
	h.respond(c, sess, out, err)
}

func (h *Handler) analyzeLevel(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	if !h.checkLevelParam(c, sess) {
		return
	}
	out, err := h.controller.Analyze(c.Request.Context(), sess)
	h.respond(c, sess, out, err)
}

func (h *Handler) displayLevel(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	if !h.checkLevelParam(c, sess) {
		return
	}
	out, err := h.controller.Display(sess)
	if err != nil {
		h.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type submitRequest struct {
	Errors  []models.Discrepancy `json:"errors"`
	Booking string               `json:"booking"`
}

func (h *Handler) submitLevel(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	if !h.checkLevelParam(c, sess) {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.controller.Submit(sess, req.Errors, models.ParseBooking(req.Booking))
	h.respond(c, sess, out, err)
}

type cooperativeDecisionRequest struct {
	FirstDecision  string `json:"first_decision"`
	SecondDecision string `json:"second_decision"`
	AIInstructions string `json:"ai_instructions"`
}

func (h *Handler) cooperativeDecision(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req cooperativeDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.controller.CooperativeDecide(c.Request.Context(), sess,
		req.FirstDecision, req.SecondDecision, req.AIInstructions)
	h.respond(c, sess, out, err)
}

type cooperativeNextRequest struct {
	NextDecision string `json:"next_decision"`
}

func (h *Handler) cooperativeNext(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req cooperativeNextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.controller.CooperativeNext(sess, req.NextDecision)
	h.respond(c, sess, out, err)
}

type supervisorNoteRequest struct {
	SupervisorNote string `json:"supervisor_note"`
	Booking        string `json:"booking"`
}

func (h *Handler) supervisorNote(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req supervisorNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.controller.SupervisorNote(sess, req.SupervisorNote, models.ParseBooking(req.Booking))
	h.respond(c, sess, out, err)
}

func (h *Handler) addError(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var d models.Discrepancy
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.controller.AddError(sess, d); err != nil {
		h.workflowError(c, err)
		return
	}
	if err := h.sessions.Save(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save session failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": sess.Task.HumanErrors})
}

type suggestionsRequest struct {
	Errors      []models.Discrepancy  `json:"errors"`
	Corrections []workflow.Correction `json:"corrections"`
}

func (h *Handler) suggestions(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req suggestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	remark, validated, err := h.controller.Suggestions(c.Request.Context(), sess, req.Errors, req.Corrections)
	if err != nil {
		h.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"suggestions":           remark,
		"validated_corrections": validated,
	})
}

func (h *Handler) showInvoice(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	if sess.Task == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no invoice selected"})
		return
	}
	c.File(h.library.InvoicePath(sess.Task.Pair))
}

func (h *Handler) showPurchase(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	if sess.Task == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no purchase order selected"})
		return
	}
	c.File(h.library.PurchasePath(sess.Task.Pair))
}

// respond persists the mutated session, then writes the outcome.
func (h *Handler) respond(c *gin.Context, sess *session.Session, out *workflow.Outcome, err error) {
	if err != nil {
		h.workflowError(c, err)
		return
	}
	if err := h.sessions.Save(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save session failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) workflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	case errors.Is(err, workflow.ErrNoTask),
		errors.Is(err, workflow.ErrWrongLevel),
		errors.Is(err, workflow.ErrNotAnalyzed),
		errors.Is(err, workflow.ErrNoteRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// checkLevelParam rejects operations addressed to a level the session is not
// currently in.
func (h *Handler) checkLevelParam(c *gin.Context, sess *session.Session) bool {
	level, err := models.ParseLevel(c.Param("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if sess.ActiveLevel != level {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level is not active"})
		return false
	}
	return true
}

func (h *Handler) currentSession(c *gin.Context) (*session.Session, bool) {
	sess, ok := session.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return nil, false
	}
	return sess, true
}

func (h *Handler) setSessionCookies(c *gin.Context, token, csrfToken string) {
	ttl := int(h.sessions.TTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     session.CSRFCookieName,
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookies(c *gin.Context) {
	for _, name := range []string{session.CookieName, session.CSRFCookieName} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == session.CookieName,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
