package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"voiceconfirm/internal/auth"
	"voiceconfirm/internal/calls"
	"voiceconfirm/internal/orders"
	"voiceconfirm/internal/rbac"
	"voiceconfirm/internal/voice"
	"voiceconfirm/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth         *auth.Manager
	Orchestrator *calls.Orchestrator
	Reader       *calls.Reader

	// ResolveRole re-resolves a user's role on refresh; refresh tokens do
	// not carry one.
	ResolveRole func(ctx context.Context, userID string) (string, error)

	// Now is injectable for tests.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: Credential validation lives in the identity service; this endpoint
// trusts the gateway in front of it.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a valid refresh token for a new pair.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	role := rbac.RoleMerchant
	if h.ResolveRole != nil {
		role, err = h.ResolveRole(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role resolution failed"})
			return
		}
	}
	pair, err := h.Auth.IssuePair(h.now(), claims.UserID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type initiateCallRequest struct {
	Language string `json:"language,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`
}

// InitiateCall places a confirmation call for an order.
// POST /v1/orders/:order_id/calls
func (h Handlers) InitiateCall(c *gin.Context) {
	log := logger.FromGin(c)

	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	role, _ := auth.Role(c.Request.Context())

	var req initiateCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	rec, err := h.Orchestrator.InitiateConfirmationCall(c.Request.Context(), calls.InitiateRequest{
		OrderID:     c.Param("order_id"),
		RequesterID: userID,
		Admin:       rbac.IsAdmin(role),
		Language:    req.Language,
		VoiceID:     req.VoiceID,
	})
	if err != nil {
		h.writeCallError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetCall returns one call record.
// GET /v1/calls/:call_id
func (h Handlers) GetCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	role, _ := auth.Role(c.Request.Context())

	rec, err := h.Reader.GetCall(c.Request.Context(), c.Param("call_id"), userID, rbac.IsAdmin(role))
	if err != nil {
		if errors.Is(err, calls.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListCalls returns the caller's call history, newest first.
// GET /v1/calls
func (h Handlers) ListCalls(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	role, _ := auth.Role(c.Request.Context())

	f, err := filterFromQuery(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recs, err := h.Reader.ListCalls(c.Request.Context(), f, userID, rbac.IsAdmin(role))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call listing failed"})
		return
	}
	if recs == nil {
		recs = []calls.CallRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs, "count": len(recs)})
}

// SupportedLanguages lists the language codes a confirmation script can be
// localized to.
// GET /v1/calls/languages
func (h Handlers) SupportedLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": voice.SupportedLanguages()})
}

// CallStats returns aggregate call statistics for the caller.
// GET /v1/calls/stats
func (h Handlers) CallStats(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	role, _ := auth.Role(c.Request.Context())

	stats, err := h.Reader.Stats(c.Request.Context(), userID, rbac.IsAdmin(role))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h Handlers) writeCallError(c *gin.Context, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "order_id required"})
	case errors.Is(err, calls.ErrAlreadyConfirmed):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "order already confirmed"})
	case errors.Is(err, calls.ErrAttemptsExhausted), errors.Is(err, orders.ErrAttemptsExhausted):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "maximum call attempts reached"})
	case errors.Is(err, calls.ErrCallInFlight):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "confirmation call already in progress"})
	case errors.Is(err, calls.ErrAudioGeneration):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "audio generation failed"})
	default:
		log.Warn("call initiation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call initiation failed"})
	}
}

func filterFromQuery(c *gin.Context) (calls.Filter, error) {
	var f calls.Filter
	f.OrderID = c.Query("order_id")
	f.Status = calls.Status(c.Query("status"))
	f.Outcome = calls.Outcome(c.Query("outcome"))
	f.Language = c.Query("language")
	if f.Status != "" && !f.Status.IsValid() {
		return f, errors.New("invalid status")
	}

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid from timestamp")
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid to timestamp")
		}
		f.To = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("invalid limit")
		}
		f.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("invalid offset")
		}
		f.Offset = n
	}
	return f, nil
}
