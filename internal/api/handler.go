package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"claim-service/internal/fingerprint"
	"claim-service/internal/models"
	"claim-service/internal/service"
	"claim-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const actorKey = "actor"

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	claims        *service.ClaimService
	payments      *service.PaymentService
	campaigns     *service.CampaignService
	maxProofBytes int64
	checks        []ReadinessCheck
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	claims *service.ClaimService,
	payments *service.PaymentService,
	campaigns *service.CampaignService,
	maxProofBytes int64,
	checks ...ReadinessCheck,
) *Handler {
	return &Handler{
		claims:        claims,
		payments:      payments,
		campaigns:     campaigns,
		maxProofBytes: maxProofBytes,
		checks:        checks,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", actorMiddleware())
	{
		v1.POST("/campaigns", h.createCampaign)
		v1.GET("/campaigns/:id", h.getCampaign)
		v1.DELETE("/campaigns/:id", h.deleteCampaign)

		v1.POST("/claims", h.commitViews)
		v1.GET("/claims", h.listClaims)
		v1.PUT("/claims/:id/status", bodyLimit(h.proofBodyLimit()), h.updateClaimStatus)

		v1.GET("/payments", h.listPayments)
		v1.PUT("/payments/:id", h.markPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			failed[check.Name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// proofBodyLimit allows for base64 inflation of a maximum size proof
func (h *Handler) proofBodyLimit() int64 {
	return h.maxProofBytes/3*4 + 4096
}

// createCampaign handles campaign creation
func (h *Handler) createCampaign(c *gin.Context) {
	var req service.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	campaign, err := h.campaigns.CreateCampaign(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// getCampaign handles get campaign by ID
func (h *Handler) getCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	campaign, err := h.campaigns.GetCampaign(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// deleteCampaign removes a campaign and its claims
func (h *Handler) deleteCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.campaigns.DeleteCampaign(c.Request.Context(), actorFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// commitViews reserves views for the calling agent
func (h *Handler) commitViews(c *gin.Context) {
	var req service.CommitViewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.claims.CommitViews(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// listClaims returns the claims visible to the caller
func (h *Handler) listClaims(c *gin.Context) {
	filter := models.ClaimFilter{Status: c.Query("status")}
	if raw := c.Query("campaign_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_input",
				"message": "campaign_id must be an integer",
			})
			return
		}
		filter.CampaignID = id
	}

	claims, err := h.claims.ListClaims(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

type updateClaimStatusRequest struct {
	Status   string `json:"status" binding:"required"`
	ProofURL string `json:"proof_url"`
}

// updateClaimStatus submits proof for a claim or decides it
func (h *Handler) updateClaimStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateClaimStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "proof_too_large",
				"message": "proof exceeds the maximum upload size",
			})
			return
		}
		badRequest(c, err)
		return
	}

	claim, err := h.claims.UpdateClaimStatus(c.Request.Context(), actorFrom(c), id, req.Status, req.ProofURL)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, claim)
}

// listPayments returns the payments visible to the caller
func (h *Handler) listPayments(c *gin.Context) {
	payments, err := h.payments.ListPayments(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

type markPaymentRequest struct {
	Status string `json:"payment_status" binding:"required"`
	Mode   string `json:"payment_mode"`
}

// markPayment settles a payment on behalf of the owning business
func (h *Handler) markPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req markPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	payment, err := h.payments.MarkPayment(c.Request.Context(), actorFrom(c), id, req.Status, req.Mode)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// fail writes the error response for err
func (h *Handler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(c.Request.Context(), h.logger).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{
			"error":   code,
			"message": "internal error",
		})
		return
	}

	c.JSON(status, gin.H{
		"error":   code,
		"message": err.Error(),
	})
}

// classify maps domain errors to an HTTP status and error code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, fingerprint.ErrDecode):
		return http.StatusBadRequest, "decode_error"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrInsufficientInventory):
		return http.StatusConflict, "insufficient_inventory"
	case errors.Is(err, models.ErrDuplicateProof):
		return http.StatusConflict, "duplicate_proof"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, models.ErrCampaignClosed):
		return http.StatusConflict, "campaign_closed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_input",
		"message": err.Error(),
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": "id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}
