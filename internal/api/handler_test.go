package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"claim-service/internal/dedup"
	"claim-service/internal/fingerprint"
	"claim-service/internal/models"
	"claim-service/internal/service"
	"claim-service/internal/service/servicetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	repo   *servicetest.MemRepo
}

func newTestServer(t *testing.T, maxProofBytes int64, checks ...ReadinessCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := servicetest.NewMemRepo()
	repo.AddBusiness(1, 10, "Acme Sweets")
	repo.AddUser(20, "Asha", "asha@example.com", models.RoleAgent)
	events := &servicetest.RecordingPublisher{}
	index := dedup.NewScanIndex(repo, fingerprint.NewComparator(fingerprint.DefaultThreshold))

	claims := service.NewClaimService(repo, service.NewInventory(repo), index, fingerprint.NewEngine(),
		service.NewLocalLocker(), service.NewLocalIdempotencyStore(), events, false)
	h := NewHandler(claims, service.NewPaymentService(repo, events),
		service.NewCampaignService(repo, index, events), maxProofBytes, checks...)

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, repo: repo}
}

type caller struct {
	id   int64
	role string
}

var (
	asAdmin = caller{1, models.RoleAdmin}
	asOwner = caller{10, models.RoleBusinessOwner}
	asAgent = caller{20, models.RoleAgent}
)

func (s *testServer) do(t *testing.T, who caller, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if who.id != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(who.id, 10))
		req.Header.Set("X-User-Role", who.role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func proofURL(t *testing.T, shade uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := shade
			if (x/16+y/16)%2 == 0 {
				v = 255 - shade
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func (s *testServer) createCampaign(t *testing.T, target int64, price string) int64 {
	t.Helper()
	w := s.do(t, asOwner, http.MethodPost, "/api/v1/campaigns", map[string]interface{}{
		"title":        "Festive offer",
		"price":        price,
		"target_views": target,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c models.Campaign
	decode(t, w, &c)
	return c.ID
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, 1<<20,
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }})

	w := s.do(t, caller{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, caller{}, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := newTestServer(t, 1<<20,
		ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }})
	w = down.do(t, caller{}, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")

	w = s.do(t, caller{}, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestActorHeadersRequired(t *testing.T) {
	s := newTestServer(t, 1<<20)

	w := s.do(t, caller{}, http.MethodGet, "/api/v1/claims", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, caller{5, "superuser"}, http.MethodGet, "/api/v1/claims", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, caller{-1, models.RoleAgent}, http.MethodGet, "/api/v1/claims", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimFlow(t *testing.T) {
	s := newTestServer(t, 1<<20)
	campaignID := s.createCampaign(t, 100, "50")

	w := s.do(t, asAgent, http.MethodPost, "/api/v1/claims",
		map[string]int64{"campaign_id": campaignID, "views": 40}, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var commit struct {
		Claim             models.Claim `json:"claim"`
		RemainingViews    int64        `json:"remaining_views"`
		ProjectedEarnings string       `json:"projected_earnings"`
	}
	decode(t, w, &commit)
	assert.Equal(t, int64(60), commit.RemainingViews)
	assert.Equal(t, "20", commit.ProjectedEarnings)

	// replay answers with the original claim
	w = s.do(t, asAgent, http.MethodPost, "/api/v1/claims",
		map[string]int64{"campaign_id": campaignID, "views": 40}, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusOK, w.Code)

	statusPath := fmt.Sprintf("/api/v1/claims/%d/status", commit.Claim.ID)
	proof := proofURL(t, 40)
	w = s.do(t, asAgent, http.MethodPut, statusPath,
		map[string]string{"status": "submitted", "proof_url": proof})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, asAgent, http.MethodPut, statusPath, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorCode(t, w))

	w = s.do(t, asAdmin, http.MethodPut, statusPath, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, asAdmin, http.MethodPut, statusPath, map[string]string{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", errorCode(t, w))

	w = s.do(t, asAgent, http.MethodGet, "/api/v1/claims?status=approved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Claims []struct {
			ID            int64  `json:"id"`
			ProofURL      string `json:"proof_url"`
			AgentName     string `json:"agent_name"`
			AgentEmail    string `json:"agent_email"`
			PaymentStatus string `json:"payment_status"`
			CampaignTitle string `json:"campaign_title"`
		} `json:"claims"`
	}
	decode(t, w, &list)
	require.Len(t, list.Claims, 1)
	assert.Equal(t, models.PaymentStatusPending, list.Claims[0].PaymentStatus)
	assert.Equal(t, "Festive offer", list.Claims[0].CampaignTitle)
	assert.Equal(t, proof, list.Claims[0].ProofURL)
	assert.Equal(t, "Asha", list.Claims[0].AgentName)
	assert.Equal(t, "asha@example.com", list.Claims[0].AgentEmail)

	w = s.do(t, asOwner, http.MethodGet, "/api/v1/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var payments struct {
		Payments []struct {
			ID     int64  `json:"id"`
			Amount string `json:"amount"`
			Status string `json:"payment_status"`
		} `json:"payments"`
	}
	decode(t, w, &payments)
	require.Len(t, payments.Payments, 1)
	assert.Equal(t, "20", payments.Payments[0].Amount)

	paymentPath := fmt.Sprintf("/api/v1/payments/%d", payments.Payments[0].ID)
	w = s.do(t, asAgent, http.MethodPut, paymentPath, map[string]string{"payment_status": "paid"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, asOwner, http.MethodPut, paymentPath,
		map[string]string{"payment_status": "paid", "payment_mode": "upi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paid struct {
		Status      string     `json:"payment_status"`
		PaymentMode string     `json:"payment_mode"`
		MarkedAt    *time.Time `json:"marked_at"`
	}
	decode(t, w, &paid)
	assert.Equal(t, models.PaymentStatusPaid, paid.Status)
	assert.Equal(t, "upi", paid.PaymentMode)
	assert.NotNil(t, paid.MarkedAt)

	w = s.do(t, asOwner, http.MethodPut, paymentPath, map[string]string{"payment_status": "failed"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, 1<<20)
	campaignID := s.createCampaign(t, 10, "10")

	w := s.do(t, asAgent, http.MethodPost, "/api/v1/claims", map[string]int64{"campaign_id": campaignID, "views": 11})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "insufficient_inventory", errorCode(t, w))

	w = s.do(t, asAgent, http.MethodPost, "/api/v1/claims", map[string]int64{"campaign_id": 9999, "views": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))

	w = s.do(t, asAgent, http.MethodPost, "/api/v1/claims", map[string]int64{"campaign_id": campaignID, "views": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorCode(t, w))

	w = s.do(t, asAgent, http.MethodGet, "/api/v1/campaigns/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, asAgent, http.MethodGet, "/api/v1/claims?campaign_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.repo.SetCampaignStatus(campaignID, models.CampaignStatusPaused)
	w = s.do(t, asAgent, http.MethodPost, "/api/v1/claims", map[string]int64{"campaign_id": campaignID, "views": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "campaign_closed", errorCode(t, w))

	w = s.do(t, asAgent, http.MethodDelete, fmt.Sprintf("/api/v1/campaigns/%d", campaignID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, asOwner, http.MethodDelete, fmt.Sprintf("/api/v1/campaigns/%d", campaignID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, asOwner, http.MethodGet, fmt.Sprintf("/api/v1/campaigns/%d", campaignID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDuplicateProofRejected(t *testing.T) {
	s := newTestServer(t, 1<<20)
	campaignID := s.createCampaign(t, 100, "100")
	proof := proofURL(t, 30)

	var ids []int64
	for i := 0; i < 2; i++ {
		w := s.do(t, asAgent, http.MethodPost, "/api/v1/claims", map[string]int64{"campaign_id": campaignID, "views": 10})
		require.Equal(t, http.StatusCreated, w.Code)
		var resp struct {
			Claim models.Claim `json:"claim"`
		}
		decode(t, w, &resp)
		ids = append(ids, resp.Claim.ID)
	}

	w := s.do(t, asAgent, http.MethodPut, fmt.Sprintf("/api/v1/claims/%d/status", ids[0]),
		map[string]string{"status": "submitted", "proof_url": proof})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, asAgent, http.MethodPut, fmt.Sprintf("/api/v1/claims/%d/status", ids[1]),
		map[string]string{"status": "pending_approval", "proof_url": proof})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_proof", errorCode(t, w))
}

func TestProofBodyLimit(t *testing.T) {
	s := newTestServer(t, 300)
	campaignID := s.createCampaign(t, 100, "100")
	w := s.do(t, asAgent, http.MethodPost, "/api/v1/claims", map[string]int64{"campaign_id": campaignID, "views": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	huge := "data:image/png;base64," + strings.Repeat("A", 8192)
	w = s.do(t, asAgent, http.MethodPut, "/api/v1/claims/1/status",
		map[string]string{"status": "submitted", "proof_url": huge})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestClassify(t *testing.T) {
	status, code := classify(fmt.Errorf("wrapped: %w", fingerprint.ErrDecode))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "decode_error", code)

	status, code = classify(errors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)
}
