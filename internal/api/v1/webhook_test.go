package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/dukastack/billing/internal/api/dto"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
)

type stubWebhookService struct {
	processErr error
}

func (s *stubWebhookService) ProcessEvent(ctx context.Context, payload []byte, signature string) error {
	return s.processErr
}

func (s *stubWebhookService) ReplayFailed(ctx context.Context, limit int) (*dto.ReplayResult, error) {
	return &dto.ReplayResult{}, nil
}

func (s *stubWebhookService) PurgeProcessed(ctx context.Context) (*dto.PurgeResult, error) {
	return &dto.PurgeResult{}, nil
}

func performWebhookRequest(svc *stubWebhookService) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewWebhookHandler(svc, logger.NewNoOpLogger())
	router.POST("/webhooks/stripe", handler.HandleStripeWebhook)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestWebhookAcknowledgesSuccess(t *testing.T) {
	recorder := performWebhookRequest(&stubWebhookService{})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"received":true}`, recorder.Body.String())
}

func TestWebhookAcknowledgesBadSignature(t *testing.T) {
	svc := &stubWebhookService{
		processErr: ierr.NewError("bad signature").Mark(ierr.ErrPermissionDenied),
	}
	recorder := performWebhookRequest(svc)

	// A forged signature still gets a 200 so the provider stops retrying.
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"received":true}`, recorder.Body.String())
}

func TestWebhookUnavailableWithoutConfiguration(t *testing.T) {
	svc := &stubWebhookService{
		processErr: ierr.NewError("not configured").Mark(ierr.ErrServiceDisabled),
	}
	recorder := performWebhookRequest(svc)

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestWebhookReportsStorageFailure(t *testing.T) {
	svc := &stubWebhookService{
		processErr: ierr.NewError("ledger write failed").Mark(ierr.ErrDatabase),
	}
	recorder := performWebhookRequest(svc)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}
