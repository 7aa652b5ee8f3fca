package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/provider"
	"github.com/invitedesk/invite-dispatch-service/internal/queue"
	"github.com/invitedesk/invite-dispatch-service/internal/service"
)

const testWebhookSecret = "callback-secret"

type fakeReconcilerRepo struct {
	invitations map[string]*domain.Invitation
	transitions int
}

func (r *fakeReconcilerRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.Invitation, error) {
	return r.invitations[providerMessageID], nil
}

func (r *fakeReconcilerRepo) GetVariablesJSON(ctx context.Context, id int64) (string, error) {
	return "", nil
}

func (r *fakeReconcilerRepo) ApplyStatusTransition(
	ctx context.Context,
	id int64,
	from, to domain.ProviderStatus,
	at time.Time,
) (bool, error) {
	r.transitions++
	return true, nil
}

func (r *fakeReconcilerRepo) ApplyFailure(
	ctx context.Context,
	id int64,
	from domain.ProviderStatus,
	errorCode, errorMessage string,
	at time.Time,
) (bool, error) {
	return true, nil
}

func (r *fakeReconcilerRepo) ScheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time) error {
	return nil
}

type noopRetryScheduler struct{}

func (noopRetryScheduler) Schedule(ctx context.Context, job *domain.Job, delay time.Duration) error {
	return nil
}

func newWebhookFixture(repo *fakeReconcilerRepo) *WebhookHandler {
	jobs := queue.NewMemoryJobStore(time.Hour)
	reconciler := service.NewReconciler(repo, jobs, noopRetryScheduler{}, 3)
	return NewWebhookHandler(reconciler, testWebhookSecret)
}

func postCallback(t *testing.T, handler *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp/status", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if signature != "" {
		req.Header.Set(provider.SignatureHeader, signature)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.StatusCallback(c); err != nil {
		t.Fatalf("StatusCallback returned error: %v", err)
	}
	return rec
}

func TestStatusCallback_BadSignatureRejected(t *testing.T) {
	repo := &fakeReconcilerRepo{invitations: map[string]*domain.Invitation{}}
	handler := newWebhookFixture(repo)

	body := "MessageSid=SM1&MessageStatus=delivered"

	rec := postCallback(t, handler, body, provider.SignPayload("wrong-secret", []byte(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	rec = postCallback(t, handler, body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: expected status 401, got %d", rec.Code)
	}

	if repo.transitions != 0 {
		t.Error("unauthenticated callback reached the reconciler")
	}
}

func TestStatusCallback_SignedUnparsableBodyAcknowledged(t *testing.T) {
	repo := &fakeReconcilerRepo{invitations: map[string]*domain.Invitation{}}
	handler := newWebhookFixture(repo)

	body := "MessageSid=%zz&MessageStatus=delivered"
	rec := postCallback(t, handler, body, provider.SignPayload(testWebhookSecret, []byte(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if repo.transitions != 0 {
		t.Error("unparsable callback caused a transition")
	}
}

func TestStatusCallback_UnknownMessageIDAcknowledged(t *testing.T) {
	repo := &fakeReconcilerRepo{invitations: map[string]*domain.Invitation{}}
	handler := newWebhookFixture(repo)

	body := "MessageSid=SM-unknown&MessageStatus=delivered"
	rec := postCallback(t, handler, body, provider.SignPayload(testWebhookSecret, []byte(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if repo.transitions != 0 {
		t.Error("unknown message id caused a transition")
	}
}

func TestStatusCallback_AppliesStatus(t *testing.T) {
	repo := &fakeReconcilerRepo{invitations: map[string]*domain.Invitation{
		"SM1": {
			ID:             1,
			ProviderStatus: domain.ProviderStatusSent,
			MaxRetries:     3,
		},
	}}
	handler := newWebhookFixture(repo)

	body := "MessageSid=SM1&MessageStatus=delivered"
	rec := postCallback(t, handler, body, provider.SignPayload(testWebhookSecret, []byte(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if repo.transitions != 1 {
		t.Errorf("transitions = %d, want 1", repo.transitions)
	}
}
