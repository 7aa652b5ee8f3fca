package handlers

import (
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/invitedesk/invite-dispatch-service/internal/provider"
	"github.com/invitedesk/invite-dispatch-service/internal/service"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
	"github.com/invitedesk/invite-dispatch-service/pkg/response"
)

type WebhookHandler struct {
	reconciler *service.Reconciler
	secret     string
}

func NewWebhookHandler(reconciler *service.Reconciler, secret string) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		secret:     secret,
	}
}

// StatusCallback godoc
// @Summary Provider status callback
// @Description Receives message status updates from the WhatsApp gateway. The
// @Description request must carry a valid HMAC signature over the raw body.
// @Tags webhooks
// @Accept x-www-form-urlencoded
// @Produce json
// @Param X-Hub-Signature-256 header string true "HMAC-SHA256 signature of the body"
// @Success 200 {string} string "OK"
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /webhooks/whatsapp/status [post]
func (h *WebhookHandler) StatusCallback(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return response.BadRequest(c, err)
	}

	if !provider.VerifySignature(h.secret, body, c.Request().Header.Get(provider.SignatureHeader)) {
		logger.Warnf("Rejected status callback with bad signature from %s", c.RealIP())
		return response.UnauthorizedWithMessage(c, "invalid webhook signature")
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		// Authenticated but malformed. The gateway retries non-2xx
		// responses and the body will not parse any better next time.
		logger.Errorf("Failed to parse status callback body: %v", err)
		return c.NoContent(http.StatusOK)
	}

	callback := service.StatusCallback{
		MessageID: values.Get("MessageSid"),
		Status:    values.Get("MessageStatus"),
		ErrorCode: values.Get("ErrorCode"),
	}

	// The gateway retries non-2xx responses, so processing errors are
	// logged and acknowledged rather than bounced back.
	if err := h.reconciler.Process(c.Request().Context(), callback); err != nil {
		logger.Errorf("Failed to process status callback for %s: %v", callback.MessageID, err)
	}

	return c.NoContent(http.StatusOK)
}
