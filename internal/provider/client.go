package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/invitedesk/invite-dispatch-service/environments"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

// Client talks to the WhatsApp Business gateway.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

type sendRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(cfg environments.ProviderConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.APIKey)

	return &Client{
		httpClient: client,
		baseURL:    cfg.BaseURL,
	}
}

// SendMessage submits one rendered message and returns the provider
// message id. Failures come back as *Error, already classified.
func (c *Client) SendMessage(ctx context.Context, to, content string) (string, error) {
	payload := sendRequest{
		To:      to,
		Content: content,
	}

	var (
		okBody  sendResponse
		errBody apiErrorResponse
	)

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&okBody).
		SetError(&errBody).
		Post(c.baseURL + "/v1/messages")

	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return "", NewError(CodeTimeout, err.Error())
		}
		return "", NewError(CodeNetwork, err.Error())
	}

	logger.Infof("Provider request to %s completed in %v (status: %d)", c.baseURL, duration, resp.StatusCode())

	if resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusOK {
		code := errBody.Error.Code
		message := errBody.Error.Message
		if message == "" {
			message = fmt.Sprintf("unexpected status code %d: %s", resp.StatusCode(), resp.String())
		}
		return "", NewError(code, message)
	}

	if okBody.MessageID == "" {
		return "", NewError(CodeNetwork, "provider accepted the message but returned no message id")
	}

	return okBody.MessageID, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}
