package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/provider"
)

//
// Test fakes for this file only.
//

type fakeInvitationRepo struct {
	invitations   map[int64]*domain.Invitation
	variablesJSON string

	upsertCalls      int
	lastContent      string
	submittedCalls   []string
	failedCodes      []string
	failedMessages   []string
	nextInvitationID int64
}

func newFakeInvitationRepo() *fakeInvitationRepo {
	return &fakeInvitationRepo{
		invitations:      make(map[int64]*domain.Invitation),
		nextInvitationID: 1,
	}
}

func (r *fakeInvitationRepo) Upsert(
	ctx context.Context,
	eventID, guestID int64,
	recipient, templateName, renderedContent, variablesJSON string,
	maxRetries int,
) (*domain.Invitation, error) {
	r.upsertCalls++
	r.lastContent = renderedContent

	inv := &domain.Invitation{
		ID:              r.nextInvitationID,
		EventID:         eventID,
		GuestID:         guestID,
		Recipient:       recipient,
		TemplateName:    templateName,
		RenderedContent: renderedContent,
		ProviderStatus:  domain.ProviderStatusPending,
		MaxRetries:      maxRetries,
	}
	r.nextInvitationID++
	r.invitations[inv.ID] = inv
	return inv, nil
}

func (r *fakeInvitationRepo) GetByID(ctx context.Context, id int64) (*domain.Invitation, error) {
	return r.invitations[id], nil
}

func (r *fakeInvitationRepo) GetVariablesJSON(ctx context.Context, id int64) (string, error) {
	return r.variablesJSON, nil
}

func (r *fakeInvitationRepo) MarkSubmitted(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error {
	r.submittedCalls = append(r.submittedCalls, providerMessageID)
	return nil
}

func (r *fakeInvitationRepo) MarkSendFailed(ctx context.Context, id int64, errorCode, errorMessage string, failedAt time.Time) error {
	r.failedCodes = append(r.failedCodes, errorCode)
	r.failedMessages = append(r.failedMessages, errorMessage)
	return nil
}

func (r *fakeInvitationRepo) ClearRetrySchedule(ctx context.Context, id int64) error {
	return nil
}

func (r *fakeInvitationRepo) GetAll(
	ctx context.Context,
	status *domain.ProviderStatus,
	page, pageSize int,
) ([]domain.Invitation, int64, error) {
	return nil, 0, nil
}

func (r *fakeInvitationRepo) GetStats(ctx context.Context) (map[domain.ProviderStatus]int64, error) {
	return nil, nil
}

type fakeTemplates struct {
	templates map[string]*domain.Template
}

func (f *fakeTemplates) GetByName(ctx context.Context, name string) (*domain.Template, error) {
	return f.templates[name], nil
}

type fakeProviderClient struct {
	err       error
	messageID string

	lastTo      string
	lastContent string
	calls       int
}

func (c *fakeProviderClient) SendMessage(ctx context.Context, to, content string) (string, error) {
	c.calls++
	c.lastTo = to
	c.lastContent = content

	if c.err != nil {
		return "", c.err
	}
	return c.messageID, nil
}

type fakeEnqueuer struct {
	params []EnqueueParams
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, params EnqueueParams) (*domain.Job, error) {
	e.params = append(e.params, params)
	return &domain.Job{ID: fmt.Sprintf("job-%d", len(e.params))}, nil
}

func approvedTemplates() *fakeTemplates {
	return &fakeTemplates{templates: map[string]*domain.Template{
		"wedding_invite": {Name: "wedding_invite", Body: "Hi {{name}}, see you on {{date}}!", Approved: true},
		"draft_invite":   {Name: "draft_invite", Body: "Draft", Approved: false},
	}}
}

func sendPayload() domain.JobPayload {
	return domain.JobPayload{
		EventID:      10,
		GuestID:      20,
		Recipient:    "+14155550100",
		TemplateName: "wedding_invite",
		Variables:    map[string]string{"name": "Ada", "date": "June 21"},
	}
}

func TestSendSuccess(t *testing.T) {
	repo := newFakeInvitationRepo()
	client := &fakeProviderClient{messageID: "SM-1"}
	svc := NewInvitationService(repo, approvedTemplates(), client, &fakeEnqueuer{}, 3)

	messageID, err := svc.Send(context.Background(), sendPayload())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if messageID != "SM-1" {
		t.Errorf("messageID = %q, want SM-1", messageID)
	}

	if client.lastContent != "Hi Ada, see you on June 21!" {
		t.Errorf("sent content = %q, variables not rendered", client.lastContent)
	}
	if client.lastTo != "+14155550100" {
		t.Errorf("sent to = %q", client.lastTo)
	}

	if len(repo.submittedCalls) != 1 || repo.submittedCalls[0] != "SM-1" {
		t.Errorf("MarkSubmitted calls = %v, want [SM-1]", repo.submittedCalls)
	}
}

func TestSendProviderErrorIsRecordedAndReturned(t *testing.T) {
	repo := newFakeInvitationRepo()
	client := &fakeProviderClient{err: provider.NewError("131026", "wa_id missing for +14155550100")}
	svc := NewInvitationService(repo, approvedTemplates(), client, &fakeEnqueuer{}, 3)

	_, err := svc.Send(context.Background(), sendPayload())
	if err == nil {
		t.Fatal("expected an error")
	}

	var providerErr *provider.Error
	if !errors.As(err, &providerErr) {
		t.Fatalf("error type %T, want *provider.Error", err)
	}
	if providerErr.Code != "131026" {
		t.Errorf("code = %s, want 131026", providerErr.Code)
	}

	if len(repo.failedCodes) != 1 || repo.failedCodes[0] != "131026" {
		t.Errorf("recorded failure codes = %v, want [131026]", repo.failedCodes)
	}
	// The raw provider message goes into the audit record, not into the
	// error surfaced to callers.
	if err.Error() == "wa_id missing for +14155550100" {
		t.Error("raw provider message leaked through Error()")
	}
}

func TestSendUnapprovedTemplateFailsWithoutProviderCall(t *testing.T) {
	repo := newFakeInvitationRepo()
	client := &fakeProviderClient{messageID: "SM-1"}
	svc := NewInvitationService(repo, approvedTemplates(), client, &fakeEnqueuer{}, 3)

	payload := sendPayload()
	payload.TemplateName = "draft_invite"

	_, err := svc.Send(context.Background(), payload)
	if err == nil {
		t.Fatal("expected an error for an unapproved template")
	}

	if client.calls != 0 {
		t.Error("provider called despite unapproved template")
	}
	if len(repo.failedCodes) != 1 || repo.failedCodes[0] != codeTemplateUnapproved {
		t.Errorf("recorded failure codes = %v, want [%s]", repo.failedCodes, codeTemplateUnapproved)
	}
}

func TestSendMissingTemplateFailsWithoutProviderCall(t *testing.T) {
	repo := newFakeInvitationRepo()
	client := &fakeProviderClient{messageID: "SM-1"}
	svc := NewInvitationService(repo, approvedTemplates(), client, &fakeEnqueuer{}, 3)

	payload := sendPayload()
	payload.TemplateName = "no_such_template"

	_, err := svc.Send(context.Background(), payload)
	if err == nil {
		t.Fatal("expected an error for a missing template")
	}

	if client.calls != 0 {
		t.Error("provider called despite missing template")
	}
	if len(repo.failedCodes) != 1 || repo.failedCodes[0] != codeTemplateMissing {
		t.Errorf("recorded failure codes = %v, want [%s]", repo.failedCodes, codeTemplateMissing)
	}
}

func TestRetryRequiresFailedStatus(t *testing.T) {
	repo := newFakeInvitationRepo()
	repo.invitations[1] = &domain.Invitation{
		ID:             1,
		ProviderStatus: domain.ProviderStatusDelivered,
	}

	svc := NewInvitationService(repo, approvedTemplates(), &fakeProviderClient{}, &fakeEnqueuer{}, 3)

	if _, err := svc.Retry(context.Background(), 1, nil); !errors.Is(err, ErrInvitationNotFailed) {
		t.Fatalf("retry of delivered invitation: got %v, want ErrInvitationNotFailed", err)
	}

	if _, err := svc.Retry(context.Background(), 99, nil); !errors.Is(err, ErrInvitationNotFound) {
		t.Fatalf("retry of unknown invitation: got %v, want ErrInvitationNotFound", err)
	}
}

func TestRetryEnqueuesHighPriorityJobWithStoredVariables(t *testing.T) {
	repo := newFakeInvitationRepo()
	repo.variablesJSON = `{"name":"Ada","date":"June 21"}`
	repo.invitations[1] = &domain.Invitation{
		ID:             1,
		EventID:        10,
		GuestID:        20,
		Recipient:      "+14155550100",
		TemplateName:   "wedding_invite",
		ProviderStatus: domain.ProviderStatusFailed,
	}

	enqueuer := &fakeEnqueuer{}
	svc := NewInvitationService(repo, approvedTemplates(), &fakeProviderClient{}, enqueuer, 3)

	job, err := svc.Retry(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job")
	}

	if len(enqueuer.params) != 1 {
		t.Fatalf("enqueue calls = %d, want 1", len(enqueuer.params))
	}

	params := enqueuer.params[0]
	if params.Priority != domain.PriorityHigh {
		t.Errorf("priority = %s, manual retries must jump the queue", params.Priority)
	}
	if params.Payload.Variables["date"] != "June 21" {
		t.Errorf("stored variables not restored: %v", params.Payload.Variables)
	}
	if params.Payload.TemplateName != "wedding_invite" {
		t.Errorf("templateName = %s", params.Payload.TemplateName)
	}
}

func TestRetryOverridesTemplateAndVariables(t *testing.T) {
	repo := newFakeInvitationRepo()
	repo.invitations[1] = &domain.Invitation{
		ID:             1,
		EventID:        10,
		GuestID:        20,
		Recipient:      "+14155550100",
		TemplateName:   "wedding_invite",
		ProviderStatus: domain.ProviderStatusFailed,
	}

	enqueuer := &fakeEnqueuer{}
	svc := NewInvitationService(repo, approvedTemplates(), &fakeProviderClient{}, enqueuer, 3)

	_, err := svc.Retry(context.Background(), 1, &RetryParams{
		TemplateName: "save_the_date",
		Variables:    map[string]string{"name": "Grace"},
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}

	params := enqueuer.params[0]
	if params.Payload.TemplateName != "save_the_date" {
		t.Errorf("templateName = %s, override ignored", params.Payload.TemplateName)
	}
	if params.Payload.Variables["name"] != "Grace" {
		t.Errorf("variables = %v, override ignored", params.Payload.Variables)
	}
}
