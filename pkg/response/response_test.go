package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	return e.NewContext(req, rec), rec
}

func TestPaginated_ComputesTotalPagesCorrectly(t *testing.T) {
	c, rec := newTestContext(t)

	// 45 invitations at 20 per page fill three pages.
	invitations := []string{"inv-1", "inv-2", "inv-3"}
	if err := Paginated(c, invitations, 2, 20, 45); err != nil {
		t.Fatalf("Paginated returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body PaginatedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if !body.Success {
		t.Error("expected Success=true, got false")
	}
	if body.Page != 2 || body.PageSize != 20 {
		t.Errorf("page/pageSize = %d/%d, want 2/20", body.Page, body.PageSize)
	}
	if body.TotalCount != 45 {
		t.Errorf("expected TotalCount=45, got %d", body.TotalCount)
	}
	if body.TotalPages != 3 {
		t.Errorf("expected TotalPages=3, got %d", body.TotalPages)
	}
}

func TestCreated_WrapsDataInEnvelope(t *testing.T) {
	c, rec := newTestContext(t)

	if err := Created(c, "Job enqueued", map[string]string{"jobId": "a1b2"}); err != nil {
		t.Fatalf("Created returned error: %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var body SuccessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if !body.Success || body.Message != "Job enqueued" {
		t.Errorf("envelope = %+v, want success with message", body)
	}

	data, ok := body.Data.(map[string]any)
	if !ok || data["jobId"] != "a1b2" {
		t.Errorf("data = %v, want jobId a1b2", body.Data)
	}
}

func TestUnauthorizedWithMessage_OverridesDefaultReason(t *testing.T) {
	c, rec := newTestContext(t)

	if err := UnauthorizedWithMessage(c, "invalid webhook signature"); err != nil {
		t.Fatalf("UnauthorizedWithMessage returned error: %v", err)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if body.Success {
		t.Error("expected Success=false, got true")
	}
	if body.Error != "invalid webhook signature" {
		t.Errorf("error = %q, want the supplied reason", body.Error)
	}
}
