package tickets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/pkg/response"
)

type fakeStore struct {
	list       func(ctx context.Context, tenantID string, f Filter) ([]models.Ticket, error)
	get        func(ctx context.Context, tenantID, id string) (*models.Ticket, error)
	create     func(ctx context.Context, tenantID string, in CreateInput) (*models.Ticket, error)
	update     func(ctx context.Context, tenantID, id string, in UpdateInput) (*models.Ticket, error)
	bulkUpdate func(ctx context.Context, tenantID string, in BulkUpdateInput) (int64, error)
}

func (f *fakeStore) List(ctx context.Context, tenantID string, filter Filter) ([]models.Ticket, error) {
	return f.list(ctx, tenantID, filter)
}

func (f *fakeStore) Get(ctx context.Context, tenantID, id string) (*models.Ticket, error) {
	return f.get(ctx, tenantID, id)
}

func (f *fakeStore) Create(ctx context.Context, tenantID string, in CreateInput) (*models.Ticket, error) {
	return f.create(ctx, tenantID, in)
}

func (f *fakeStore) Update(ctx context.Context, tenantID, id string, in UpdateInput) (*models.Ticket, error) {
	return f.update(ctx, tenantID, id, in)
}

func (f *fakeStore) BulkUpdate(ctx context.Context, tenantID string, in BulkUpdateInput) (int64, error) {
	return f.bulkUpdate(ctx, tenantID, in)
}

func newTestRouter(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		auth.SetPrincipal(c, auth.Principal{SubjectID: "u1", TenantID: "t1", Roles: []string{access.RoleUser}})
	})
	r.GET("/tickets", h.List)
	r.GET("/tickets/:id", h.Get)
	r.POST("/tickets", h.Create)
	r.PATCH("/tickets/:id", h.Update)
	r.POST("/tickets/bulk-update", h.BulkUpdate)
	return r
}

func serve(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, response.Body) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out response.Body
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestListPassesTenantAndFilters(t *testing.T) {
	var gotTenant string
	var got Filter
	r := newTestRouter(&fakeStore{list: func(_ context.Context, tenantID string, f Filter) ([]models.Ticket, error) {
		gotTenant, got = tenantID, f
		return []models.Ticket{}, nil
	}})
	rec, _ := serve(r, http.MethodGet, "/tickets?status=ON_HOLD&priority=P2&siteId=s1&search=+pump+&limit=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotTenant != "t1" || got.Status != models.StatusOnHold || got.Priority != models.PriorityP2 ||
		got.SiteID != "s1" || got.Search != "pump" || got.Limit != 20 {
		t.Fatalf("unexpected filter %+v for tenant %q", got, gotTenant)
	}
}

func TestListRejectsBadFilters(t *testing.T) {
	r := newTestRouter(&fakeStore{})
	for _, q := range []string{"status=OPEN", "priority=P9", "limit=0", "limit=abc"} {
		if rec, _ := serve(r, http.MethodGet, "/tickets?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestGetOtherTenantIsNotFound(t *testing.T) {
	r := newTestRouter(&fakeStore{get: func(context.Context, string, string) (*models.Ticket, error) {
		return nil, access.NotFound("ticket not found")
	}})
	rec, body := serve(r, http.MethodGet, "/tickets/foreign", "")
	if rec.Code != http.StatusNotFound || body.Code != access.CodeNotFound {
		t.Fatalf("status = %d code = %q", rec.Code, body.Code)
	}
}

func TestCreateValidation(t *testing.T) {
	called := false
	r := newTestRouter(&fakeStore{create: func(_ context.Context, _ string, in CreateInput) (*models.Ticket, error) {
		called = true
		return &models.Ticket{ID: "k1", SiteID: in.SiteID, Priority: in.Priority}, nil
	}})
	for name, body := range map[string]string{
		"missing site":     `{"type":"fault","description":"x","priority":"P1"}`,
		"blank desc":       `{"siteId":"s1","type":"fault","description":"  ","priority":"P1"}`,
		"bad priority":     `{"siteId":"s1","type":"fault","description":"x","priority":"URGENT"}`,
		"bad status":       `{"siteId":"s1","type":"fault","description":"x","priority":"P1","status":"OPEN"}`,
		"malformed json":   `{"siteId":`,
		"missing priority": `{"siteId":"s1","type":"fault","description":"x"}`,
	} {
		if rec, _ := serve(r, http.MethodPost, "/tickets", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}
	if called {
		t.Fatal("store called for invalid input")
	}

	rec, _ := serve(r, http.MethodPost, "/tickets", `{"siteId":"s1","type":"fault","description":"pump down","priority":"P1","custom_fields":{"kw":3}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateSurfacesStoreValidation(t *testing.T) {
	r := newTestRouter(&fakeStore{create: func(context.Context, string, CreateInput) (*models.Ticket, error) {
		return nil, access.BadRequest("site not found")
	}})
	rec, body := serve(r, http.MethodPost, "/tickets", `{"siteId":"other-tenant-site","type":"fault","description":"x","priority":"P3"}`)
	if rec.Code != http.StatusBadRequest || body.Error != "site not found" {
		t.Fatalf("status = %d error = %q", rec.Code, body.Error)
	}
}

func TestBulkUpdate(t *testing.T) {
	var got BulkUpdateInput
	r := newTestRouter(&fakeStore{bulkUpdate: func(_ context.Context, _ string, in BulkUpdateInput) (int64, error) {
		got = in
		return 1, nil
	}})
	rec, body := serve(r, http.MethodPost, "/tickets/bulk-update", `{"ids":["k1","foreign"],"status":"CLOSED"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(got.IDs) != 2 || got.Status == nil || *got.Status != models.StatusClosed {
		t.Fatalf("unexpected input %+v", got)
	}
	if data, _ := body.Data.(map[string]any); data["updated"] != float64(1) {
		t.Fatalf("unexpected body %+v", body.Data)
	}

	if rec, _ := serve(r, http.MethodPost, "/tickets/bulk-update", `{"ids":["k1"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty change: status = %d, want 400", rec.Code)
	}
	if rec, _ := serve(r, http.MethodPost, "/tickets/bulk-update", `{"ids":[],"status":"CLOSED"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty ids: status = %d, want 400", rec.Code)
	}
}
