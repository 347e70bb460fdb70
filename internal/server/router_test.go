package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/comments"
	"github.com/ticketing-suite/ticketing/internal/health"
	"github.com/ticketing-suite/ticketing/internal/middleware"
	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/ratelimit"
	"github.com/ticketing-suite/ticketing/internal/tickets"
	"github.com/ticketing-suite/ticketing/pkg/response"
)

// world is a tenant-partitioned in-memory backend for tickets and comments.
type world struct {
	mu       sync.Mutex
	tickets  map[string]models.Ticket
	comments map[string]models.Comment
	seq      int
}

func newWorld() *world {
	return &world{
		tickets: map[string]models.Ticket{
			"k1": {ID: "k1", TenantID: "t1", SiteID: "s1", TypeKey: "fault", Description: "Inverter offline", Status: models.StatusNew, Priority: models.PriorityP2},
		},
		comments: map[string]models.Comment{},
	}
}

type ticketStore struct{ *world }

func (s ticketStore) List(_ context.Context, tenantID string, _ tickets.Filter) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Ticket{}
	for _, t := range s.tickets {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s ticketStore) Get(_ context.Context, tenantID, id string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.TenantID != tenantID {
		return nil, access.NotFound("ticket not found")
	}
	return &t, nil
}

func (s ticketStore) Create(_ context.Context, tenantID string, in tickets.CreateInput) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := models.Ticket{ID: fmt.Sprintf("k-new-%d", s.seq), TenantID: tenantID, SiteID: in.SiteID, TypeKey: in.TypeKey, Description: in.Description, Status: models.StatusNew, Priority: in.Priority}
	s.tickets[t.ID] = t
	return &t, nil
}

func (s ticketStore) Update(ctx context.Context, tenantID, id string, _ tickets.UpdateInput) (*models.Ticket, error) {
	return s.Get(ctx, tenantID, id)
}

func (s ticketStore) BulkUpdate(_ context.Context, tenantID string, in tickets.BulkUpdateInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range in.IDs {
		if t, ok := s.tickets[id]; ok && t.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

type commentStore struct{ *world }

func (s commentStore) visibleTicket(tenantID, ticketID string) bool {
	t, ok := s.tickets[ticketID]
	return ok && t.TenantID == tenantID
}

func (s commentStore) List(_ context.Context, tenantID, ticketID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Comment{}
	for _, c := range s.comments {
		if c.TenantID == tenantID && c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s commentStore) Create(_ context.Context, tenantID, ticketID string, in comments.CreateInput) (*models.Comment, models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.visibleTicket(tenantID, ticketID) {
		return nil, models.OutboxEvent{}, access.NotFound("ticket not found")
	}
	s.seq++
	author := in.AuthorUserID
	c := models.Comment{ID: fmt.Sprintf("c%d", s.seq), TenantID: tenantID, TicketID: ticketID, AuthorUserID: &author, Body: in.Body, Visibility: models.VisibilityInternal}
	s.comments[c.ID] = c
	return &c, models.OutboxEvent{}, nil
}

func (s commentStore) locked(tenantID, ticketID, commentID string) (models.Comment, error) {
	if !s.visibleTicket(tenantID, ticketID) {
		return models.Comment{}, access.NotFound("ticket not found")
	}
	c, ok := s.comments[commentID]
	if !ok || c.TenantID != tenantID || c.TicketID != ticketID {
		return models.Comment{}, access.NotFound("comment not found")
	}
	return c, nil
}

func (s commentStore) Update(_ context.Context, tenantID, ticketID, commentID string, in comments.UpdateInput, guard comments.Guard) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.locked(tenantID, ticketID, commentID)
	if err != nil {
		return nil, err
	}
	if err := guard(c); err != nil {
		return nil, err
	}
	if in.Body != nil {
		c.Body = *in.Body
	}
	s.comments[c.ID] = c
	return &c, nil
}

func (s commentStore) Delete(_ context.Context, tenantID, ticketID, commentID string, guard comments.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.locked(tenantID, ticketID, commentID)
	if err != nil {
		return err
	}
	if err := guard(c); err != nil {
		return err
	}
	delete(s.comments, c.ID)
	return nil
}

func token(sub, tenant string, roles ...string) string {
	claims, _ := json.Marshal(map[string]any{"sub": sub, "tid": tenant, "roles": roles})
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`)) + "." + enc.EncodeToString(claims) + ".unsigned"
}

func newTestServer(t *testing.T, prefix string, configure ...func(*Options)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := newWorld()
	reg := prometheus.NewRegistry()
	opts := Options{
		Verifier:       auth.NewInsecureVerifier(auth.NewClaimMapping("", "")),
		APIPrefix:      prefix,
		Metrics:        middleware.NewMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return NewRouter(opts, Handlers{
		Health:   health.NewHandler(nil),
		Tickets:  tickets.NewHandler(ticketStore{w}, nil),
		Comments: comments.NewHandler(commentStore{w}, nil, nil),
	})
}

func request(r http.Handler, method, path, bearer, body string) (*httptest.ResponseRecorder, response.Body) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out response.Body
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestCommentOwnershipAcrossTenants(t *testing.T) {
	r := newTestServer(t, "")
	alice := token("alice", "t1", access.RoleUser)
	bob := token("bob", "t1", access.RoleUser)
	admin := token("root", "t1", access.RoleAdmin)
	eve := token("eve", "t2", access.RoleUser)

	rec, body := request(r, http.MethodPost, "/tickets/k1/comments", alice, `{"body":"Replaced the fuse"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}
	created, _ := body.Data.(map[string]any)
	commentID, _ := created["id"].(string)
	path := "/tickets/k1/comments/" + commentID

	rec, body = request(r, http.MethodDelete, path, bob, "")
	if rec.Code != http.StatusForbidden || !strings.Contains(body.Error, "own comments") {
		t.Fatalf("other user delete: status = %d error = %q", rec.Code, body.Error)
	}

	if rec, _ := request(r, http.MethodGet, "/tickets/k1", eve, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant get: status = %d, want 404", rec.Code)
	}
	if rec, _ := request(r, http.MethodDelete, path, token("eve", "t2", access.RoleAdmin), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant admin delete: status = %d, want 404", rec.Code)
	}

	if rec, _ := request(r, http.MethodDelete, path, admin, ""); rec.Code != http.StatusOK {
		t.Fatalf("admin delete: status = %d", rec.Code)
	}
	if rec, _ := request(r, http.MethodDelete, path, admin, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestAuthenticationAndRoleGate(t *testing.T) {
	r := newTestServer(t, "/api")
	cases := []struct {
		name         string
		method, path string
		bearer, body string
		want         int
	}{
		{"no token", http.MethodGet, "/api/tickets", "", "", http.StatusUnauthorized},
		{"malformed token", http.MethodGet, "/api/tickets", "abc.def", "", http.StatusUnauthorized},
		{"monitoring reads", http.MethodGet, "/api/tickets", token("m", "t1", access.RoleMonitoring), "", http.StatusOK},
		{"monitoring cannot write", http.MethodPost, "/api/tickets/k1/comments", token("m", "t1", access.RoleMonitoring), `{"body":"x"}`, http.StatusForbidden},
		{"empty roles", http.MethodGet, "/api/tickets", token("u", "t1"), "", http.StatusForbidden},
		{"user cannot bulk update", http.MethodPost, "/api/tickets/bulk-update", token("u", "t1", access.RoleUser), `{"ids":["k1"],"status":"CLOSED"}`, http.StatusForbidden},
		{"manager bulk update", http.MethodPost, "/api/tickets/bulk-update", token("m", "t1", access.RoleOandM), `{"ids":["k1"],"status":"CLOSED"}`, http.StatusOK},
		{"missing body", http.MethodPost, "/api/tickets/k1/comments", token("u", "t1", access.RoleUser), `{}`, http.StatusBadRequest},
		{"foreign ticket comment", http.MethodPost, "/api/tickets/k1/comments", token("e", "t2", access.RoleUser), `{"body":"x"}`, http.StatusNotFound},
		{"unprefixed path", http.MethodGet, "/tickets", token("u", "t1", access.RoleUser), "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := request(r, tc.method, tc.path, tc.bearer, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestPublicEndpoints(t *testing.T) {
	r := newTestServer(t, "/api")
	for _, path := range []string{"/health", "/healthz", "/metrics"} {
		if rec, _ := request(r, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
	if rec, _ := request(r, http.MethodPost, "/api/auth/login", "", `{"email":"a@b.c","password":"secret1"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("login without local login: status = %d, want 404", rec.Code)
	}
}

func TestRateLimitSkipsHealthAndMetrics(t *testing.T) {
	r := newTestServer(t, "/api", func(o *Options) {
		o.Limiter = ratelimit.NewMemoryLimiter(100)
		o.RateLimit = 1
		o.RateWindow = time.Minute
	})
	for i := 0; i < 5; i++ {
		for _, path := range []string{"/health", "/healthz", "/metrics"} {
			rec, _ := request(r, http.MethodGet, path, "", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("%s #%d: status = %d", path, i, rec.Code)
			}
			if rec.Header().Get("X-RateLimit-Limit") != "" {
				t.Fatalf("%s counted against the rate limit", path)
			}
		}
	}

	user := token("u", "t1", access.RoleUser)
	if rec, _ := request(r, http.MethodGet, "/api/tickets", user, ""); rec.Code != http.StatusOK {
		t.Fatalf("first api call: status = %d", rec.Code)
	}
	if rec, _ := request(r, http.MethodGet, "/api/tickets", user, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second api call: status = %d, want 429", rec.Code)
	}
}
