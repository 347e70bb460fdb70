// Package server assembles the HTTP router.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/attachments"
	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/comments"
	"github.com/ticketing-suite/ticketing/internal/directory"
	"github.com/ticketing-suite/ticketing/internal/health"
	"github.com/ticketing-suite/ticketing/internal/middleware"
	"github.com/ticketing-suite/ticketing/internal/ratelimit"
	"github.com/ticketing-suite/ticketing/internal/tickets"
	"github.com/ticketing-suite/ticketing/internal/users"
)

// Options configures the router's middleware chain.
type Options struct {
	Verifier auth.Verifier
	Gate     *access.Gate
	Logger   *zap.Logger

	CORSOrigins string
	// APIPrefix is prepended to every API route. Health and metrics stay at the root.
	APIPrefix string

	Limiter    ratelimit.Limiter
	RateLimit  int
	RateWindow time.Duration

	Metrics        *middleware.Metrics
	MetricsHandler http.Handler

	// LocalLogin registers POST /auth/login.
	LocalLogin bool
}

// Handlers are the feature handlers. A nil handler leaves its routes out.
type Handlers struct {
	Health      *health.Handler
	Tickets     *tickets.Handler
	Comments    *comments.Handler
	Attachments *attachments.Handler
	Directory   *directory.Handler
	Users       *users.Handler
}

// NewRouter builds the gin engine. Every API route is rate limited,
// authenticated and then checked against the gate for its operation before
// the handler runs.
func NewRouter(opts Options, h Handlers) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := opts.Gate
	if gate == nil {
		gate = access.NewGate(access.DefaultPolicy())
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(opts.CORSOrigins))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Handler())
	}
	router.Use(middleware.Logger(logger))

	if h.Health != nil {
		router.GET("/health", h.Health.Health)
		router.GET("/healthz", h.Health.Live)
	}
	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	// Health and metrics routes are not rate limited.
	base := router.Group(opts.APIPrefix, middleware.RateLimit(opts.Limiter, opts.RateLimit, opts.RateWindow, logger))
	if h.Users != nil && opts.LocalLogin {
		base.POST("/auth/login", h.Users.Login)
	}

	api := base.Group("", middleware.Authenticate(opts.Verifier, logger))
	route := func(method, path string, op access.Operation, handler gin.HandlerFunc) {
		api.Handle(method, path, middleware.Authorize(gate, op), handler)
	}

	if t := h.Tickets; t != nil {
		route(http.MethodGet, "/tickets", access.OpTicketsList, t.List)
		route(http.MethodPost, "/tickets", access.OpTicketsCreate, t.Create)
		route(http.MethodPost, "/tickets/bulk-update", access.OpTicketsBulkUpdate, t.BulkUpdate)
		route(http.MethodGet, "/tickets/:id", access.OpTicketsGet, t.Get)
		route(http.MethodPatch, "/tickets/:id", access.OpTicketsUpdate, t.Update)
	}
	if cm := h.Comments; cm != nil {
		route(http.MethodGet, "/tickets/:id/comments", access.OpCommentsList, cm.List)
		route(http.MethodPost, "/tickets/:id/comments", access.OpCommentsCreate, cm.Create)
		route(http.MethodPatch, "/tickets/:id/comments/:commentId", access.OpCommentsUpdate, cm.Update)
		route(http.MethodDelete, "/tickets/:id/comments/:commentId", access.OpCommentsDelete, cm.Delete)
	}
	if a := h.Attachments; a != nil {
		route(http.MethodGet, "/tickets/:id/attachments", access.OpAttachmentsList, a.List)
		route(http.MethodPost, "/tickets/:id/attachments", access.OpAttachmentsCreate, a.Create)
		route(http.MethodGet, "/tickets/:id/attachments/:attachmentId/download", access.OpAttachmentsDownload, a.Download)
	}
	if d := h.Directory; d != nil {
		route(http.MethodGet, "/directory/sites", access.OpSitesList, d.ListSites)
		route(http.MethodPost, "/directory/sites", access.OpSitesCreate, d.CreateSite)
		route(http.MethodGet, "/directory/issue-types", access.OpIssueTypesList, d.ListIssueTypes)
		route(http.MethodPost, "/directory/issue-types", access.OpIssueTypesCreate, d.CreateIssueType)
		route(http.MethodGet, "/directory/field-definitions", access.OpFieldDefinitionsList, d.ListFieldDefinitions)
		route(http.MethodPost, "/directory/field-definitions", access.OpFieldDefinitionsCreate, d.CreateFieldDefinition)
	}
	if u := h.Users; u != nil {
		route(http.MethodPost, "/auth/register", access.OpAuthRegister, u.Register)
		route(http.MethodGet, "/users", access.OpUsersList, u.List)
		route(http.MethodPatch, "/users/profile", access.OpUsersProfileUpdate, u.UpdateProfile)
		route(http.MethodPost, "/users/profile/change-password", access.OpUsersChangePassword, u.ChangePassword)
		route(http.MethodPatch, "/users/:id", access.OpUsersUpdate, u.Update)
		route(http.MethodDelete, "/users/:id", access.OpUsersDelete, u.Delete)
		route(http.MethodPost, "/users/:id/reset-password", access.OpUsersResetPassword, u.ResetPassword)
	}
	return router
}
