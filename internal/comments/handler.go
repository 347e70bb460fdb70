package comments

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/internal/outbox"
	"github.com/ticketing-suite/ticketing/pkg/response"
)

// CreateRequest is the body for POST /tickets/:id/comments.
type CreateRequest struct {
	Body       string            `json:"body" binding:"required"`
	Visibility models.Visibility `json:"visibility"`
}

// UpdateRequest is the body for PATCH /tickets/:id/comments/:commentId.
type UpdateRequest struct {
	Body       *string            `json:"body"`
	Visibility *models.Visibility `json:"visibility"`
}

// Handler handles comment HTTP requests.
type Handler struct {
	store  Store
	events outbox.Enqueuer
	logger *zap.Logger
}

// NewHandler creates a comments handler. events may be nil when no queue is
// available; recorded events then stay pending.
func NewHandler(store Store, events outbox.Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, events: events, logger: logger}
}

func ownerGuard(p auth.Principal, action access.Action) Guard {
	return func(c models.Comment) error {
		return access.RequireOwnership(p, c.Author(), action, "comments")
	}
}

// List handles GET /tickets/:id/comments.
func (h *Handler) List(c *gin.Context) {
	p := auth.MustPrincipal(c)
	list, err := h.store.List(c.Request.Context(), p.TenantID, c.Param("id"))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list comments")
		return
	}
	response.OK(c, gin.H{"comments": list})
}

// Create handles POST /tickets/:id/comments.
func (h *Handler) Create(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		response.BadRequest(c, "body is required")
		return
	}
	if req.Visibility != "" && !req.Visibility.Valid() {
		response.BadRequest(c, "invalid visibility")
		return
	}
	comment, ev, err := h.store.Create(c.Request.Context(), p.TenantID, c.Param("id"), CreateInput{
		AuthorUserID: p.SubjectID,
		Body:         req.Body,
		Visibility:   req.Visibility,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create comment")
		return
	}
	outbox.Notify(c.Request.Context(), h.events, ev, h.logger)
	response.Created(c, comment)
}

// Update handles PATCH /tickets/:id/comments/:commentId.
func (h *Handler) Update(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Body != nil && strings.TrimSpace(*req.Body) == "" {
		response.BadRequest(c, "body cannot be empty")
		return
	}
	if req.Visibility != nil && !req.Visibility.Valid() {
		response.BadRequest(c, "invalid visibility")
		return
	}
	comment, err := h.store.Update(c.Request.Context(), p.TenantID, c.Param("id"), c.Param("commentId"),
		UpdateInput(req), ownerGuard(p, access.ActionEdit))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to update comment")
		return
	}
	response.OK(c, comment)
}

// Delete handles DELETE /tickets/:id/comments/:commentId.
func (h *Handler) Delete(c *gin.Context) {
	p := auth.MustPrincipal(c)
	commentID := c.Param("commentId")
	err := h.store.Delete(c.Request.Context(), p.TenantID, c.Param("id"), commentID, ownerGuard(p, access.ActionDelete))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to delete comment")
		return
	}
	h.logger.Info("comment deleted", zap.String("tenant_id", p.TenantID), zap.String("comment_id", commentID), zap.String("subject", p.SubjectID))
	response.OK(c, gin.H{"id": commentID, "deleted": true})
}
