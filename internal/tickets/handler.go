package tickets

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/pkg/response"
)

// CreateRequest is the body for POST /tickets.
type CreateRequest struct {
	SiteID         string              `json:"siteId" binding:"required"`
	Type           string              `json:"type" binding:"required"`
	Description    string              `json:"description" binding:"required"`
	Details        *string             `json:"details"`
	Status         models.TicketStatus `json:"status"`
	Priority       models.Priority     `json:"priority" binding:"required"`
	AssignedUserID *string             `json:"assignedUserId"`
	DueAt          *time.Time          `json:"dueAt"`
	CustomFields   map[string]any      `json:"custom_fields"`
}

// UpdateRequest is the body for PATCH /tickets/:id.
type UpdateRequest struct {
	Description    *string              `json:"description"`
	Details        *string              `json:"details"`
	Status         *models.TicketStatus `json:"status"`
	Priority       *models.Priority     `json:"priority"`
	AssignedUserID *string              `json:"assignedUserId"`
	DueAt          *time.Time           `json:"dueAt"`
	CustomFields   map[string]any       `json:"custom_fields"`
}

// BulkUpdateRequest is the body for POST /tickets/bulk-update.
type BulkUpdateRequest struct {
	IDs            []string             `json:"ids" binding:"required,min=1"`
	Status         *models.TicketStatus `json:"status"`
	Priority       *models.Priority     `json:"priority"`
	AssignedUserID *string              `json:"assignedUserId"`
	DueAt          *time.Time           `json:"dueAt"`
}

// Handler handles ticket HTTP requests.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a tickets handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// List handles GET /tickets.
func (h *Handler) List(c *gin.Context) {
	p := auth.MustPrincipal(c)
	f := Filter{
		Status:         models.TicketStatus(c.Query("status")),
		Priority:       models.Priority(c.Query("priority")),
		SiteID:         c.Query("siteId"),
		AssignedUserID: c.Query("assignedUserId"),
		Search:         strings.TrimSpace(c.Query("search")),
	}
	if f.Status != "" && !f.Status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		response.BadRequest(c, "invalid priority")
		return
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(c, "invalid limit")
			return
		}
		f.Limit = n
	}
	list, err := h.store.List(c.Request.Context(), p.TenantID, f)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list tickets")
		return
	}
	response.OK(c, gin.H{"tickets": list})
}

// Get handles GET /tickets/:id.
func (h *Handler) Get(c *gin.Context) {
	p := auth.MustPrincipal(c)
	t, err := h.store.Get(c.Request.Context(), p.TenantID, c.Param("id"))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to get ticket")
		return
	}
	response.OK(c, t)
}

// Create handles POST /tickets.
func (h *Handler) Create(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		response.BadRequest(c, "description is required")
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	if !req.Priority.Valid() {
		response.BadRequest(c, "invalid priority")
		return
	}
	t, err := h.store.Create(c.Request.Context(), p.TenantID, CreateInput{
		SiteID:         req.SiteID,
		TypeKey:        req.Type,
		Description:    req.Description,
		Details:        req.Details,
		Status:         req.Status,
		Priority:       req.Priority,
		AssignedUserID: req.AssignedUserID,
		DueAt:          req.DueAt,
		CustomFields:   req.CustomFields,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create ticket")
		return
	}
	h.logger.Info("ticket created", zap.String("tenant_id", p.TenantID), zap.String("ticket_id", t.ID), zap.String("subject", p.SubjectID))
	response.Created(c, t)
}

// Update handles PATCH /tickets/:id.
func (h *Handler) Update(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
		response.BadRequest(c, "description cannot be empty")
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	if req.Priority != nil && !req.Priority.Valid() {
		response.BadRequest(c, "invalid priority")
		return
	}
	t, err := h.store.Update(c.Request.Context(), p.TenantID, c.Param("id"), UpdateInput(req))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to update ticket")
		return
	}
	response.OK(c, t)
}

// BulkUpdate handles POST /tickets/bulk-update.
func (h *Handler) BulkUpdate(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	if req.Priority != nil && !req.Priority.Valid() {
		response.BadRequest(c, "invalid priority")
		return
	}
	if req.Status == nil && req.Priority == nil && req.AssignedUserID == nil && req.DueAt == nil {
		response.BadRequest(c, "nothing to update")
		return
	}
	n, err := h.store.BulkUpdate(c.Request.Context(), p.TenantID, BulkUpdateInput(req))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to update tickets")
		return
	}
	response.OK(c, gin.H{"updated": n})
}
