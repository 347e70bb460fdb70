package directory

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/pkg/response"
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// CreateSiteRequest is the body for POST /directory/sites.
type CreateSiteRequest struct {
	Name     string  `json:"name" binding:"required"`
	Location *string `json:"location"`
}

// CreateIssueTypeRequest is the body for POST /directory/issue-types.
type CreateIssueTypeRequest struct {
	Key    string `json:"key" binding:"required"`
	Label  string `json:"label" binding:"required"`
	Active *bool  `json:"active"`
}

// CreateFieldDefinitionRequest is the body for POST /directory/field-definitions.
type CreateFieldDefinitionRequest struct {
	Key         string               `json:"key" binding:"required"`
	Label       string               `json:"label" binding:"required"`
	Datatype    models.FieldDatatype `json:"datatype" binding:"required"`
	Required    bool                 `json:"required"`
	EnumOptions []string             `json:"enumOptions"`
}

// Handler handles directory HTTP requests.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a directory handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// ListSites handles GET /directory/sites.
func (h *Handler) ListSites(c *gin.Context) {
	p := auth.MustPrincipal(c)
	list, err := h.store.ListSites(c.Request.Context(), p.TenantID)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list sites")
		return
	}
	response.OK(c, gin.H{"sites": list})
}

// CreateSite handles POST /directory/sites.
func (h *Handler) CreateSite(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		response.BadRequest(c, "name is required")
		return
	}
	site, err := h.store.CreateSite(c.Request.Context(), p.TenantID, models.Site{Name: name, Location: req.Location})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create site")
		return
	}
	response.Created(c, site)
}

// ListIssueTypes handles GET /directory/issue-types.
func (h *Handler) ListIssueTypes(c *gin.Context) {
	p := auth.MustPrincipal(c)
	list, err := h.store.ListIssueTypes(c.Request.Context(), p.TenantID)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list issue types")
		return
	}
	response.OK(c, gin.H{"issueTypes": list})
}

// CreateIssueType handles POST /directory/issue-types.
func (h *Handler) CreateIssueType(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req CreateIssueTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !keyPattern.MatchString(req.Key) {
		response.BadRequest(c, "key must be lowercase letters, digits or underscores")
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	it, err := h.store.CreateIssueType(c.Request.Context(), p.TenantID, models.IssueType{Key: req.Key, Label: req.Label, Active: active})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create issue type")
		return
	}
	response.Created(c, it)
}

// ListFieldDefinitions handles GET /directory/field-definitions.
func (h *Handler) ListFieldDefinitions(c *gin.Context) {
	p := auth.MustPrincipal(c)
	list, err := h.store.ListFieldDefinitions(c.Request.Context(), p.TenantID)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list field definitions")
		return
	}
	response.OK(c, gin.H{"fieldDefinitions": list})
}

// CreateFieldDefinition handles POST /directory/field-definitions.
func (h *Handler) CreateFieldDefinition(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req CreateFieldDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !keyPattern.MatchString(req.Key) {
		response.BadRequest(c, "key must be lowercase letters, digits or underscores")
		return
	}
	if !req.Datatype.Valid() {
		response.BadRequest(c, "invalid datatype")
		return
	}
	if req.Datatype == models.DatatypeEnum && len(req.EnumOptions) == 0 {
		response.BadRequest(c, "enum fields need enumOptions")
		return
	}
	if req.Datatype != models.DatatypeEnum {
		req.EnumOptions = nil
	}
	fd, err := h.store.CreateFieldDefinition(c.Request.Context(), p.TenantID, models.FieldDefinition{
		Key:         req.Key,
		Label:       req.Label,
		Datatype:    req.Datatype,
		Required:    req.Required,
		EnumOptions: req.EnumOptions,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create field definition")
		return
	}
	response.Created(c, fd)
}
