package users

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/pkg/response"
	"github.com/ticketing-suite/ticketing/pkg/utils"
)

// assignableRoles are the roles an admin may give a local user.
var assignableRoles = access.Roles(
	access.RoleAdmin,
	access.RoleUser,
	access.RoleAssetManager,
	access.RoleOandM,
	access.RoleMonitoring,
	access.RoleContractor,
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the login response.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// ProfileRequest is the body for PATCH /users/profile.
type ProfileRequest struct {
	Name string `json:"name" binding:"required"`
}

// ChangePasswordRequest is the body for POST /users/profile/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

// AdminUpdateRequest is the body for PATCH /users/:id.
type AdminUpdateRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

// ResetPasswordRequest is the body for POST /users/:id/reset-password.
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

// Handler handles user and local credential HTTP requests.
type Handler struct {
	store  Store
	issuer *auth.TokenIssuer
	logger *zap.Logger
}

// NewHandler creates a users handler. issuer may be nil when local login is
// disabled.
func NewHandler(store Store, issuer *auth.TokenIssuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, issuer: issuer, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	if h.issuer == nil {
		response.NotFound(c, "local login is disabled")
		return
	}
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	user, err := h.store.FindByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, ErrInvalidCredentials) {
		utils.CheckPassword(req.Password, "")
		response.Unauthorized(c, "Invalid credentials")
		return
	}
	if err != nil {
		response.Fail(c, h.logger, err, "failed to log in")
		return
	}
	if !user.IsActive || !utils.CheckPassword(req.Password, user.PasswordHash) {
		response.Unauthorized(c, "Invalid credentials")
		return
	}
	token, err := h.issuer.Issue(auth.Principal{
		SubjectID: user.ID,
		TenantID:  user.TenantID,
		Roles:     []string{user.Role},
		Email:     user.Email,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Register handles POST /auth/register. The new user always joins the
// caller's tenant.
func (h *Handler) Register(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := req.Role
	if role == "" {
		role = access.RoleUser
	}
	if _, ok := assignableRoles[role]; !ok {
		response.BadRequest(c, "invalid role")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		response.BadRequest(c, "name is required")
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to hash password")
		return
	}
	user, err := h.store.Create(c.Request.Context(), p.TenantID, NewUser{Email: req.Email, PasswordHash: hash, Name: name, Role: role})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create user")
		return
	}
	h.logger.Info("user registered", zap.String("tenant_id", p.TenantID), zap.String("user_id", user.ID), zap.String("by", p.SubjectID))
	response.Created(c, user.ToPublic())
}

// List handles GET /users.
func (h *Handler) List(c *gin.Context) {
	p := auth.MustPrincipal(c)
	list, err := h.store.List(c.Request.Context(), p.TenantID)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list users")
		return
	}
	out := make([]models.UserPublic, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToPublic())
	}
	response.OK(c, gin.H{"users": out})
}

// UpdateProfile handles PATCH /users/profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		response.BadRequest(c, "name is required")
		return
	}
	user, err := h.store.Update(c.Request.Context(), p.TenantID, p.SubjectID, UpdateInput{Name: &name})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to update profile")
		return
	}
	response.OK(c, user.ToPublic())
}

// ChangePassword handles POST /users/profile/change-password.
func (h *Handler) ChangePassword(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	err := h.store.SetPassword(c.Request.Context(), p.TenantID, p.SubjectID, func(u models.User) (string, error) {
		if !utils.CheckPassword(req.OldPassword, u.PasswordHash) {
			return "", access.BadRequest("Invalid old password")
		}
		return utils.HashPassword(req.NewPassword)
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to change password")
		return
	}
	response.OK(c, gin.H{"success": true})
}

// Update handles PATCH /users/:id.
func (h *Handler) Update(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req AdminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Role != nil {
		if _, ok := assignableRoles[*req.Role]; !ok {
			response.BadRequest(c, "invalid role")
			return
		}
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		response.BadRequest(c, "name cannot be empty")
		return
	}
	user, err := h.store.Update(c.Request.Context(), p.TenantID, c.Param("id"), UpdateInput(req))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to update user")
		return
	}
	response.OK(c, user.ToPublic())
}

// Delete handles DELETE /users/:id.
func (h *Handler) Delete(c *gin.Context) {
	p := auth.MustPrincipal(c)
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), p.TenantID, id); err != nil {
		response.Fail(c, h.logger, err, "failed to delete user")
		return
	}
	h.logger.Info("user deleted", zap.String("tenant_id", p.TenantID), zap.String("user_id", id), zap.String("by", p.SubjectID))
	response.OK(c, gin.H{"success": true})
}

// ResetPassword handles POST /users/:id/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	p := auth.MustPrincipal(c)
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	err := h.store.SetPassword(c.Request.Context(), p.TenantID, c.Param("id"), func(models.User) (string, error) {
		return utils.HashPassword(req.NewPassword)
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to reset password")
		return
	}
	response.OK(c, gin.H{"success": true})
}
