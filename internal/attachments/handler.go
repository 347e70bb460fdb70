package attachments

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/models"
	"github.com/ticketing-suite/ticketing/pkg/response"
	"github.com/ticketing-suite/ticketing/pkg/storage"
)

// Presigner issues object URLs; *storage.S3 satisfies it.
type Presigner interface {
	PresignUpload(ctx context.Context, key, contentType string, size int64) (string, error)
	PresignDownload(ctx context.Context, key, filename string) (string, error)
	PresignExpire() time.Duration
}

// CreateRequest is the body for POST /tickets/:id/attachments.
type CreateRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes" binding:"required"`
}

// UploadResponse carries the recorded attachment and where to PUT its bytes.
type UploadResponse struct {
	Attachment models.Attachment `json:"attachment"`
	UploadURL  string            `json:"uploadUrl"`
	ExpiresIn  int               `json:"expiresIn"`
}

// Handler handles attachment HTTP requests.
type Handler struct {
	store    Store
	presign  Presigner
	maxBytes int64
	logger   *zap.Logger
}

// NewHandler creates an attachments handler. presign may be nil when object
// storage is not configured; uploads and downloads then answer 503.
func NewHandler(store Store, presign Presigner, maxBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, presign: presign, maxBytes: maxBytes, logger: logger}
}

// List handles GET /tickets/:id/attachments.
func (h *Handler) List(c *gin.Context) {
	p := auth.MustPrincipal(c)
	list, err := h.store.List(c.Request.Context(), p.TenantID, c.Param("id"))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list attachments")
		return
	}
	response.OK(c, gin.H{"attachments": list})
}

// Create handles POST /tickets/:id/attachments.
func (h *Handler) Create(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if h.presign == nil {
		response.ServiceUnavailable(c, "attachment storage is not configured")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.SizeBytes <= 0 {
		response.BadRequest(c, "sizeBytes must be positive")
		return
	}
	if h.maxBytes > 0 && req.SizeBytes > h.maxBytes {
		response.BadRequest(c, "attachment exceeds the size limit")
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(path.Ext(req.Filename)))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.NewString()
	ticketID := c.Param("id")
	objectKey := storage.AttachmentKey(p.TenantID, ticketID, id, req.Filename)
	// The row is only recorded once an upload URL exists for it.
	url, err := h.presign.PresignUpload(c.Request.Context(), objectKey, contentType, req.SizeBytes)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to presign upload")
		return
	}
	a, err := h.store.Create(c.Request.Context(), p.TenantID, models.Attachment{
		ID:          id,
		TicketID:    ticketID,
		ObjectKey:   objectKey,
		Filename:    path.Base(strings.ReplaceAll(req.Filename, "\\", "/")),
		ContentType: contentType,
		SizeBytes:   req.SizeBytes,
		UploadedBy:  p.SubjectID,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create attachment")
		return
	}
	response.Created(c, UploadResponse{Attachment: *a, UploadURL: url, ExpiresIn: int(h.presign.PresignExpire().Seconds())})
}

// Download handles GET /tickets/:id/attachments/:attachmentId/download.
func (h *Handler) Download(c *gin.Context) {
	p := auth.MustPrincipal(c)
	if h.presign == nil {
		response.ServiceUnavailable(c, "attachment storage is not configured")
		return
	}
	a, err := h.store.Get(c.Request.Context(), p.TenantID, c.Param("id"), c.Param("attachmentId"))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to get attachment")
		return
	}
	if !strings.HasPrefix(a.ObjectKey, storage.TenantPrefix(p.TenantID)) {
		h.logger.Error("attachment key outside tenant prefix", zap.String("tenant_id", p.TenantID), zap.String("attachment_id", a.ID))
		response.NotFound(c, "attachment not found")
		return
	}
	url, err := h.presign.PresignDownload(c.Request.Context(), a.ObjectKey, a.Filename)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to presign download")
		return
	}
	response.OK(c, gin.H{"url": url, "expiresIn": int(h.presign.PresignExpire().Seconds())})
}
