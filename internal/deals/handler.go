package deals

import (
	"context"
	"errors"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/internal/models"
	"github.com/dealmates/backend/pkg/response"
	"github.com/dealmates/backend/pkg/storage"
)

// Handler handles deal HTTP endpoints.
type Handler struct {
	service *Service
	s3      *storage.S3
	logger  *zap.Logger
}

// NewHandler creates a deals handler. s3 may be nil (media upload disabled).
func NewHandler(service *Service, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, s3: s3, logger: logger}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrAlreadyJoined), errors.Is(err, ErrGroupFull), errors.Is(err, ErrHasPayments):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrNotActive):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("deal operation failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}

// List handles GET /deals.
func (h *Handler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, list)
}

// ListActive handles GET /deals/active.
func (h *Handler) ListActive(c *gin.Context) {
	list, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, list)
}

// ListByCategory handles GET /deals/category/:category.
func (h *Handler) ListByCategory(c *gin.Context) {
	list, err := h.service.ListByCategory(c.Request.Context(), c.Param("category"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /deals/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid deal id")
		return
	}
	view, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, view)
}

// Create handles POST /deals (admin, multipart form). Media files are
// uploaded to S3 first; the deal stores the returned URLs as opaque strings.
// Form fields: name, content, category, supplier, regular_price_cents,
// discounted_price_cents, target_participant_count, target_date (RFC3339),
// files: main_image (required when S3 configured), images, videos.
func (h *Handler) Create(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		response.BadRequest(c, "name required")
		return
	}
	regularPrice, err := strconv.Atoi(c.PostForm("regular_price_cents"))
	if err != nil || regularPrice <= 0 {
		response.BadRequest(c, "invalid regular_price_cents")
		return
	}
	discountedPrice, err := strconv.Atoi(c.PostForm("discounted_price_cents"))
	if err != nil || discountedPrice <= 0 || discountedPrice >= regularPrice {
		response.BadRequest(c, "discounted_price_cents must be positive and below regular price")
		return
	}
	target, err := strconv.Atoi(c.PostForm("target_participant_count"))
	if err != nil || target <= 0 {
		response.BadRequest(c, "invalid target_participant_count")
		return
	}
	targetDate, err := time.Parse(time.RFC3339, c.PostForm("target_date"))
	if err != nil {
		response.BadRequest(c, "invalid target_date (want RFC3339)")
		return
	}

	d := &models.Deal{
		ID:                     uuid.New(),
		Name:                   name,
		Content:                c.PostForm("content"),
		Category:               c.PostForm("category"),
		Supplier:               c.PostForm("supplier"),
		RegularPriceCents:      regularPrice,
		DiscountedPriceCents:   discountedPrice,
		TargetParticipantCount: target,
		TargetDate:             targetDate,
		Status:                 models.DealStatusActive,
	}

	if form, err := c.MultipartForm(); err == nil && h.s3 != nil {
		if mains := form.File["main_image"]; len(mains) > 0 {
			url, err := h.uploadMedia(c, d.ID.String(), mains[0])
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			d.MainImageURL = url
		}
		for _, f := range form.File["images"] {
			url, err := h.uploadMedia(c, d.ID.String(), f)
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			d.ImageURLs = append(d.ImageURLs, url)
		}
		for _, f := range form.File["videos"] {
			url, err := h.uploadMedia(c, d.ID.String(), f)
			if err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			d.VideoURLs = append(d.VideoURLs, url)
		}
	}

	// The repository assigns the canonical id; media keys used the
	// provisional one, which is fine since keys only need uniqueness.
	d.ID = uuid.Nil
	view, err := h.service.Create(c.Request.Context(), d)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, view)
}

func (h *Handler) uploadMedia(c *gin.Context, dealID string, file *multipart.FileHeader) (string, error) {
	if file.Size > storage.MaxMediaFileSize {
		return "", errors.New("file too large: " + file.Filename)
	}
	contentType := file.Header.Get("Content-Type")
	if !storage.ValidateMediaFileType(contentType, file.Filename) {
		return "", errors.New("unsupported file type: " + file.Filename)
	}
	src, err := file.Open()
	if err != nil {
		return "", errors.New("failed to read file: " + file.Filename)
	}
	defer src.Close()
	key := storage.DealMediaKey(dealID, file.Filename)
	return h.s3.Upload(c.Request.Context(), h.s3.MediaBucket(), key, storage.ContentTypeForFilename(file.Filename), src, file.Size, true)
}

// UpdateRequest is the body for PATCH /deals/:id.
type UpdateRequest struct {
	Name         *string  `json:"name"`
	Content      *string  `json:"content"`
	Category     *string  `json:"category"`
	Supplier     *string  `json:"supplier"`
	MainImageURL *string  `json:"main_image_url"`
	ImageURLs    []string `json:"image_urls"`
	VideoURLs    []string `json:"video_urls"`
}

// Update handles PATCH /deals/:id (admin).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid deal id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	current, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	d := current.Deal
	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Content != nil {
		d.Content = *req.Content
	}
	if req.Category != nil {
		d.Category = *req.Category
	}
	if req.Supplier != nil {
		d.Supplier = *req.Supplier
	}
	if req.MainImageURL != nil {
		d.MainImageURL = *req.MainImageURL
	}
	if req.ImageURLs != nil {
		d.ImageURLs = req.ImageURLs
	}
	if req.VideoURLs != nil {
		d.VideoURLs = req.VideoURLs
	}
	view, err := h.service.Update(c.Request.Context(), &d)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, view)
}

// Delete handles DELETE /deals/:id (admin). Media objects are removed
// best-effort after the row; an orphaned object is preferable to a deal
// pointing at deleted media.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid deal id")
		return
	}
	view, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	if h.s3 != nil {
		h.deleteMedia(c, &view.Deal)
	}
	response.NoContent(c)
}

func (h *Handler) deleteMedia(c *gin.Context, d *models.Deal) {
	urls := append([]string{d.MainImageURL}, d.ImageURLs...)
	urls = append(urls, d.VideoURLs...)
	for _, u := range urls {
		key := h.s3.KeyFromURL(h.s3.MediaBucket(), u)
		if key == "" {
			continue
		}
		if err := h.s3.DeleteMedia(c.Request.Context(), key); err != nil {
			h.logger.Warn("delete media failed", zap.Error(err), zap.String("key", key))
		}
	}
}

// Join handles POST /deals/:id/join.
func (h *Handler) Join(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid deal id")
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)
	view, err := h.service.Join(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, view)
}

// StatusRequest is the body for PATCH /deals/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /deals/:id/status (admin). The response carries
// the settlement report so partial capture failures are visible, not folded
// into a generic success.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid deal id")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	switch req.Status {
	case models.DealStatusActive, models.DealStatusCompleted, models.DealStatusFailed:
	default:
		response.BadRequest(c, "invalid status")
		return
	}
	view, report, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, gin.H{"deal": view, "settlement": report})
}

// AddToWishlist handles POST /deals/:id/wishlist.
func (h *Handler) AddToWishlist(c *gin.Context) {
	h.wishlist(c, h.service.AddToWishlist)
}

// RemoveFromWishlist handles DELETE /deals/:id/wishlist.
func (h *Handler) RemoveFromWishlist(c *gin.Context) {
	h.wishlist(c, h.service.RemoveFromWishlist)
}

func (h *Handler) wishlist(c *gin.Context, op func(ctx context.Context, dealID, userID uuid.UUID) (*models.DealView, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid deal id")
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)
	view, err := op(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, view)
}

// GenerateUploadURL handles POST /deals/:id/media/generate-upload-url
// (admin). Returns a pre-signed PUT URL for direct browser upload.
func (h *Handler) GenerateUploadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "media storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid deal id")
		return
	}
	var req struct {
		Filename    string `json:"filename" binding:"required"`
		ContentType string `json:"content_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.ValidateMediaFileType(req.ContentType, req.Filename) {
		response.BadRequest(c, "unsupported file type")
		return
	}
	key := storage.DealMediaKey(id.String(), req.Filename)
	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(req.Filename)
	}
	url, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), h.s3.MediaBucket(), key, contentType, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign upload failed", zap.Error(err))
		response.Internal(c, "failed to generate upload url")
		return
	}
	response.OK(c, gin.H{
		"upload_url": url,
		"object_url": h.s3.PublicObjectURL(h.s3.MediaBucket(), key),
	})
}
