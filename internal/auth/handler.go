package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/internal/models"
	"github.com/dealmates/backend/pkg/response"
	"github.com/dealmates/backend/pkg/storage"
	"github.com/dealmates/backend/pkg/utils"
)

// UserStore is the persistence surface the handlers use. Implemented by
// *Repository.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.UserPublic, error)
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
	Create(ctx context.Context, email, passwordHash, fullName string, role models.Role, profile *CreateUserParams) (*models.User, error)
	UpdateProfile(ctx context.Context, u *models.User) error
	UpdateAvatar(ctx context.Context, userID uuid.UUID, avatarURL string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Notifier broadcasts account events to the admins. Failures are non-fatal.
// Implemented by the notifications service.
type Notifier interface {
	Broadcast(ctx context.Context, userIDs []uuid.UUID, title, message string) error
}

// DealBrowser serves a user's joined and wishlisted deals. Implemented by
// the deals service.
type DealBrowser interface {
	ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]models.DealView, error)
	ListWishlistedBy(ctx context.Context, userID uuid.UUID) ([]models.DealView, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest is the body for PATCH /users/me. Changing email or
// password requires the current password.
type UpdateProfileRequest struct {
	FullName        *string `json:"full_name"`
	Phone           *string `json:"phone"`
	Address         *string `json:"address"`
	Email           *string `json:"email" binding:"omitempty,email"`
	NewPassword     *string `json:"new_password" binding:"omitempty,min=6"`
	CurrentPassword string  `json:"current_password"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth and user account HTTP endpoints.
type Handler struct {
	repo     UserStore
	jwt      *JWTService
	s3       *storage.S3
	notifier Notifier
	deals    DealBrowser
	logger   *zap.Logger
}

// NewHandler creates an auth handler. s3 may be nil (avatar upload disabled).
func NewHandler(repo UserStore, jwt *JWTService, s3 *storage.S3, notifier Notifier, deals DealBrowser, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, s3: s3, notifier: notifier, deals: deals, logger: logger}
}

// Register handles POST /auth/register. New accounts always get the user
// role; admins are promoted out of band. Admins are notified of every
// registration.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	_, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err == nil {
		response.BadRequest(c, "email already registered")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	profile := &CreateUserParams{Phone: req.Phone, Address: req.Address}
	user, err := h.repo.Create(c.Request.Context(), req.Email, hash, req.FullName, models.RoleUser, profile)
	if err != nil {
		h.logger.Error("create user failed", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	h.notifyAdmins(c, "New user registered",
		fmt.Sprintf("The user %q just registered.", user.FullName))

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, response.Body{Success: true, Data: TokenResponse{Token: token, User: user.ToPublic()}})
}

// Me handles GET /users/me.
func (h *Handler) Me(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, user.ToPublic())
}

// UpdateProfile handles PATCH /users/me.
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}

	if req.Email != nil || req.NewPassword != nil {
		if req.CurrentPassword == "" {
			response.BadRequest(c, "current password required")
			return
		}
		if !utils.CheckPassword(req.CurrentPassword, user.Password) {
			response.Unauthorized(c, "invalid current password")
			return
		}
	}

	if req.Email != nil && *req.Email != user.Email {
		if _, err := h.repo.GetByEmail(c.Request.Context(), *req.Email); err == nil {
			response.BadRequest(c, "email already in use")
			return
		}
		user.Email = *req.Email
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Address != nil {
		user.Address = *req.Address
	}
	if req.NewPassword != nil {
		hash, err := utils.HashPassword(*req.NewPassword)
		if err != nil {
			response.Internal(c, "failed to hash password")
			return
		}
		user.Password = hash
	}

	if err := h.repo.UpdateProfile(c.Request.Context(), user); err != nil {
		h.logger.Error("update profile failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to update profile")
		return
	}
	response.OK(c, user.ToPublic())
}

// List handles GET /users (admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: list})
}

// Delete handles DELETE /users/:id (admin only). Admins are notified of the
// deletion; an account with settlement history cannot be deleted.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}

	user, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}

	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrHasPayments) {
			response.Conflict(c, ErrHasPayments.Error())
			return
		}
		h.logger.Error("delete user failed", zap.Error(err), zap.String("user_id", id.String()))
		response.Internal(c, "failed to delete user")
		return
	}

	h.notifyAdmins(c, "User deleted",
		fmt.Sprintf("The user %q was removed from the platform.", user.FullName))
	response.OK(c, gin.H{"deleted": true})
}

// MyJoinedDeals handles GET /users/me/deals.
func (h *Handler) MyJoinedDeals(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	list, err := h.deals.ListJoinedBy(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list joined deals failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to list joined deals")
		return
	}
	response.OK(c, list)
}

// MyWishlist handles GET /users/me/wishlist.
func (h *Handler) MyWishlist(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	list, err := h.deals.ListWishlistedBy(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list wishlist failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to list wishlist")
		return
	}
	response.OK(c, list)
}

// UploadAvatar handles POST /users/me/avatar (multipart form, field "avatar").
func (h *Handler) UploadAvatar(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "media storage not configured")
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)

	file, err := c.FormFile("avatar")
	if err != nil {
		response.BadRequest(c, "avatar file required")
		return
	}
	if file.Size > storage.MaxMediaFileSize {
		response.BadRequest(c, "file too large")
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !storage.ValidateMediaFileType(contentType, file.Filename) {
		response.BadRequest(c, "unsupported file type")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Internal(c, "failed to read file")
		return
	}
	defer src.Close()

	key := storage.AvatarKey(userID.String(), file.Filename)
	url, err := h.s3.Upload(c.Request.Context(), h.s3.MediaBucket(), key, storage.ContentTypeForFilename(file.Filename), src, file.Size, true)
	if err != nil {
		h.logger.Error("avatar upload failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to upload avatar")
		return
	}

	if err := h.repo.UpdateAvatar(c.Request.Context(), userID, url); err != nil {
		response.Internal(c, "failed to save avatar")
		return
	}
	response.OK(c, gin.H{"avatar_url": url})
}

// notifyAdmins broadcasts an account event to every admin. Queued and
// non-fatal; the request outcome never depends on it.
func (h *Handler) notifyAdmins(c *gin.Context, title, message string) {
	ids, err := h.repo.ListAdminIDs(c.Request.Context())
	if err != nil {
		h.logger.Warn("list admins failed", zap.Error(err))
		return
	}
	if err := h.notifier.Broadcast(c.Request.Context(), ids, title, message); err != nil {
		h.logger.Warn("admin broadcast failed", zap.Error(err), zap.String("title", title))
	}
}
