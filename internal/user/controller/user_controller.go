package controller

import (
	"context"
	"strconv"
	"time"

	"mathtutor/internal/user/repository"
	"mathtutor/internal/user/service"
	pkgerrors "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// UserService is the part of service.UserService the controller calls.
type UserService interface {
	Get(ctx context.Context, id int64) (*repository.User, error)
	List(ctx context.Context, limit, offset int) ([]*repository.User, error)
	Create(ctx context.Context, input service.CreateUserInput) (*repository.User, error)
	Update(ctx context.Context, id int64, input service.UpdateUserInput) (*repository.User, error)
	Delete(ctx context.Context, id int64) error
	SetProfileImage(ctx context.Context, id int64, imagePath string) (string, error)
	RatingHistory(ctx context.Context, id int64, limit int) ([]service.RatingEntry, error)
}

// UserController serves account profile endpoints.
type UserController struct {
	userService UserService
}

func NewUserController(userService UserService) *UserController {
	return &UserController{userService: userService}
}

func (h *UserController) Get(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toUserResponse(user))
}

func (h *UserController) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	users, err := h.userService.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	response.Success(c, out)
}

func (h *UserController) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	user, err := h.userService.Create(c.Request.Context(), service.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Rating:   req.Rating,
		Role:     repository.UserRole(req.Role),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toUserResponse(user))
}

func (h *UserController) Update(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Rating == nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	user, err := h.userService.Update(c.Request.Context(), id, service.UpdateUserInput{
		Username: req.Username,
		Rating:   *req.Rating,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toUserResponse(user))
}

func (h *UserController) Delete(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	if err := h.userService.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "User deleted"})
}

func (h *UserController) SetProfileImage(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	var req ProfileImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	path, err := h.userService.SetProfileImage(c.Request.Context(), id, req.ImagePath)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"profile_image": path})
}

func (h *UserController) RatingHistory(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.userService.RatingHistory(c.Request.Context(), id, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]RatingPointResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, RatingPointResponse{Date: e.Date, Rating: e.Rating})
	}
	response.Success(c, out)
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, pkgerrors.ValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

type CreateUserRequest struct {
	Username string  `json:"username" binding:"required"`
	Password string  `json:"password"`
	Rating   float64 `json:"rating"`
	Role     string  `json:"role"`
}

type UpdateUserRequest struct {
	Username string   `json:"username" binding:"required"`
	Rating   *float64 `json:"rating"`
}

type ProfileImageRequest struct {
	ImagePath string `json:"image_path" binding:"required"`
}

type UserResponse struct {
	UserID       int64   `json:"userid"`
	Username     string  `json:"username"`
	Rating       float64 `json:"rating"`
	ProfileImage *string `json:"profile_image"`
}

type RatingPointResponse struct {
	Date   time.Time `json:"date"`
	Rating float64   `json:"rating"`
}

func toUserResponse(user *repository.User) UserResponse {
	resp := UserResponse{
		UserID:   user.ID,
		Username: user.Username,
		Rating:   user.Rating,
	}
	if user.ProfileImage != "" {
		image := user.ProfileImage
		resp.ProfileImage = &image
	}
	return resp
}
