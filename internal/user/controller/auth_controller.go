package controller

import (
	"context"
	"time"

	"mathtutor/internal/user/service"
	"mathtutor/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AuthService is the part of service.AuthService the controller calls.
type AuthService interface {
	Signup(ctx context.Context, input service.SignupInput) (int64, error)
	Login(ctx context.Context, input service.LoginInput) (service.LoginResult, error)
	ResetPassword(ctx context.Context, username, password string) error
}

// AuthController handles auth-related HTTP endpoints.
type AuthController struct {
	authService AuthService
}

// NewAuthController creates a new AuthController.
func NewAuthController(authService AuthService) *AuthController {
	return &AuthController{authService: authService}
}

// Signup handles user registration.
func (h *AuthController) Signup(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	userID, err := h.authService.Signup(c.Request.Context(), service.SignupInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, SignupResponse{UserID: userID})
}

// Login handles user login.
func (h *AuthController) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
		IP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := LoginResponse{
		UserID:      result.User.ID,
		Username:    result.User.Username,
		Rating:      result.User.Rating,
		AccessToken: result.AccessToken,
	}
	if !result.AccessExpiresAt.IsZero() {
		expiresAt := result.AccessExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	response.Success(c, resp)
}

// ResetPassword always answers 200 so callers cannot probe for usernames.
func (h *AuthController) ResetPassword(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Username, req.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "If the account exists, its password has been reset"})
}

// CredentialsRequest is the signup, login and reset payload.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SignupResponse struct {
	UserID int64 `json:"userid"`
}

type LoginResponse struct {
	UserID      int64      `json:"userid"`
	Username    string     `json:"username"`
	Rating      float64    `json:"rating"`
	AccessToken string     `json:"access_token,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
