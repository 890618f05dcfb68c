package controller

import (
	"context"
	"strconv"
	"strings"

	"mathtutor/internal/submit/repository"
	"mathtutor/internal/submit/service"
	appErr "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const questionKeyPrefix = "question-"

// SubmitService is the part of service.SubmitService the controller calls.
type SubmitService interface {
	Submit(ctx context.Context, input service.SubmitInput) (*service.SubmitResult, error)
	Get(ctx context.Context, submissionID int64) (*repository.Submission, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*repository.Submission, error)
}

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService SubmitService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService SubmitService) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// Submit grades an uploaded solution for the question in the path.
func (h *SubmitController) Submit(c *gin.Context) {
	problemKey := normalizeProblemKey(c.Param("id"))
	if problemKey == "" {
		response.Error(c, appErr.ValidationError("id", "required"))
		return
	}
	userID, ok := submitterID(c)
	if !ok {
		response.Error(c, appErr.ValidationError("user_id", "must be a positive integer"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErr.ValidationError("file", "No file part"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErr.Wrap(err, appErr.InvalidFile))
		return
	}
	defer file.Close()

	result, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		ProblemKey:  problemKey,
		UserID:      userID,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Get returns one ledger entry.
func (h *SubmitController) Get(c *gin.Context) {
	submissionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || submissionID <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.submitService.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}

// ListByUser returns a user's ledger entries, newest first.
func (h *SubmitController) ListByUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(c, appErr.ValidationError("id", "must be a positive integer"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	submissions, err := h.submitService.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submissions)
}

// normalizeProblemKey accepts both "question-7" and a bare "7".
func normalizeProblemKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return questionKeyPrefix + strconv.Itoa(n)
	}
	return raw
}

// submitterID prefers the form field and falls back to the token's caller.
func submitterID(c *gin.Context) (int64, bool) {
	if raw := strings.TrimSpace(c.PostForm("user_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		return id, err == nil && id > 0
	}
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(int64); ok && id > 0 {
			return id, true
		}
	}
	return 0, false
}
