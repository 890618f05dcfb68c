package controller

import (
	"context"

	"mathtutor/internal/submit/service"
	appErr "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const defaultUploadQuestionID = "unknown"

type UploadService interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error)
}

// UploadController stores files without grading them.
type UploadController struct {
	uploadService UploadService
}

func NewUploadController(uploadService UploadService) *UploadController {
	return &UploadController{uploadService: uploadService}
}

func (h *UploadController) Upload(c *gin.Context) {
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

	result, err := h.uploadService.Upload(c.Request.Context(), service.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
		QuestionID:  c.DefaultPostForm("question_id", defaultUploadQuestionID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
