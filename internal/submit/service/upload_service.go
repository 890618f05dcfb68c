package service

import (
	"context"
	"io"
	"time"

	"mathtutor/internal/common/storage"
	appErr "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/logger"

	"go.uber.org/zap"
)

const uploadTimeLayout = "20060102150405"

// UploadService stores standalone uploads that are not graded.
type UploadService struct {
	storage      storage.ObjectStorage
	maxBytes     int64
	prefix       string
	storeTimeout time.Duration
	now          func() time.Time
}

// UploadInput describes one uploaded file.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	QuestionID  string
}

type UploadResult struct {
	FilePath   string `json:"file_path"`
	QuestionID string `json:"question_id"`
}

// NewUploadService stores files under prefix. An empty prefix writes to the
// storage root.
func NewUploadService(objectStorage storage.ObjectStorage, prefix string, maxBytes int64, storeTimeout time.Duration) *UploadService {
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &UploadService{
		storage:      objectStorage,
		maxBytes:     maxBytes,
		prefix:       prefix,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// Upload saves the file as <timestamp>_<sanitized name>.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.Body == nil {
		return nil, appErr.ValidationError("file", "required")
	}
	filename := storage.SanitizeFilename(input.Filename)
	if filename == "" {
		return nil, appErr.New(appErr.InvalidFile).WithMessage("No selected file")
	}
	if input.Size > s.maxBytes {
		return nil, appErr.New(appErr.FileTooLarge).WithDetail("max_bytes", s.maxBytes)
	}

	key, ok := storage.JoinKey(s.prefix, s.now().Format(uploadTimeLayout)+"_"+filename)
	if !ok {
		return nil, appErr.New(appErr.InvalidFile).WithMessage("Invalid file name")
	}
	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	location, err := s.storage.PutObject(storeCtx, key, input.Body, input.Size, input.ContentType)
	if err != nil {
		logger.Error(ctx, "store upload failed", zap.String("key", key), zap.Error(err))
		return nil, appErr.Wrap(err, appErr.StorageError)
	}
	return &UploadResult{FilePath: location, QuestionID: input.QuestionID}, nil
}
