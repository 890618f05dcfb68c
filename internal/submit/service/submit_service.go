package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mathtutor/internal/common/events"
	"mathtutor/internal/common/mq"
	"mathtutor/internal/common/storage"
	"mathtutor/internal/evaluation"
	"mathtutor/internal/problem/dataset"
	"mathtutor/internal/submit/repository"
	appErr "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSolutionPrefix = "solutions"
	defaultMaxImageBytes  = 10 << 20
	defaultListLimit      = 50
	maxListLimit          = 200
	sniffLen              = 512
)

// ReferenceLookup resolves the canonical solution for a question id.
type ReferenceLookup interface {
	Lookup(questionID string) (dataset.Record, error)
}

// Evaluator grades a stored solution image.
type Evaluator interface {
	Run(ctx context.Context, in evaluation.Input) (evaluation.Result, error)
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	Storage time.Duration `yaml:"storage"`
	DB      time.Duration `yaml:"db"`
	MQ      time.Duration `yaml:"mq"`
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	References     ReferenceLookup
	Storage        storage.ObjectStorage
	Evaluator      Evaluator
	// Publisher is optional; without it graded events are not emitted.
	Publisher mq.MessageQueue

	SolutionPrefix string
	MaxImageBytes  int64
	Timeouts       TimeoutConfig
}

// SubmitService runs submissions through intake, evaluation and the ledger.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	references     ReferenceLookup
	storage        storage.ObjectStorage
	evaluator      Evaluator
	publisher      mq.MessageQueue

	solutionPrefix string
	maxImageBytes  int64
	timeouts       TimeoutConfig
	now            func() time.Time
	newRunID       func() string
}

// SubmitInput describes one uploaded solution.
type SubmitInput struct {
	ProblemKey  string
	UserID      int64
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SubmitResult is returned to the submitter.
type SubmitResult struct {
	SubmissionID int64             `json:"submission_id"`
	ImagePath    string            `json:"image_path"`
	ModelOutput  evaluation.Result `json:"model_output"`
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.SolutionPrefix == "" {
		cfg.SolutionPrefix = defaultSolutionPrefix
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	return &SubmitService{
		submissionRepo: cfg.SubmissionRepo,
		references:     cfg.References,
		storage:        cfg.Storage,
		evaluator:      cfg.Evaluator,
		publisher:      cfg.Publisher,
		solutionPrefix: cfg.SolutionPrefix,
		maxImageBytes:  cfg.MaxImageBytes,
		timeouts:       cfg.Timeouts,
		now:            time.Now,
		newRunID:       uuid.NewString,
	}, nil
}

// Submit stores the image, grades it and appends the result to the ledger.
// A failed evaluation leaves no ledger entry behind.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	problemKey := strings.TrimSpace(input.ProblemKey)
	if problemKey == "" {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	if input.UserID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	filename, contentType, body, err := s.validateImage(input.Filename, input.ContentType, input.Size, input.Body)
	if err != nil {
		return nil, err
	}

	record, err := s.lookupReference(problemKey)
	if err != nil {
		return nil, err
	}

	// Each run owns its object so cleanup never touches an earlier submission.
	key, ok := storage.JoinKey(s.solutionPrefix, strconv.FormatInt(input.UserID, 10), s.newRunID()+"_"+filename)
	if !ok {
		return nil, appErr.New(appErr.InvalidFile).WithMessage("Invalid file name")
	}
	imagePath, err := s.putObject(ctx, key, body, input.Size, contentType)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluator.Run(ctx, evaluation.Input{
		ImageKey:        key,
		ImagePath:       imagePath,
		ContentType:     contentType,
		CanonicalAnswer: record.Solution,
	})
	if err != nil {
		s.removeObject(ctx, key)
		return nil, err
	}

	output, err := json.Marshal(result)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.SubmissionCreateFailed)
	}
	submission := &repository.Submission{
		ProblemKey:  problemKey,
		UserID:      input.UserID,
		ImagePath:   imagePath,
		ModelOutput: output,
		SubmittedAt: s.now().UTC(),
	}
	dbCtx, cancel := withTimeout(ctx, s.timeouts.DB)
	_, err = s.submissionRepo.Create(dbCtx, nil, submission)
	cancel()
	if err != nil {
		logger.Error(ctx, "create submission failed",
			zap.String("problem_key", problemKey),
			zap.Int64("user_id", input.UserID),
			zap.Error(err),
		)
		s.removeObject(ctx, key)
		return nil, appErr.Wrap(err, appErr.SubmissionCreateFailed)
	}

	logger.Info(ctx, "submission graded",
		zap.Int64("submission_id", submission.ID),
		zap.String("problem_key", problemKey),
		zap.String("approach", string(result.Verdict.Approach)),
		zap.String("answer", string(result.Verdict.Answer)),
	)
	s.publishGraded(ctx, submission, result.Verdict, record.LevelNumber())

	return &SubmitResult{
		SubmissionID: submission.ID,
		ImagePath:    imagePath,
		ModelOutput:  result,
	}, nil
}

// Get returns one ledger entry.
func (s *SubmitService) Get(ctx context.Context, submissionID int64) (*repository.Submission, error) {
	if submissionID <= 0 {
		return nil, appErr.ValidationError("submission_id", "must be positive")
	}
	dbCtx, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	submission, err := s.submissionRepo.GetByID(dbCtx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return submission, nil
}

// ListByUser returns a user's ledger entries, newest first.
func (s *SubmitService) ListByUser(ctx context.Context, userID int64, limit int) ([]*repository.Submission, error) {
	if userID <= 0 {
		return nil, appErr.ValidationError("user_id", "must be positive")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	dbCtx, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	submissions, err := s.submissionRepo.ListByUser(dbCtx, nil, userID, limit)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.DatabaseError)
	}
	return submissions, nil
}

// validateImage returns the sanitized name, the image MIME type and the body
// to store. Declared types other than image/* are replaced by the sniffed one.
func (s *SubmitService) validateImage(name, contentType string, size int64, body io.Reader) (string, string, io.Reader, error) {
	if body == nil {
		return "", "", nil, appErr.ValidationError("file", "required")
	}
	filename := storage.SanitizeFilename(name)
	if filename == "" {
		return "", "", nil, appErr.New(appErr.InvalidFile).WithMessage("No selected file")
	}
	if size > s.maxImageBytes {
		return "", "", nil, appErr.New(appErr.FileTooLarge).WithDetail("max_bytes", s.maxImageBytes)
	}
	if isImageContentType(contentType) {
		return filename, strings.TrimSpace(contentType), body, nil
	}

	buffered := bufio.NewReaderSize(body, sniffLen)
	head, err := buffered.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", nil, appErr.Wrap(err, appErr.InvalidFile).WithMessage("Unreadable upload")
	}
	sniffed := http.DetectContentType(head)
	if !isImageContentType(sniffed) {
		return "", "", nil, appErr.New(appErr.InvalidFile).WithMessage("Only image uploads are accepted")
	}
	return filename, sniffed, buffered, nil
}

func (s *SubmitService) lookupReference(problemKey string) (dataset.Record, error) {
	if s.references == nil {
		return dataset.Record{}, appErr.New(appErr.DatasetUnavailable)
	}
	record, err := s.references.Lookup(problemKey)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			return dataset.Record{}, appErr.New(appErr.ReferenceAnswerNotFound).WithDetail("problem_id", problemKey)
		}
		return dataset.Record{}, appErr.Wrap(err, appErr.DatasetUnavailable)
	}
	return record, nil
}

func (s *SubmitService) putObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	storageCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()
	location, err := s.storage.PutObject(storageCtx, key, body, size, contentType)
	if err != nil {
		logger.Error(ctx, "store solution image failed", zap.String("key", key), zap.Error(err))
		return "", appErr.Wrap(err, appErr.StorageError)
	}
	return location, nil
}

func (s *SubmitService) removeObject(ctx context.Context, key string) {
	storageCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeouts.Storage)
	defer cancel()
	if err := s.storage.RemoveObject(storageCtx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		logger.Warn(ctx, "remove solution image failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *SubmitService) publishGraded(ctx context.Context, submission *repository.Submission, verdict evaluation.Verdict, level int) {
	if s.publisher == nil {
		return
	}
	msg, err := events.SubmissionGraded{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemKey:   submission.ProblemKey,
		Approach:     string(verdict.Approach),
		Answer:       string(verdict.Answer),
		Level:        level,
		GradedAt:     submission.SubmittedAt,
	}.Encode()
	if err != nil {
		logger.Warn(ctx, "encode graded event failed", zap.Int64("submission_id", submission.ID), zap.Error(err))
		return
	}
	mqCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeouts.MQ)
	defer cancel()
	if err := s.publisher.Publish(mqCtx, events.TopicSubmissionGraded, msg); err != nil {
		logger.Warn(ctx, "publish graded event failed", zap.Int64("submission_id", submission.ID), zap.Error(err))
	}
}

func isImageContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(contentType, "image/")
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
