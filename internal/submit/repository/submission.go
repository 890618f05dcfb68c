package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"mathtutor/internal/common/cache"
	"mathtutor/internal/common/db"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
	defaultListLimit               = 50
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Submission is one ledger entry. Rows are written once and never changed.
type Submission struct {
	ID          int64           `json:"id"`
	ProblemKey  string          `json:"problem_key"`
	UserID      int64           `json:"user_id"`
	ImagePath   string          `json:"image_path"`
	ModelOutput json.RawMessage `json:"model_output"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// SubmissionRepository is append-only: there is no update or delete.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, submissionID int64) (*Submission, error)
	ListByUser(ctx context.Context, tx db.Transaction, userID int64, limit int) ([]*Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(provider db.Provider, cacheClient cache.Cache) *MySQLSubmissionRepository {
	return NewSubmissionRepositoryWithTTL(provider, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

const submissionColumns = "id, problem_key, user_id, image_path, model_output, submitted_at"

// Create appends a submission and fills in its id.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) (int64, error) {
	if submission == nil {
		return 0, errors.New("submission is nil")
	}
	if submission.ProblemKey == "" {
		return 0, errors.New("problemKey is required")
	}
	if submission.UserID <= 0 {
		return 0, errors.New("userID is required")
	}
	if submission.ImagePath == "" {
		return 0, errors.New("imagePath is required")
	}
	if !json.Valid(submission.ModelOutput) {
		return 0, errors.New("modelOutput must be valid JSON")
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}

	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO submissions
		(problem_key, user_id, image_path, model_output, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := querier.Exec(
		ctx,
		query,
		submission.ProblemKey,
		submission.UserID,
		submission.ImagePath,
		string(submission.ModelOutput),
		submission.SubmittedAt,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	submission.ID = id
	if r.cache != nil && tx == nil {
		r.setCache(ctx, submission)
	}
	return id, nil
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID int64) (*Submission, error) {
	if submissionID <= 0 {
		return nil, ErrSubmissionNotFound
	}
	if r.cache != nil && tx == nil {
		submission, err := cache.GetWithCached[*Submission](
			ctx,
			r.cache,
			submissionCacheKey(submissionID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(submission *Submission) bool { return submission == nil },
			marshalSubmission,
			unmarshalSubmission,
			func(ctx context.Context) (*Submission, error) {
				submission, err := r.getByIDFromDB(ctx, nil, submissionID)
				if errors.Is(err, ErrSubmissionNotFound) {
					return nil, nil
				}
				return submission, err
			},
		)
		if err != nil {
			return nil, err
		}
		if submission == nil {
			return nil, ErrSubmissionNotFound
		}
		return submission, nil
	}
	return r.getByIDFromDB(ctx, tx, submissionID)
}

// ListByUser returns the user's most recent submissions, newest first.
func (r *MySQLSubmissionRepository) ListByUser(ctx context.Context, tx db.Transaction, userID int64, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE user_id = ? ORDER BY submitted_at DESC, id DESC LIMIT ?"
	rows, err := querier.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]*Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, submissionID int64) (*Submission, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	submission, err := scanSubmission(querier.QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) setCache(ctx context.Context, submission *Submission) {
	payload := marshalSubmission(submission)
	if payload == "" {
		return
	}
	_ = r.cache.Set(ctx, submissionCacheKey(submission.ID), payload, cache.JitterTTL(r.ttl))
}

func submissionCacheKey(submissionID int64) string {
	return submissionCacheKeyPrefix + strconv.FormatInt(submissionID, 10)
}

func marshalSubmission(submission *Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var submission Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}

func scanSubmission(scanner db.Scanner) (*Submission, error) {
	var (
		submission Submission
		output     []byte
	)
	if err := scanner.Scan(
		&submission.ID,
		&submission.ProblemKey,
		&submission.UserID,
		&submission.ImagePath,
		&output,
		&submission.SubmittedAt,
	); err != nil {
		return nil, err
	}
	submission.ModelOutput = json.RawMessage(output)
	return &submission, nil
}
