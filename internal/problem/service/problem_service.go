package service

import (
	"context"
	"errors"
	"fmt"

	"mathtutor/internal/common/db"
	"mathtutor/internal/problem/dataset"
	"mathtutor/internal/problem/repository"
	pkgerrors "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultQuestionLevel = 3
	questionsPerRequest  = 3
)

// ProblemService serves seeded problems and the reference question set.
type ProblemService struct {
	dbProvider db.Provider
	repo       repository.ProblemRepository
	questions  *dataset.Dataset
}

// NewProblemService creates a new ProblemService. questions may be nil when
// no reference file is configured.
func NewProblemService(provider db.Provider, repo repository.ProblemRepository, questions *dataset.Dataset) *ProblemService {
	return &ProblemService{dbProvider: provider, repo: repo, questions: questions}
}

// SeedResult reports how many sample problems were inserted.
type SeedResult struct {
	Inserted int
	Skipped  int
}

func (s *ProblemService) List(ctx context.Context) ([]*repository.Problem, error) {
	problems, err := s.repo.List(ctx, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("list problems failed: %w", err), pkgerrors.DatabaseError)
	}
	return problems, nil
}

func (s *ProblemService) Get(ctx context.Context, problemID int64) (*repository.Problem, error) {
	if problemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams)
	}
	problem, err := s.repo.GetByID(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("get problem failed: %w", err), pkgerrors.DatabaseError)
	}
	return problem, nil
}

// Seed inserts the sample problems whose titles are not present yet.
func (s *ProblemService) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	database, err := db.CurrentDatabase(s.dbProvider)
	if err != nil {
		return SeedResult{}, pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	err = database.Transaction(ctx, func(tx db.Transaction) error {
		for _, sample := range SampleProblems() {
			exists, err := s.repo.ExistsByTitle(ctx, tx, sample.Title)
			if err != nil {
				return err
			}
			if exists {
				result.Skipped++
				continue
			}
			problem := sample
			if _, err := s.repo.Create(ctx, tx, &problem); err != nil {
				return err
			}
			result.Inserted++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, pkgerrors.Wrap(fmt.Errorf("seed problems failed: %w", err), pkgerrors.ProblemCreateFailed)
	}
	if err := s.repo.InvalidateList(ctx); err != nil {
		logger.Warn(ctx, "invalidate problem list failed", zap.Error(err))
	}
	logger.Info(ctx, "sample problems seeded", zap.Int("inserted", result.Inserted), zap.Int("skipped", result.Skipped))
	return result, nil
}

// RandomQuestions picks up to three reference questions of the given level.
// A non-positive level means the default level.
func (s *ProblemService) RandomQuestions(level int) ([]dataset.Record, error) {
	if s.questions == nil {
		return nil, pkgerrors.New(pkgerrors.DatasetUnavailable)
	}
	if level <= 0 {
		level = defaultQuestionLevel
	}
	return s.questions.RandomByLevel(level, questionsPerRequest), nil
}
