package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mathtutor/internal/common/cache"
	"mathtutor/internal/common/db"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemInfoKeyPrefix   = "problem:info:"
	problemListKey         = "problem:list"
)

var (
	ErrProblemNotFound   = errors.New("problem not found")
	ErrInvalidDifficulty = errors.New("problem difficulty out of range")
)

type ProblemRepository interface {
	Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error)
	List(ctx context.Context, tx db.Transaction) ([]*Problem, error)
	ExistsByTitle(ctx context.Context, tx db.Transaction, title string) (bool, error)
	// InvalidateList drops the cached problem list after inserts commit.
	InvalidateList(ctx context.Context) error
}

type MySQLProblemRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

func NewProblemRepository(provider db.Provider, cacheClient cache.Cache) *MySQLProblemRepository {
	return NewProblemRepositoryWithTTL(provider, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &MySQLProblemRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

func (r *MySQLProblemRepository) Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}
	if problem.Difficulty < MinDifficulty || problem.Difficulty > MaxDifficulty {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDifficulty, problem.Difficulty)
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	query := "INSERT INTO problems (title, content, difficulty, topic) VALUES (?, ?, ?, ?)"
	result, err := querier.Exec(ctx, query, problem.Title, problem.Content, problem.Difficulty, problem.Topic)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	problem.ID = id
	if problem.CreatedAt.IsZero() {
		problem.CreatedAt = time.Now()
	}
	return id, nil
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	if r.cache != nil && tx == nil {
		problem, err := cache.GetWithCached[*Problem](
			ctx,
			r.cache,
			problemInfoKey(problemID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(p *Problem) bool { return p == nil },
			marshalJSON[*Problem],
			unmarshalProblem,
			func(ctx context.Context) (*Problem, error) {
				problem, err := r.getByIDFromDB(ctx, nil, problemID)
				if errors.Is(err, ErrProblemNotFound) {
					return nil, nil
				}
				return problem, err
			},
		)
		if err != nil {
			return nil, err
		}
		if problem == nil {
			return nil, ErrProblemNotFound
		}
		return problem, nil
	}
	return r.getByIDFromDB(ctx, tx, problemID)
}

func (r *MySQLProblemRepository) List(ctx context.Context, tx db.Transaction) ([]*Problem, error) {
	if r.cache != nil && tx == nil {
		return cache.GetWithCached[[]*Problem](
			ctx,
			r.cache,
			problemListKey,
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func([]*Problem) bool { return false },
			marshalJSON[[]*Problem],
			unmarshalProblems,
			func(ctx context.Context) ([]*Problem, error) {
				return r.listFromDB(ctx, nil)
			},
		)
	}
	return r.listFromDB(ctx, tx)
}

func (r *MySQLProblemRepository) ExistsByTitle(ctx context.Context, tx db.Transaction, title string) (bool, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return false, err
	}
	var id int64
	err = querier.QueryRow(ctx, "SELECT id FROM problems WHERE title = ? LIMIT 1", title).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *MySQLProblemRepository) InvalidateList(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, problemListKey)
}

func (r *MySQLProblemRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	row := querier.QueryRow(ctx, "SELECT id, title, content, difficulty, topic, created_at FROM problems WHERE id = ?", problemID)
	problem, err := scanProblem(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return problem, nil
}

func (r *MySQLProblemRepository) listFromDB(ctx context.Context, tx db.Transaction) ([]*Problem, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	rows, err := querier.Query(ctx, "SELECT id, title, content, difficulty, topic, created_at FROM problems ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	problems := make([]*Problem, 0)
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return problems, nil
}

func problemInfoKey(problemID int64) string {
	return problemInfoKeyPrefix + strconv.FormatInt(problemID, 10)
}

func marshalJSON[T any](v T) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalProblem(data string) (*Problem, error) {
	var problem Problem
	if err := json.Unmarshal([]byte(data), &problem); err != nil {
		return nil, err
	}
	return &problem, nil
}

func unmarshalProblems(data string) ([]*Problem, error) {
	problems := make([]*Problem, 0)
	if err := json.Unmarshal([]byte(data), &problems); err != nil {
		return nil, err
	}
	return problems, nil
}

func scanProblem(scanner db.Scanner) (*Problem, error) {
	var problem Problem
	err := scanner.Scan(
		&problem.ID,
		&problem.Title,
		&problem.Content,
		&problem.Difficulty,
		&problem.Topic,
		&problem.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &problem, nil
}
