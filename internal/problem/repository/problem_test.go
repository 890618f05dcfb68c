package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"mathtutor/internal/common/cache"
	"mathtutor/internal/common/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var problemCols = []string{"id", "title", "content", "difficulty", "topic", "created_at"}

func newRepo(t *testing.T, withCache bool) (*MySQLProblemRepository, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	database, err := db.NewMySQLWithDB(sqlDB)
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	if !withCache {
		return NewProblemRepository(db.NewManager(database), nil), mock, nil
	}
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache failed: %v", err)
	}
	return NewProblemRepository(db.NewManager(database), c), mock, mr
}

func TestGetByIDCachesRow(t *testing.T) {
	repo, mock, _ := newRepo(t, true)
	now := time.Now().UTC().Truncate(time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("FROM problems WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(problemCols).AddRow(1, "Quadratic Equation", "Solve", 1, "algebra", now))

	for i := 0; i < 2; i++ {
		p, err := repo.GetByID(context.Background(), nil, 1)
		if err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
		if p.Title != "Quadratic Equation" || p.Difficulty != 1 || !p.CreatedAt.Equal(now) {
			t.Fatalf("unexpected problem %+v", p)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock, _ := newRepo(t, false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM problems WHERE id = ?")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(problemCols))
	if _, err := repo.GetByID(context.Background(), nil, 8); !errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListCachedUntilInvalidated(t *testing.T) {
	repo, mock, mr := newRepo(t, true)
	ctx := context.Background()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM problems ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(problemCols))
	mock.ExpectQuery(regexp.QuoteMeta("FROM problems ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(problemCols).AddRow(1, "t", "c", 2, "geometry", now))

	first, err := repo.List(ctx, nil)
	if err != nil || len(first) != 0 {
		t.Fatalf("expected empty list, got %v %v", first, err)
	}
	cached, _ := repo.List(ctx, nil)
	if len(cached) != 0 {
		t.Fatalf("expected cached empty list")
	}
	if err := repo.InvalidateList(ctx); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if mr.Exists(problemListKey) {
		t.Fatalf("list key must be gone")
	}
	fresh, err := repo.List(ctx, nil)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("expected one problem after invalidation, got %v %v", fresh, err)
	}
}

func TestExistsByTitle(t *testing.T) {
	repo, mock, _ := newRepo(t, false)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM problems WHERE title = ?")).
		WithArgs("Quadratic Equation").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM problems WHERE title = ?")).
		WithArgs("Other").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if ok, err := repo.ExistsByTitle(context.Background(), nil, "Quadratic Equation"); !ok || err != nil {
		t.Fatalf("expected exists, got %v %v", ok, err)
	}
	if ok, err := repo.ExistsByTitle(context.Background(), nil, "Other"); ok || err != nil {
		t.Fatalf("expected missing, got %v %v", ok, err)
	}
}

func TestCreateRejectsDifficultyOutOfRange(t *testing.T) {
	repo, mock, _ := newRepo(t, false)
	for _, d := range []int{0, MaxDifficulty + 1} {
		_, err := repo.Create(context.Background(), nil, &Problem{Title: "t", Content: "c", Difficulty: d, Topic: "Algebra"})
		if !errors.Is(err, ErrInvalidDifficulty) {
			t.Fatalf("difficulty %d: expected ErrInvalidDifficulty, got %v", d, err)
		}
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO problems")).
		WithArgs("t", "c", MaxDifficulty, "Algebra").
		WillReturnResult(sqlmock.NewResult(4, 1))
	id, err := repo.Create(context.Background(), nil, &Problem{Title: "t", Content: "c", Difficulty: MaxDifficulty, Topic: "Algebra"})
	if err != nil || id != 4 {
		t.Fatalf("expected insert, got %d %v", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}
