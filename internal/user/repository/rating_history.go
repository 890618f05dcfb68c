package repository

import (
	"context"
	"time"

	"mathtutor/internal/common/db"
)

// RatingPoint is one row of a user's rating history.
type RatingPoint struct {
	ID         int64
	UserID     int64
	Rating     float64
	RecordedAt time.Time
}

type RatingHistoryRepository interface {
	Append(ctx context.Context, tx db.Transaction, point *RatingPoint) (int64, error)
	ListByUser(ctx context.Context, tx db.Transaction, userID int64, limit int) ([]*RatingPoint, error)
}

type MySQLRatingHistoryRepository struct {
	dbProvider db.Provider
}

func NewRatingHistoryRepository(provider db.Provider) *MySQLRatingHistoryRepository {
	return &MySQLRatingHistoryRepository{dbProvider: provider}
}

func (r *MySQLRatingHistoryRepository) Append(ctx context.Context, tx db.Transaction, point *RatingPoint) (int64, error) {
	if point.RecordedAt.IsZero() {
		point.RecordedAt = time.Now()
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	result, err := querier.Exec(ctx,
		"INSERT INTO rating_history (user_id, rating, recorded_at) VALUES (?, ?, ?)",
		point.UserID, point.Rating, point.RecordedAt,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	point.ID = id
	return id, nil
}

// ListByUser returns the newest limit points in chronological order.
func (r *MySQLRatingHistoryRepository) ListByUser(ctx context.Context, tx db.Transaction, userID int64, limit int) ([]*RatingPoint, error) {
	if limit <= 0 {
		limit = 50
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	rows, err := querier.Query(ctx,
		"SELECT id, user_id, rating, recorded_at FROM rating_history WHERE user_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]*RatingPoint, 0)
	for rows.Next() {
		var p RatingPoint
		if err := rows.Scan(&p.ID, &p.UserID, &p.Rating, &p.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}
