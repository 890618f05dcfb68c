package service

import (
	"context"
	stderrors "errors"
	"fmt"

	"mathtutor/internal/common/db"
	"mathtutor/internal/common/events"
	"mathtutor/internal/common/mq"
	"mathtutor/internal/evaluation"
	"mathtutor/internal/user/repository"
	pkgerrors "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/logger"

	"go.uber.org/zap"
)

// RatingDelta scores a graded submission: approach credit plus answer credit,
// multiplied by the question level. Levels below 1 count as 1.
func RatingDelta(approach evaluation.ApproachVerdict, answer evaluation.AnswerVerdict, level int) float64 {
	if level < 1 {
		level = 1
	}
	return (evaluation.ApproachScore(approach) + evaluation.AnswerScore(answer)) * float64(level)
}

// ApplyGradedSubmission adds the submission's credit to the user's rating and
// records the new value in the history.
func (s *UserService) ApplyGradedSubmission(ctx context.Context, event events.SubmissionGraded) error {
	delta := RatingDelta(evaluation.ApproachVerdict(event.Approach), evaluation.AnswerVerdict(event.Answer), event.Level)
	if delta == 0 {
		s.metrics.ObserveRatingUpdate("skipped")
		return nil
	}

	var rating float64
	err := withTransaction(ctx, s.dbProvider, func(tx db.Transaction) error {
		updated, err := s.users.AdjustRating(ctx, tx, event.UserID, delta)
		if err != nil {
			if stderrors.Is(err, repository.ErrUserNotFound) {
				return pkgerrors.New(pkgerrors.UserNotFound)
			}
			return pkgerrors.Wrap(fmt.Errorf("adjust rating failed: %w", err), pkgerrors.RatingUpdateFailed)
		}
		rating = updated
		return s.appendHistory(ctx, tx, event.UserID, updated)
	})
	if err != nil {
		s.metrics.ObserveRatingUpdate("failed")
		return err
	}
	s.metrics.ObserveRatingUpdate("applied")
	logger.Info(ctx, "rating updated",
		zap.Int64("user_id", event.UserID),
		zap.Int64("submission_id", event.SubmissionID),
		zap.Float64("delta", delta),
		zap.Float64("rating", rating),
	)
	return nil
}

// HandleGradedMessage is the queue handler for events.TopicSubmissionGraded.
func (s *UserService) HandleGradedMessage(ctx context.Context, msg *mq.Message) error {
	event, err := events.DecodeSubmissionGraded(msg)
	if err != nil {
		s.metrics.ObserveRatingUpdate("failed")
		logger.Warn(ctx, "drop malformed graded event", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	return s.ApplyGradedSubmission(ctx, event)
}
