package events

import (
	"encoding/json"
	"time"

	"mathtutor/internal/common/mq"
)

// TopicSubmissionGraded carries one event per recorded submission.
const TopicSubmissionGraded = "submission.graded"

// SubmissionGraded is published after a submission has been written to the ledger.
type SubmissionGraded struct {
	SubmissionID int64     `json:"submission_id"`
	UserID       int64     `json:"user_id"`
	ProblemKey   string    `json:"problem_key"`
	Approach     string    `json:"approach"`
	Answer       string    `json:"answer"`
	Level        int       `json:"level"`
	GradedAt     time.Time `json:"graded_at"`
}

func (e SubmissionGraded) Encode() (*mq.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	msg := mq.NewMessage(body)
	msg.SetHeader("event", TopicSubmissionGraded)
	return msg, nil
}

func DecodeSubmissionGraded(msg *mq.Message) (SubmissionGraded, error) {
	var e SubmissionGraded
	if err := json.Unmarshal(msg.Body, &e); err != nil {
		return SubmissionGraded{}, err
	}
	return e, nil
}
