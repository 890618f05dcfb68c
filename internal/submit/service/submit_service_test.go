package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mathtutor/internal/common/db"
	"mathtutor/internal/common/events"
	"mathtutor/internal/common/mq"
	"mathtutor/internal/common/storage"
	"mathtutor/internal/evaluation"
	"mathtutor/internal/problem/dataset"
	"mathtutor/internal/submit/repository"
	appErr "mathtutor/pkg/errors"
)

type fakeSubmissionRepo struct {
	mu      sync.Mutex
	rows    []*repository.Submission
	nextID  int64
	failErr error
}

func (f *fakeSubmissionRepo) Create(_ context.Context, _ db.Transaction, s *repository.Submission) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	f.nextID++
	s.ID = f.nextID
	f.rows = append(f.rows, s)
	return s.ID, nil
}

func (f *fakeSubmissionRepo) GetByID(_ context.Context, _ db.Transaction, id int64) (*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, repository.ErrSubmissionNotFound
}

func (f *fakeSubmissionRepo) ListByUser(_ context.Context, _ db.Transaction, userID int64, limit int) ([]*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Submission, 0)
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

type scriptedProvider struct {
	transcription string
	feedback      string
	err           error
	gotMIME       string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) DescribeImage(_ context.Context, _ string, _ []byte, mimeType string) (string, error) {
	p.gotMIME = mimeType
	return p.transcription, p.err
}

func (p *scriptedProvider) Generate(context.Context, string) (string, error) {
	return p.feedback, nil
}

var testQuestions = dataset.New([]dataset.Record{
	{QuestionID: "question-1", Problem: "Solve 2x = 4", Solution: "x=2", Level: "Level 2"},
	{QuestionID: "question-2", Problem: "Integrate x", Solution: "x^2/2 + C", Level: "Level 5"},
})

type harness struct {
	svc    *SubmitService
	repo   *fakeSubmissionRepo
	root   string
	events []events.SubmissionGraded
}

func newHarness(t *testing.T, p *scriptedProvider) *harness {
	t.Helper()
	root := filepath.Join(t.TempDir(), "uploads")
	store, err := storage.NewLocalStorage(root)
	if err != nil {
		t.Fatalf("storage failed: %v", err)
	}
	h := &harness{repo: &fakeSubmissionRepo{}, root: root}
	queue := mq.NewMemoryQueue()
	_ = queue.Subscribe(context.Background(), events.TopicSubmissionGraded, func(_ context.Context, m *mq.Message) error {
		e, err := events.DecodeSubmissionGraded(m)
		if err != nil {
			return err
		}
		h.events = append(h.events, e)
		return nil
	})
	svc, err := NewSubmitService(Config{
		SubmissionRepo: h.repo,
		References:     testQuestions,
		Storage:        store,
		Evaluator:      evaluation.NewPipeline(p, store, nil, evaluation.PipelineConfig{}),
		Publisher:      queue,
	})
	if err != nil {
		t.Fatalf("service failed: %v", err)
	}
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	runs := 0
	svc.newRunID = func() string {
		runs++
		return fmt.Sprintf("run%d", runs)
	}
	h.svc = svc
	return h
}

func pngInput(key string, userID int64, name string) SubmitInput {
	data := []byte("\x89PNG\r\n\x1a\nsolution")
	return SubmitInput{
		ProblemKey: key,
		UserID:     userID,
		Filename:   name,
		Size:       int64(len(data)),
		Body:       bytes.NewReader(data),
	}
}

func TestSubmitGradesAndRecords(t *testing.T) {
	h := newHarness(t, &scriptedProvider{
		transcription: evaluation.TranscriptionPrefix + " x=2, checked by substitution",
		feedback:      "Well done.\nThe student's solution approach is CORRECT and the final answer is MATCHES the reference answer.",
	})

	res, err := h.svc.Submit(context.Background(), pngInput("question-1", 7, "../my work.png"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	wantPath := filepath.ToSlash(filepath.Join(h.root, "solutions", "7", "run1_my_work.png"))
	if res.ImagePath != wantPath {
		t.Fatalf("image path = %q, want %q", res.ImagePath, wantPath)
	}
	if _, err := os.Stat(filepath.FromSlash(res.ImagePath)); err != nil {
		t.Fatalf("image not stored: %v", err)
	}
	if res.ModelOutput.Verdict.Approach != evaluation.ApproachCorrect || res.ModelOutput.Verdict.Answer != evaluation.AnswerMatches {
		t.Fatalf("unexpected verdict %+v", res.ModelOutput.Verdict)
	}

	if len(h.repo.rows) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(h.repo.rows))
	}
	row := h.repo.rows[0]
	if row.ID != res.SubmissionID || row.ProblemKey != "question-1" || row.UserID != 7 || row.ImagePath != wantPath {
		t.Fatalf("unexpected ledger entry %+v", row)
	}
	var stored evaluation.Result
	if err := json.Unmarshal(row.ModelOutput, &stored); err != nil {
		t.Fatalf("model output is not JSON: %v", err)
	}
	if stored.Verdict.Approach != evaluation.ApproachCorrect || stored.CanonicalAnswer != "x=2" {
		t.Fatalf("serialized output lost the verdict: %+v", stored)
	}

	if len(h.events) != 1 {
		t.Fatalf("expected one graded event, got %d", len(h.events))
	}
	e := h.events[0]
	if e.SubmissionID != res.SubmissionID || e.UserID != 7 || e.Level != 2 || e.Approach != "CORRECT" || e.Answer != "MATCHES" {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestSubmitUnknownQuestionRecordsNothing(t *testing.T) {
	h := newHarness(t, &scriptedProvider{transcription: "x", feedback: "y"})

	_, err := h.svc.Submit(context.Background(), pngInput("question-99", 7, "a.png"))
	if !appErr.Is(err, appErr.ReferenceAnswerNotFound) {
		t.Fatalf("expected reference not found, got %v", err)
	}
	if appErr.GetCode(err).HTTPStatus() != 404 {
		t.Fatalf("expected 404 status")
	}
	if len(h.repo.rows) != 0 || len(h.events) != 0 {
		t.Fatalf("nothing must be recorded")
	}
	if _, err := os.Stat(filepath.Join(h.root, "solutions")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("image must not be stored for an unknown question")
	}
}

func TestSubmitPipelineFailureRecordsNothing(t *testing.T) {
	h := newHarness(t, &scriptedProvider{err: errors.New("model exploded")})

	_, err := h.svc.Submit(context.Background(), pngInput("question-1", 7, "a.png"))
	if !appErr.Is(err, appErr.TranscriptionFailed) {
		t.Fatalf("expected transcription failure, got %v", err)
	}
	if appErr.GetCode(err).HTTPStatus() != 500 {
		t.Fatalf("expected 500 status")
	}
	if len(h.repo.rows) != 0 || len(h.events) != 0 {
		t.Fatalf("failed runs must not be recorded")
	}
	if _, err := os.Stat(filepath.Join(h.root, "solutions", "7", "run1_a.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("image of a failed run must be removed")
	}
}

func TestSubmitFailureKeepsEarlierImage(t *testing.T) {
	p := &scriptedProvider{transcription: "x", feedback: "y"}
	h := newHarness(t, p)
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, pngInput("question-1", 7, "sol.png"))
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	p.err = errors.New("model exploded")
	if _, err := h.svc.Submit(ctx, pngInput("question-1", 7, "sol.png")); !appErr.Is(err, appErr.TranscriptionFailed) {
		t.Fatalf("expected transcription failure, got %v", err)
	}
	if _, err := os.Stat(filepath.FromSlash(first.ImagePath)); err != nil {
		t.Fatalf("earlier submission image must survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.root, "solutions", "7", "run2_sol.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("image of the failed run must be removed")
	}
}

func TestSubmitSniffsGenericContentType(t *testing.T) {
	p := &scriptedProvider{transcription: "x", feedback: "y"}
	h := newHarness(t, p)

	in := pngInput("question-1", 7, "sol.png")
	in.ContentType = "application/octet-stream"
	if _, err := h.svc.Submit(context.Background(), in); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if p.gotMIME != "image/png" {
		t.Fatalf("provider got %q, want image/png", p.gotMIME)
	}

	text := []byte("just some notes")
	in = SubmitInput{
		ProblemKey:  "question-1",
		UserID:      7,
		Filename:    "notes.bin",
		ContentType: "application/octet-stream",
		Size:        int64(len(text)),
		Body:        bytes.NewReader(text),
	}
	if _, err := h.svc.Submit(context.Background(), in); !appErr.Is(err, appErr.InvalidFile) {
		t.Fatalf("expected non-image rejection, got %v", err)
	}
}

func TestSubmitUnknownVerdictIsRecorded(t *testing.T) {
	h := newHarness(t, &scriptedProvider{transcription: "x = 5", feedback: "Hard to say."})

	res, err := h.svc.Submit(context.Background(), pngInput("question-2", 3, "b.png"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.ModelOutput.Verdict.Approach != evaluation.ApproachUnknown {
		t.Fatalf("expected UNKNOWN, got %+v", res.ModelOutput.Verdict)
	}
	if len(h.repo.rows) != 1 || len(h.events) != 1 || h.events[0].Level != 5 {
		t.Fatalf("unknown verdicts are still completed runs")
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, &scriptedProvider{})
	h.svc.maxImageBytes = 4

	cases := []struct {
		name  string
		input SubmitInput
		want  appErr.ErrorCode
	}{
		{"missing problem", pngInput(" ", 1, "a.png"), appErr.ValidationFailed},
		{"missing user", pngInput("question-1", 0, "a.png"), appErr.ValidationFailed},
		{"no body", SubmitInput{ProblemKey: "question-1", UserID: 1, Filename: "a.png"}, appErr.ValidationFailed},
		{"bad name", pngInput("question-1", 1, "../.."), appErr.InvalidFile},
		{"too large", pngInput("question-1", 1, "a.png"), appErr.FileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.svc.Submit(context.Background(), tc.input); !appErr.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	h.svc.maxImageBytes = 1 << 20
	text := []byte("plain text notes")
	in := SubmitInput{
		ProblemKey:  "question-1",
		UserID:      1,
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Size:        int64(len(text)),
		Body:        bytes.NewReader(text),
	}
	if _, err := h.svc.Submit(context.Background(), in); !appErr.Is(err, appErr.InvalidFile) {
		t.Fatalf("expected non-image rejection, got %v", err)
	}
}

func TestSubmitLedgerFailure(t *testing.T) {
	h := newHarness(t, &scriptedProvider{transcription: "x", feedback: "y"})
	h.repo.failErr = errors.New("disk full")

	if _, err := h.svc.Submit(context.Background(), pngInput("question-1", 1, "a.png")); !appErr.Is(err, appErr.SubmissionCreateFailed) {
		t.Fatalf("expected create failure, got %v", err)
	}
	if len(h.events) != 0 {
		t.Fatalf("no event without a ledger entry")
	}
	if _, err := os.Stat(filepath.Join(h.root, "solutions", "1", "run1_a.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("image without a ledger entry must be removed")
	}
}

func TestGetAndListByUser(t *testing.T) {
	h := newHarness(t, &scriptedProvider{transcription: "x", feedback: "y"})
	ctx := context.Background()
	for _, name := range []string{"a.png", "b.png"} {
		if _, err := h.svc.Submit(ctx, pngInput("question-1", 4, name)); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	got, err := h.svc.Get(ctx, 2)
	if err != nil || !strings.HasSuffix(got.ImagePath, "b.png") {
		t.Fatalf("unexpected entry %+v %v", got, err)
	}
	if _, err := h.svc.Get(ctx, 99); !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	list, err := h.svc.ListByUser(ctx, 4, 0)
	if err != nil || len(list) != 2 || list[0].ID != 2 {
		t.Fatalf("expected newest first, got %+v %v", list, err)
	}
	if _, err := h.svc.ListByUser(ctx, 0, 0); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
