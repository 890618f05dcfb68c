package controller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mathtutor/internal/problem/dataset"
	"mathtutor/internal/problem/repository"
	"mathtutor/internal/problem/service"
	"mathtutor/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemService is the part of service.ProblemService the controller calls.
type ProblemService interface {
	List(ctx context.Context) ([]*repository.Problem, error)
	Get(ctx context.Context, problemID int64) (*repository.Problem, error)
	Seed(ctx context.Context) (service.SeedResult, error)
	RandomQuestions(level int) ([]dataset.Record, error)
}

// ProblemController handles problem HTTP endpoints.
type ProblemController struct {
	problemService ProblemService
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problemService ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// List returns every seeded problem.
func (h *ProblemController) List(c *gin.Context) {
	problems, err := h.problemService.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]ProblemResponse, 0, len(problems))
	for _, p := range problems {
		out = append(out, toProblemResponse(p))
	}
	response.Success(c, out)
}

// Get returns one problem.
func (h *ProblemController) Get(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}

	problem, err := h.problemService.Get(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toProblemResponse(problem))
}

// Seed inserts the sample problems.
func (h *ProblemController) Seed(c *gin.Context) {
	result, err := h.problemService.Seed(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, SeedResponse{
		Message:  fmt.Sprintf("Added %d sample problems", result.Inserted),
		Inserted: result.Inserted,
		Skipped:  result.Skipped,
	})
}

// Questions returns random reference questions for ?level=N.
func (h *ProblemController) Questions(c *gin.Context) {
	level := 0
	if raw := c.Query("level"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.BadRequest(c, "Invalid level")
			return
		}
		level = parsed
	}
	records, err := h.problemService.RandomQuestions(level)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, records)
}

// ProblemResponse defines the problem payload.
type ProblemResponse struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Difficulty int       `json:"difficulty"`
	Topic      string    `json:"topic"`
	CreatedAt  time.Time `json:"created_at"`
}

type SeedResponse struct {
	Message  string `json:"message"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
}

func toProblemResponse(p *repository.Problem) ProblemResponse {
	return ProblemResponse{
		ID:         p.ID,
		Title:      p.Title,
		Content:    p.Content,
		Difficulty: p.Difficulty,
		Topic:      p.Topic,
		CreatedAt:  p.CreatedAt.UTC(),
	}
}
