package service

import "mathtutor/internal/problem/repository"

// SampleProblems are inserted by Seed.
func SampleProblems() []repository.Problem {
	return []repository.Problem{
		{
			Title:      "Quadratic Equation",
			Content:    "Solve the equation: x² + 5x + 6 = 0",
			Difficulty: 1,
			Topic:      "algebra",
		},
		{
			Title:      "Integration Problem",
			Content:    "Find the integral of f(x) = x² + 3x - 2",
			Difficulty: 3,
			Topic:      "calculus",
		},
		{
			Title:      "Triangle Properties",
			Content:    "Calculate the area of a triangle with sides of length 3, 4, and 5",
			Difficulty: 2,
			Topic:      "geometry",
		},
	}
}
