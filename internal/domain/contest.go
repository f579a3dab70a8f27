package domain

import (
	"context"
	"time"
)

type ContestProblem struct {
	ProblemID string `json:"problemId"`
	Points    int    `json:"points"`
}

type Contest struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	StartTime time.Time        `json:"startTime"`
	EndTime   time.Time        `json:"endTime"`
	Problems  []ContestProblem `json:"problems"`
}

// Points returns the points per current problem id.
func (c *Contest) Points() map[string]int {
	points := make(map[string]int, len(c.Problems))
	for _, p := range c.Problems {
		points[p.ProblemID] = p.Points
	}
	return points
}

type ContestStore interface {
	// GetContest returns ErrContestNotFound for unknown ids.
	GetContest(ctx context.Context, contestID string) (*Contest, error)
	// Roster returns the eligible participant ids in registration order.
	Roster(ctx context.Context, contestID string) ([]string, error)
}
