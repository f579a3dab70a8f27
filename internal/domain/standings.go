package domain

import "time"

type ProblemState string

const (
	ProblemAccepted     ProblemState = "Accepted"
	ProblemWrongAnswer  ProblemState = "Wrong Answer"
	ProblemNotAttempted ProblemState = "Not Attempted"
)

type ProblemStatus struct {
	Status             ProblemState `json:"status"`
	Attempts           int          `json:"attempts"`
	SolveOffsetMinutes int          `json:"solveOffsetMinutes"`
}

// StandingsEntry is derived from the event log and never stored on its own.
type StandingsEntry struct {
	ParticipantID           string                   `json:"participantId"`
	Rank                    int                      `json:"rank"`
	Score                   int                      `json:"score"`
	ElapsedMinutes          int                      `json:"elapsedMinutes"`
	ProblemsSolvedCount     int                      `json:"problemsSolvedCount"`
	PerProblemStatus        map[string]ProblemStatus `json:"perProblemStatus"`
	LatestViolationSnapshot ViolationCounters        `json:"latestViolationSnapshot"`
	IsCompleted             bool                     `json:"isCompleted"`
}

// LeaderboardSnapshot is the ranked board of one contest at GeneratedAt.
// Pending marks the empty interim result served while another process builds.
type LeaderboardSnapshot struct {
	ContestID   string           `json:"contestId"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Entries     []StandingsEntry `json:"entries"`
	Pending     bool             `json:"pending,omitempty"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type LeaderboardPage struct {
	Entries     []StandingsEntry `json:"entries"`
	Total       int              `json:"total"`
	Page        int              `json:"page"`
	PageSize    int              `json:"pageSize"`
	TotalPages  int              `json:"totalPages"`
	Pending     bool             `json:"pending"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// Paginate slices the snapshot in memory. Page is 1-based; out of range values are clamped
// to the defaults and a page past the end yields no entries.
func (s *LeaderboardSnapshot) Paginate(page, pageSize int) LeaderboardPage {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	total := len(s.Entries)
	totalPages := (total + pageSize - 1) / pageSize
	entries := []StandingsEntry{}
	// Compare pages before multiplying so huge page numbers cannot overflow.
	if page <= totalPages {
		start := (page - 1) * pageSize
		entries = s.Entries[start:min(start+pageSize, total)]
	}

	return LeaderboardPage{
		Entries:     entries,
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		Pending:     s.Pending,
		GeneratedAt: s.GeneratedAt,
	}
}
