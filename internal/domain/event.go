package domain

import (
	"context"
	"fmt"
	"time"
)

type Verdict string

const (
	VerdictNone             Verdict = ""
	VerdictAccepted         Verdict = "Accepted"
	VerdictWrongAnswer      Verdict = "Wrong Answer"
	VerdictTimeLimit        Verdict = "Time Limit Exceeded"
	VerdictMemoryLimit      Verdict = "Memory Limit Exceeded"
	VerdictRuntimeError     Verdict = "Runtime Error"
	VerdictCompilationError Verdict = "Compilation Error"
	VerdictPending          Verdict = "Pending"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictNone, VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimit,
		VerdictMemoryLimit, VerdictRuntimeError, VerdictCompilationError, VerdictPending:
		return true
	}
	return false
}

// ViolationCounters are cumulative proctoring counters reported by the client.
// TabSwitchDuration is in seconds.
type ViolationCounters struct {
	TabSwitchCount    int `json:"tabSwitchCount"`
	TabSwitchDuration int `json:"tabSwitchDuration"`
	PasteAttempts     int `json:"pasteAttempts"`
	FullscreenExits   int `json:"fullscreenExits"`
}

// SubmissionEvent is an immutable fact in the append-only contest log.
// Seq is assigned by the store on append.
type SubmissionEvent struct {
	Seq             int64             `json:"seq"`
	ParticipantID   string            `json:"participantId"`
	ContestID       string            `json:"contestId"`
	ProblemID       string            `json:"problemId,omitempty"`
	Verdict         Verdict           `json:"verdict"`
	SubmittedAt     time.Time         `json:"submittedAt"`
	TestsPassed     int               `json:"testsPassed"`
	TestsTotal      int               `json:"testsTotal"`
	Violations      ViolationCounters `json:"violationCounters"`
	IsFinal         bool              `json:"isFinal"`
	IsViolationOnly bool              `json:"isViolationOnly"`
}

// IsScoring reports whether the event is a judged attempt at a problem.
func (e *SubmissionEvent) IsScoring() bool {
	return !e.IsViolationOnly && e.ProblemID != "" && e.Verdict != VerdictNone && e.Verdict != VerdictPending
}

// RankChanging reports whether the event can move the participant on the board.
func (e *SubmissionEvent) RankChanging() bool {
	return e.Verdict == VerdictAccepted || e.IsFinal
}

// Validate checks the fields required before an event may enter the log.
func (e *SubmissionEvent) Validate() error {
	switch {
	case e.ContestID == "":
		return fmt.Errorf("%w: contestId is required", ErrInvalidEvent)
	case e.ParticipantID == "":
		return fmt.Errorf("%w: participantId is required", ErrInvalidEvent)
	case e.SubmittedAt.IsZero():
		return fmt.Errorf("%w: submittedAt is required", ErrInvalidEvent)
	case !e.Verdict.Valid():
		return fmt.Errorf("%w: unknown verdict %q", ErrInvalidEvent, e.Verdict)
	case e.TestsPassed < 0 || e.TestsTotal < 0 || e.TestsPassed > e.TestsTotal:
		return fmt.Errorf("%w: tests %d/%d out of range", ErrInvalidEvent, e.TestsPassed, e.TestsTotal)
	}
	return nil
}

// EventSummary is the compact form kept in pending queues and sent as latestSubmission.
type EventSummary struct {
	Seq           int64     `json:"seq"`
	ParticipantID string    `json:"participantId"`
	ProblemID     string    `json:"problemId,omitempty"`
	Verdict       Verdict   `json:"verdict,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
	TestsPassed   int       `json:"testsPassed"`
	TestsTotal    int       `json:"testsTotal"`
	IsFinal       bool      `json:"isFinal,omitempty"`
}

func (e *SubmissionEvent) Summary() EventSummary {
	return EventSummary{
		Seq:           e.Seq,
		ParticipantID: e.ParticipantID,
		ProblemID:     e.ProblemID,
		Verdict:       e.Verdict,
		SubmittedAt:   e.SubmittedAt,
		TestsPassed:   e.TestsPassed,
		TestsTotal:    e.TestsTotal,
		IsFinal:       e.IsFinal,
	}
}

// EventStore is the append-only submission and violation log.
type EventStore interface {
	Append(ctx context.Context, event *SubmissionEvent) (int64, error)
	// StreamEvents calls fn for every event of the contest in seq order. A non-nil error from fn stops the stream.
	StreamEvents(ctx context.Context, contestID string, fn func(SubmissionEvent) error) error
}
