package app

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
)

// Aggregator computes standings from the event log. It holds no state between calls,
// so two computations over the same log yield the same entries.
type Aggregator struct {
	events   domain.EventStore
	contests domain.ContestStore
	clock    clockwork.Clock
	metrics  *metrics.LeaderboardMetrics
}

func NewAggregator(events domain.EventStore, contests domain.ContestStore, clock clockwork.Clock, m *metrics.LeaderboardMetrics) *Aggregator {
	return &Aggregator{events: events, contests: contests, clock: clock, metrics: m}
}

func (a *Aggregator) ComputeStandings(ctx context.Context, contestID string) (*domain.LeaderboardSnapshot, error) {
	start := a.clock.Now()

	contest, err := a.contests.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	roster, err := a.contests.Roster(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	b := newStandingsBuilder()
	if err := a.events.StreamEvents(ctx, contestID, func(e domain.SubmissionEvent) error {
		b.add(e)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	entries, report := b.build(contest, roster)

	if report.skipped > 0 {
		slog.WarnContext(ctx, "Skipped events without participant", "contest_id", contestID, "count", report.skipped)
	}
	for participantID, reason := range report.excluded {
		slog.WarnContext(ctx, "Excluded participant from standings", "contest_id", contestID, "participant_id", participantID, "error", reason)
	}
	a.metrics.Excluded.Add(float64(len(report.excluded)))
	a.metrics.BuildDuration.Observe(a.clock.Since(start).Seconds())

	return &domain.LeaderboardSnapshot{
		ContestID:   contestID,
		GeneratedAt: a.clock.Now().UTC(),
		Entries:     entries,
	}, nil
}

// BuildStandings ranks the given events against the contest configuration. Events must
// be in seq order. Malformed participants are dropped silently; use the Aggregator to log them.
func BuildStandings(contest *domain.Contest, roster []string, events []domain.SubmissionEvent) []domain.StandingsEntry {
	b := newStandingsBuilder()
	for _, e := range events {
		b.add(e)
	}
	entries, _ := b.build(contest, roster)
	return entries
}

type buildReport struct {
	skipped  int
	excluded map[string]error
}

type participantLog struct {
	events    []domain.SubmissionEvent
	malformed error
}

type standingsBuilder struct {
	order  []string
	logs   map[string]*participantLog
	report buildReport
}

func newStandingsBuilder() *standingsBuilder {
	return &standingsBuilder{
		logs:   make(map[string]*participantLog),
		report: buildReport{excluded: make(map[string]error)},
	}
}

func (b *standingsBuilder) add(e domain.SubmissionEvent) {
	if e.ParticipantID == "" {
		b.report.skipped++
		return
	}

	pl, ok := b.logs[e.ParticipantID]
	if !ok {
		pl = &participantLog{}
		b.logs[e.ParticipantID] = pl
		b.order = append(b.order, e.ParticipantID)
	}
	if pl.malformed != nil {
		return
	}

	switch {
	case !e.Verdict.Valid():
		pl.malformed = fmt.Errorf("%w: seq %d has unknown verdict %q", domain.ErrInvalidEvent, e.Seq, e.Verdict)
	case e.SubmittedAt.IsZero():
		pl.malformed = fmt.Errorf("%w: seq %d has no submission time", domain.ErrInvalidEvent, e.Seq)
	default:
		pl.events = append(pl.events, e)
	}
}

func (b *standingsBuilder) build(contest *domain.Contest, roster []string) ([]domain.StandingsEntry, buildReport) {
	entries := make([]domain.StandingsEntry, 0, len(b.order)+len(roster))

	for _, id := range b.order {
		pl := b.logs[id]
		if pl.malformed != nil {
			b.report.excluded[id] = pl.malformed
			continue
		}
		entries = append(entries, scoreParticipant(contest, id, pl.events))
	}

	for _, id := range roster {
		if _, seen := b.logs[id]; seen {
			continue
		}
		// Mark as seen so a roster listing the same id twice yields one entry.
		b.logs[id] = &participantLog{}
		entries = append(entries, scoreParticipant(contest, id, nil))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ElapsedMinutes < entries[j].ElapsedMinutes
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries, b.report
}

func compareEvents(a, b domain.SubmissionEvent) int {
	if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func minutesSince(start, at time.Time) int {
	return max(int(at.Sub(start)/time.Minute), 0)
}

func scoreParticipant(contest *domain.Contest, participantID string, events []domain.SubmissionEvent) domain.StandingsEntry {
	entry := domain.StandingsEntry{
		ParticipantID:    participantID,
		PerProblemStatus: make(map[string]domain.ProblemStatus, len(contest.Problems)),
	}

	var (
		finalAt      time.Time
		latest       *domain.SubmissionEvent
		attemptsByID = make(map[string][]domain.SubmissionEvent)
	)
	for i := range events {
		e := &events[i]
		if latest == nil || compareEvents(*e, *latest) > 0 {
			latest = e
		}
		if e.IsFinal {
			entry.IsCompleted = true
			if e.SubmittedAt.After(finalAt) {
				finalAt = e.SubmittedAt
			}
		}
	}
	if latest != nil {
		entry.LatestViolationSnapshot = latest.Violations
	}

	for _, e := range events {
		if !e.IsScoring() {
			continue
		}
		if entry.IsCompleted && e.SubmittedAt.After(finalAt) {
			continue
		}
		attemptsByID[e.ProblemID] = append(attemptsByID[e.ProblemID], e)
	}

	for _, p := range contest.Problems {
		attempts := attemptsByID[p.ProblemID]
		if len(attempts) == 0 {
			entry.PerProblemStatus[p.ProblemID] = domain.ProblemStatus{Status: domain.ProblemNotAttempted}
			continue
		}
		slices.SortStableFunc(attempts, compareEvents)

		acIdx := slices.IndexFunc(attempts, func(e domain.SubmissionEvent) bool {
			return e.Verdict == domain.VerdictAccepted
		})
		if acIdx < 0 {
			entry.PerProblemStatus[p.ProblemID] = domain.ProblemStatus{
				Status:             domain.ProblemWrongAnswer,
				Attempts:           len(attempts),
				SolveOffsetMinutes: minutesSince(contest.StartTime, attempts[len(attempts)-1].SubmittedAt),
			}
			continue
		}

		offset := minutesSince(contest.StartTime, attempts[acIdx].SubmittedAt)
		entry.PerProblemStatus[p.ProblemID] = domain.ProblemStatus{
			Status:             domain.ProblemAccepted,
			Attempts:           acIdx + 1,
			SolveOffsetMinutes: offset,
		}
		entry.Score += p.Points
		entry.ElapsedMinutes += offset
		entry.ProblemsSolvedCount++
	}

	return entry
}
