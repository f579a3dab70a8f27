package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/contestpulse/internal/domain"
)

// eventColumns must match the Scan order in scanEvent.
const eventColumns = `seq, contest_id, participant_id, problem_id, verdict, submitted_at, tests_passed, tests_total,
	tab_switch_count, tab_switch_duration, paste_attempts, fullscreen_exits, is_final, is_violation_only`

// EventRepo implements domain.EventStore.
type EventRepo struct {
	pool *pgxpool.Pool
}

var _ domain.EventStore = (*EventRepo)(nil)

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Append(ctx context.Context, e *domain.SubmissionEvent) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO submission_events (contest_id, participant_id, problem_id, verdict, submitted_at, tests_passed, tests_total,
			tab_switch_count, tab_switch_duration, paste_attempts, fullscreen_exits, is_final, is_violation_only)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq`,
		e.ContestID, e.ParticipantID, e.ProblemID, string(e.Verdict), e.SubmittedAt, e.TestsPassed, e.TestsTotal,
		e.Violations.TabSwitchCount, e.Violations.TabSwitchDuration, e.Violations.PasteAttempts, e.Violations.FullscreenExits,
		e.IsFinal, e.IsViolationOnly,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to append submission event: %w", err)
	}
	return seq, nil
}

// StreamEvents reads rows one by one so a large contest log is never materialised twice.
func (r *EventRepo) StreamEvents(ctx context.Context, contestID string, fn func(domain.SubmissionEvent) error) error {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM submission_events WHERE contest_id = $1 ORDER BY seq`, contestID)
	if err != nil {
		return fmt.Errorf("failed to query submission events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to stream submission events: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (domain.SubmissionEvent, error) {
	var (
		e       domain.SubmissionEvent
		verdict string
	)
	err := row.Scan(&e.Seq, &e.ContestID, &e.ParticipantID, &e.ProblemID, &verdict, &e.SubmittedAt, &e.TestsPassed, &e.TestsTotal,
		&e.Violations.TabSwitchCount, &e.Violations.TabSwitchDuration, &e.Violations.PasteAttempts, &e.Violations.FullscreenExits,
		&e.IsFinal, &e.IsViolationOnly)
	if err != nil {
		return e, fmt.Errorf("failed to scan submission event: %w", err)
	}
	e.Verdict = domain.Verdict(verdict)
	e.SubmittedAt = e.SubmittedAt.UTC()
	return e, nil
}
