package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/contestpulse/internal/domain"
)

// ContestRepo implements domain.ContestStore. Contest CRUD is owned by another service;
// SaveContest exists for seeding and tests.
type ContestRepo struct {
	pool *pgxpool.Pool
}

var _ domain.ContestStore = (*ContestRepo)(nil)

func NewContestRepo(pool *pgxpool.Pool) *ContestRepo {
	return &ContestRepo{pool: pool}
}

func (r *ContestRepo) GetContest(ctx context.Context, contestID string) (*domain.Contest, error) {
	var c domain.Contest
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, start_time, end_time FROM contests WHERE id = $1`, contestID,
	).Scan(&c.ID, &c.Title, &c.StartTime, &c.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrContestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}
	c.StartTime = c.StartTime.UTC()
	c.EndTime = c.EndTime.UTC()

	rows, err := r.pool.Query(ctx,
		`SELECT problem_id, points FROM contest_problems WHERE contest_id = $1 ORDER BY position`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contest problems: %w", err)
	}
	problems, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ContestProblem, error) {
		var p domain.ContestProblem
		err := row.Scan(&p.ProblemID, &p.Points)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan contest problems: %w", err)
	}
	c.Problems = problems
	return &c, nil
}

func (r *ContestRepo) Roster(ctx context.Context, contestID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT participant_id FROM contest_roster WHERE contest_id = $1 ORDER BY position`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roster: %w", err)
	}
	roster, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan roster: %w", err)
	}
	return roster, nil
}

// SaveContest upserts the contest and replaces its problem list and roster.
func (r *ContestRepo) SaveContest(ctx context.Context, c *domain.Contest, roster []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO contests (id, title, start_time, end_time) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time`,
		c.ID, c.Title, c.StartTime, c.EndTime)
	batch.Queue(`DELETE FROM contest_problems WHERE contest_id = $1`, c.ID)
	batch.Queue(`DELETE FROM contest_roster WHERE contest_id = $1`, c.ID)
	for i, p := range c.Problems {
		batch.Queue(`INSERT INTO contest_problems (contest_id, problem_id, points, position) VALUES ($1, $2, $3, $4)`,
			c.ID, p.ProblemID, p.Points, i)
	}
	for i, participantID := range roster {
		batch.Queue(`INSERT INTO contest_roster (contest_id, participant_id, position) VALUES ($1, $2, $3)`,
			c.ID, participantID, i)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save contest: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit contest: %w", err)
	}
	return nil
}
