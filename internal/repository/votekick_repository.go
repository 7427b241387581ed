package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/rl-arena/ranked-matchmaker/pkg/database"
)

const uqPendingVoteKick = "uq_vote_kicks_pending"

type VoteKickRepository struct {
	db *database.DB
}

var _ service.VoteKickStore = (*VoteKickRepository)(nil)

func NewVoteKickRepository(db *database.DB) *VoteKickRepository {
	return &VoteKickRepository{db: db}
}

// Create 투표와 발의자의 첫 표 저장
func (r *VoteKickRepository) Create(ctx context.Context, vk models.VoteKick, initial models.VoteKickVote) (*models.VoteKick, error) {
	var created *models.VoteKick

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO vote_kicks (match_id, team_id, target_id, initiator_id, status, threshold, eligible_count, created_at, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, vk.MatchID, vk.TeamID, vk.TargetID, vk.InitiatorID, vk.Status, vk.Threshold, vk.EligibleCount,
			vk.CreatedAt, vk.ResolvedAt,
		).Scan(&id)
		if uniqueViolation(err, uqPendingVoteKick) {
			return service.ErrVoteKickPending
		}
		if err != nil {
			return persistErr("create vote kick", err)
		}

		if err := insertVote(ctx, tx, id, initial); err != nil {
			return err
		}

		created, err = loadVoteKick(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *VoteKickRepository) Get(ctx context.Context, id int64) (*models.VoteKick, error) {
	return loadVoteKick(ctx, r.db, id, false)
}

// CastVote 투표 행을 잠근 채 decide 결과 반영
func (r *VoteKickRepository) CastVote(ctx context.Context, id int64, vote models.VoteKickVote, decide service.VoteDecider) (*models.VoteKick, error) {
	var updated *models.VoteKick

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		locked, err := loadVoteKick(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if locked == nil {
			return service.ErrVoteKickNotFound
		}

		status, err := decide(locked, vote)
		if err != nil {
			return err
		}

		if err := insertVote(ctx, tx, id, vote); err != nil {
			return err
		}

		var resolvedAt interface{}
		if status != models.VoteKickPending {
			resolvedAt = vote.CreatedAt
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE vote_kicks SET status = $1, resolved_at = $2 WHERE id = $3`,
			status, resolvedAt, id)
		if err != nil {
			return persistErr("update vote kick", err)
		}

		updated, err = loadVoteKick(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func insertVote(ctx context.Context, tx *sql.Tx, voteKickID int64, vote models.VoteKickVote) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO vote_kick_votes (vote_kick_id, voter_id, approve, created_at) VALUES ($1, $2, $3, $4)`,
		voteKickID, vote.VoterID, vote.Approve, vote.CreatedAt)
	if uniqueViolation(err, "") {
		return service.ErrAlreadyVoted
	}
	if err != nil {
		return persistErr("insert vote", err)
	}
	return nil
}

func loadVoteKick(ctx context.Context, q querier, id int64, forUpdate bool) (*models.VoteKick, error) {
	query := `
		SELECT id, match_id, team_id, target_id, initiator_id, status, threshold, eligible_count, created_at, resolved_at
		FROM vote_kicks WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	vk := &models.VoteKick{}
	var resolved pq.NullTime
	err := q.QueryRowContext(ctx, query, id).Scan(
		&vk.ID, &vk.MatchID, &vk.TeamID, &vk.TargetID, &vk.InitiatorID,
		&vk.Status, &vk.Threshold, &vk.EligibleCount, &vk.CreatedAt, &resolved,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find vote kick", err)
	}
	if resolved.Valid {
		t := resolved.Time
		vk.ResolvedAt = &t
	}

	rows, err := q.QueryContext(ctx, `
		SELECT vote_kick_id, voter_id, approve, created_at
		FROM vote_kick_votes WHERE vote_kick_id = $1
		ORDER BY created_at, voter_id
	`, id)
	if err != nil {
		return nil, persistErr("find votes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v models.VoteKickVote
		if err := rows.Scan(&v.VoteKickID, &v.VoterID, &v.Approve, &v.CreatedAt); err != nil {
			return nil, persistErr("scan vote", err)
		}
		vk.Votes = append(vk.Votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("find votes", err)
	}
	return vk, nil
}
