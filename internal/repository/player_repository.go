package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/rl-arena/ranked-matchmaker/pkg/database"
)

const playerColumns = `id, external_id, display_name, rating, wins, losses, win_streak, loss_streak, active, created_at, updated_at`

type PlayerRepository struct {
	db *database.DB
}

var _ service.PlayerStore = (*PlayerRepository)(nil)

func NewPlayerRepository(db *database.DB) *PlayerRepository {
	return &PlayerRepository{db: db}
}

func scanPlayer(row scanner) (*models.Player, error) {
	p := &models.Player{}
	err := row.Scan(
		&p.ID,
		&p.ExternalID,
		&p.DisplayName,
		&p.Rating,
		&p.Wins,
		&p.Losses,
		&p.WinStreak,
		&p.LossStreak,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID ID로 플레이어 조회
func (r *PlayerRepository) GetByID(ctx context.Context, id int64) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	p, err := scanPlayer(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find player by id", err)
	}
	return p, nil
}

// GetByExternalID 외부 ID로 플레이어 조회
func (r *PlayerRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE external_id = $1`

	p, err := scanPlayer(r.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find player by external id", err)
	}
	return p, nil
}

// GetOrCreate 없으면 생성. 동시 생성은 external_id 유니크 제약으로 한 행만 남음
func (r *PlayerRepository) GetOrCreate(ctx context.Context, externalID, displayName string, defaultRating int) (*models.Player, error) {
	query := `
		INSERT INTO players (external_id, display_name, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING ` + playerColumns

	p, err := scanPlayer(r.db.QueryRowContext(ctx, query, externalID, displayName, defaultRating))
	if err != nil {
		return nil, persistErr("get or create player", err)
	}
	return p, nil
}

// ListByIDs 요청 순서대로 반환. 없는 ID 는 건너뜀
func (r *PlayerRepository) ListByIDs(ctx context.Context, ids []int64) ([]models.Player, error) {
	if len(ids) == 0 {
		return []models.Player{}, nil
	}

	query := `SELECT ` + playerColumns + ` FROM players WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, persistErr("list players", err)
	}
	defer rows.Close()

	index := make(map[int64]models.Player, len(ids))
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, persistErr("scan player", err)
		}
		index[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list players", err)
	}

	out := make([]models.Player, 0, len(index))
	for _, id := range ids {
		if p, ok := index[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Leaderboard 활성 플레이어 레이팅 순
func (r *PlayerRepository) Leaderboard(ctx context.Context, limit int) ([]models.Player, error) {
	query := `
		SELECT ` + playerColumns + `
		FROM players
		WHERE active = TRUE
		ORDER BY rating DESC, wins DESC, id ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, persistErr("get leaderboard", err)
	}
	defer rows.Close()

	players := []models.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, persistErr("scan player", err)
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

// UpdateRating 관리자 레이팅 수정
func (r *PlayerRepository) UpdateRating(ctx context.Context, id int64, rating int) error {
	query := `UPDATE players SET rating = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "update rating", query, rating, id)
}

// SetActive 활성 상태 변경
func (r *PlayerRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE players SET active = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "set player active", query, active, id)
}

func (r *PlayerRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistErr(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return persistErr(op, err)
	}
	if n == 0 {
		return service.ErrPlayerNotFound
	}
	return nil
}

// applyUpdates 결과 처리 트랜잭션 안에서 레이팅/전적 저장
func applyUpdates(ctx context.Context, q querier, updates []models.PlayerUpdate) error {
	query := `
		UPDATE players
		SET rating = $1, wins = $2, losses = $3, win_streak = $4, loss_streak = $5, updated_at = NOW()
		WHERE id = $6
	`
	for _, u := range updates {
		if _, err := q.ExecContext(ctx, query, u.Rating, u.Wins, u.Losses, u.WinStreak, u.LossStreak, u.PlayerID); err != nil {
			return persistErr("update player result", err)
		}
	}
	return nil
}
