package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/rl-arena/ranked-matchmaker/pkg/database"
)

// uqActiveTeamPlayer 한 플레이어는 active 팀원 행을 하나만 가짐
const uqActiveTeamPlayer = "uq_team_players_active"

type MatchRepository struct {
	db *database.DB
}

var _ service.MatchStore = (*MatchRepository)(nil)

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Create 매치 + 두 팀 + 팀원을 한 트랜잭션에서 생성
func (r *MatchRepository) Create(ctx context.Context, teams []models.NewTeam) (*models.MatchDetails, error) {
	if len(teams) != 2 {
		return nil, fmt.Errorf("%w: a match needs exactly two teams", service.ErrInvalidInput)
	}

	var details *models.MatchDetails
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var matchID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO matches (status) VALUES ($1) RETURNING id`,
			models.MatchStatusWaiting,
		).Scan(&matchID)
		if err != nil {
			return persistErr("create match", err)
		}

		for _, t := range teams {
			var teamID int64
			err := tx.QueryRowContext(ctx,
				`INSERT INTO teams (match_id, name, avg_rating) VALUES ($1, $2, $3) RETURNING id`,
				matchID, t.Name, t.AvgRating,
			).Scan(&teamID)
			if err != nil {
				return persistErr("create team", err)
			}

			for _, playerID := range t.PlayerIDs {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO team_players (team_id, match_id, player_id, active) VALUES ($1, $2, $3, TRUE)`,
					teamID, matchID, playerID,
				)
				if err != nil {
					return teamPlayerInsertErr(err, playerID)
				}
			}
		}

		details, err = loadMatch(ctx, tx, matchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// teamPlayerInsertErr active 인덱스 위반은 다른 매치에 이미 배정된 것, 그 외 중복은 같은 매치 안의 중복 입력
func teamPlayerInsertErr(err error, playerID int64) error {
	switch {
	case uniqueViolation(err, uqActiveTeamPlayer):
		return fmt.Errorf("%w: player %d", service.ErrAlreadyInMatch, playerID)
	case uniqueViolation(err, ""):
		return fmt.Errorf("%w: player %d listed twice in match", service.ErrInvalidInput, playerID)
	default:
		return persistErr("add team player", err)
	}
}

func (r *MatchRepository) Get(ctx context.Context, id int64) (*models.MatchDetails, error) {
	return loadMatch(ctx, r.db, id)
}

// List 최신순. statuses 가 비면 전체, limit 0 이면 제한 없음
func (r *MatchRepository) List(ctx context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchDetails, error) {
	var filter pq.StringArray
	if len(statuses) > 0 {
		filter = make(pq.StringArray, len(statuses))
		for i, s := range statuses {
			filter[i] = string(s)
		}
	}

	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}

	query := `
		SELECT id FROM matches
		WHERE $1::text[] IS NULL OR status = ANY($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, filter, limitArg)
	if err != nil {
		return nil, persistErr("list matches", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, persistErr("scan match id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, persistErr("list matches", err)
	}

	out := make([]models.MatchDetails, 0, len(ids))
	for _, id := range ids {
		m, err := loadMatch(ctx, r.db, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *MatchRepository) ActiveMatchForPlayer(ctx context.Context, playerID int64) (*models.MatchDetails, error) {
	var matchID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT match_id FROM team_players WHERE player_id = $1 AND active = TRUE LIMIT 1`,
		playerID,
	).Scan(&matchID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find active match", err)
	}
	return loadMatch(ctx, r.db, matchID)
}

// Transition 매치 행을 잠근 뒤 전이 가능 여부 확인
func (r *MatchRepository) Transition(ctx context.Context, id int64, to models.MatchStatus) (*models.MatchDetails, error) {
	var details *models.MatchDetails
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := lockMatch(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", service.ErrInvalidMatchState, current, to)
		}

		if to == models.MatchStatusCompleted || to == models.MatchStatusCancelled {
			_, err = tx.ExecContext(ctx,
				`UPDATE matches SET status = $1, completed_at = NOW() WHERE id = $2`, to, id)
			if err == nil {
				err = releasePlayers(ctx, tx, id)
			}
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE matches SET status = $1 WHERE id = $2`, to, id)
		}
		if err != nil {
			return persistErr("transition match", err)
		}

		details, err = loadMatch(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// Complete 매치와 참가자 행을 잠근 채 compute 결과를 저장
func (r *MatchRepository) Complete(ctx context.Context, id, winningTeamID int64, completedAt time.Time, compute service.CompleteFunc) (*models.MatchDetails, []models.PlayerUpdate, error) {
	var (
		details *models.MatchDetails
		updates []models.PlayerUpdate
	)

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := lockMatch(ctx, tx, id)
		if err != nil {
			return err
		}

		// 레이팅 읽기-쓰기 사이에 다른 결과 처리가 끼어들지 않도록
		_, err = tx.ExecContext(ctx, `
			SELECT id FROM players
			WHERE id IN (SELECT player_id FROM team_players WHERE match_id = $1)
			ORDER BY id
			FOR UPDATE
		`, id)
		if err != nil {
			return persistErr("lock match players", err)
		}

		locked, err := loadMatch(ctx, tx, id)
		if err != nil {
			return err
		}

		updates, err = compute(locked)
		if err != nil {
			return err
		}
		if !current.CanTransitionTo(models.MatchStatusCompleted) {
			return fmt.Errorf("%w: %s -> completed", service.ErrInvalidMatchState, current)
		}

		if err := applyUpdates(ctx, tx, updates); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE matches
			SET status = $1, winning_team_id = $2, completed_at = $3
			WHERE id = $4
		`, models.MatchStatusCompleted, winningTeamID, completedAt, id)
		if err != nil {
			return persistErr("complete match", err)
		}
		if err := releasePlayers(ctx, tx, id); err != nil {
			return persistErr("release players", err)
		}

		details, err = loadMatch(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return details, updates, nil
}

// ArchiveBefore 종료된 지 오래된 매치 보관 처리
func (r *MatchRepository) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE matches
		SET status = 'archived'
		WHERE status IN ('completed', 'cancelled') AND completed_at < $1
	`, cutoff)
	if err != nil {
		return 0, persistErr("archive matches", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, persistErr("archive matches", err)
	}
	return int(n), nil
}

func lockMatch(ctx context.Context, tx *sql.Tx, id int64) (models.MatchStatus, error) {
	var status models.MatchStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM matches WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", service.ErrMatchNotFound
	}
	if err != nil {
		return "", persistErr("lock match", err)
	}
	return status, nil
}

func releasePlayers(ctx context.Context, q querier, matchID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE team_players SET active = FALSE WHERE match_id = $1`, matchID)
	return err
}

// loadMatch 매치 + 팀 + 현재 플레이어 기록. 없으면 nil
func loadMatch(ctx context.Context, q querier, id int64) (*models.MatchDetails, error) {
	details := &models.MatchDetails{}
	var (
		winning   sql.NullInt64
		completed pq.NullTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, status, winning_team_id, created_at, completed_at FROM matches WHERE id = $1`, id,
	).Scan(&details.ID, &details.Status, &winning, &details.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find match", err)
	}
	if winning.Valid {
		w := winning.Int64
		details.WinningTeamID = &w
	}
	if completed.Valid {
		c := completed.Time
		details.CompletedAt = &c
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, match_id, name, avg_rating, created_at FROM teams WHERE match_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, persistErr("find teams", err)
	}
	for rows.Next() {
		var t models.TeamDetails
		if err := rows.Scan(&t.ID, &t.MatchID, &t.Name, &t.AvgRating, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, persistErr("scan team", err)
		}
		details.Teams = append(details.Teams, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, persistErr("find teams", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT tp.team_id, p.id, p.external_id, p.display_name, p.rating, p.wins, p.losses,
		       p.win_streak, p.loss_streak, p.active, p.created_at, p.updated_at
		FROM team_players tp
		JOIN players p ON p.id = tp.player_id
		WHERE tp.match_id = $1
		ORDER BY tp.team_id, p.id
	`, id)
	if err != nil {
		return nil, persistErr("find team players", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			teamID int64
			p      models.Player
		)
		err := rows.Scan(&teamID, &p.ID, &p.ExternalID, &p.DisplayName, &p.Rating, &p.Wins, &p.Losses,
			&p.WinStreak, &p.LossStreak, &p.Active, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, persistErr("scan team player", err)
		}
		if team := details.TeamByID(teamID); team != nil {
			team.Players = append(team.Players, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("find team players", err)
	}
	return details, nil
}
