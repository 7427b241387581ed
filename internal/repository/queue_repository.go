package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/rl-arena/ranked-matchmaker/pkg/database"
)

const queueColumns = `id, player_id, priority, rating_at_join, joined_at`

const queueOrder = `ORDER BY priority DESC, joined_at ASC, player_id ASC`

// QueueRepository Postgres 매칭 큐. 예약은 FOR UPDATE SKIP LOCKED + DELETE 를 한 트랜잭션에서 수행
type QueueRepository struct {
	db *database.DB
}

var _ service.QueueStore = (*QueueRepository)(nil)

func NewQueueRepository(db *database.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func scanEntry(row scanner) (models.QueueEntry, error) {
	var e models.QueueEntry
	err := row.Scan(&e.ID, &e.PlayerID, &e.Priority, &e.RatingAtJoin, &e.JoinedAt)
	return e, err
}

func scanEntries(rows *sql.Rows) ([]models.QueueEntry, error) {
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Enqueue 진행 중 매치에 속한 플레이어는 넣지 않음. maxSize 는 근사 제한
func (r *QueueRepository) Enqueue(ctx context.Context, entry models.QueueEntry, maxSize int) error {
	if maxSize > 0 {
		size, err := r.Size(ctx)
		if err != nil {
			return err
		}
		if size >= maxSize {
			return service.ErrQueueFull
		}
	}

	query := `
		INSERT INTO queue_entries (player_id, priority, rating_at_join, joined_at)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM team_players WHERE player_id = $1 AND active = TRUE
		)
		ON CONFLICT (player_id) DO NOTHING
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, entry.PlayerID, entry.Priority, entry.RatingAtJoin, entry.JoinedAt).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return persistErr("enqueue player", err)
	}

	// 삽입되지 않은 이유 구분
	queued, err := r.Contains(ctx, entry.PlayerID)
	if err != nil {
		return err
	}
	if queued {
		return service.ErrAlreadyQueued
	}
	return service.ErrAlreadyInMatch
}

// Dequeue 큐에서 제거
func (r *QueueRepository) Dequeue(ctx context.Context, playerID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE player_id = $1`, playerID)
	if err != nil {
		return false, persistErr("dequeue player", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, persistErr("dequeue player", err)
	}
	return n > 0, nil
}

func (r *QueueRepository) Contains(ctx context.Context, playerID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM queue_entries WHERE player_id = $1)`, playerID).Scan(&exists)
	if err != nil {
		return false, persistErr("check queue entry", err)
	}
	return exists, nil
}

func (r *QueueRepository) Size(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries`).Scan(&n); err != nil {
		return 0, persistErr("count queue", err)
	}
	return n, nil
}

func (r *QueueRepository) List(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+queueColumns+` FROM queue_entries `+queueOrder)
	if err != nil {
		return nil, persistErr("list queue", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, persistErr("scan queue", err)
	}
	return entries, nil
}

// SelectForMatch 다른 트랜잭션이 잠근 행은 건너뛰므로 동시 호출이 같은 플레이어를 받지 않음
func (r *QueueRepository) SelectForMatch(ctx context.Context, n int, hook service.ReserveHook) ([]models.QueueEntry, error) {
	if n < 1 {
		return nil, nil
	}

	query := `
		SELECT ` + queueColumns + `
		FROM queue_entries
		` + queueOrder + `
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	return r.reserve(ctx, hook, func(tx *sql.Tx) ([]models.QueueEntry, bool, error) {
		rows, err := tx.QueryContext(ctx, query, n)
		if err != nil {
			return nil, false, err
		}
		entries, err := scanEntries(rows)
		if err != nil {
			return nil, false, err
		}
		return entries, len(entries) == n, nil
	})
}

// SelectPlayers 지정된 플레이어 전원을 잠글 수 있을 때만 예약
func (r *QueueRepository) SelectPlayers(ctx context.Context, playerIDs []int64, hook service.ReserveHook) ([]models.QueueEntry, error) {
	if len(playerIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + queueColumns + `
		FROM queue_entries
		WHERE player_id = ANY($1)
		` + queueOrder + `
		FOR UPDATE SKIP LOCKED
	`
	return r.reserve(ctx, hook, func(tx *sql.Tx) ([]models.QueueEntry, bool, error) {
		rows, err := tx.QueryContext(ctx, query, pq.Array(playerIDs))
		if err != nil {
			return nil, false, err
		}
		entries, err := scanEntries(rows)
		if err != nil {
			return nil, false, err
		}
		return entries, len(entries) == len(playerIDs), nil
	})
}

// reserve 잠금 → 충분하면 hook → 삭제 → 커밋
func (r *QueueRepository) reserve(
	ctx context.Context,
	hook service.ReserveHook,
	lock func(tx *sql.Tx) ([]models.QueueEntry, bool, error),
) ([]models.QueueEntry, error) {
	var reserved []models.QueueEntry

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		entries, enough, err := lock(tx)
		if err != nil {
			return persistErr("lock queue entries", err)
		}
		if !enough {
			return nil
		}

		if hook != nil {
			if err := hook(entries); err != nil {
				return err
			}
		}

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
			return persistErr("delete reserved entries", err)
		}

		reserved = entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// Requeue priority 0, 원래 joined_at 유지. 이미 대기 중이거나 진행 중 매치에 있으면 건너뜀
func (r *QueueRepository) Requeue(ctx context.Context, entries []models.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO queue_entries (player_id, priority, rating_at_join, joined_at)
		SELECT $1, 0, $2, $3
		WHERE NOT EXISTS (
			SELECT 1 FROM team_players WHERE player_id = $1 AND active = TRUE
		)
		ON CONFLICT (player_id) DO NOTHING
	`

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, query, e.PlayerID, e.RatingAtJoin, e.JoinedAt); err != nil {
				return persistErr("requeue player", err)
			}
		}
		return nil
	})
}

// Sweep 예약 중인 행은 잠겨 있으므로 건드리지 않음
func (r *QueueRepository) Sweep(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error) {
	query := `
		DELETE FROM queue_entries
		WHERE id IN (
			SELECT id FROM queue_entries
			WHERE joined_at < $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, persistErr("sweep queue", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, persistErr("scan swept entries", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
	return entries, nil
}
