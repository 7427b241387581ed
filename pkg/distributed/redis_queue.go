package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/samber/lo"
)

// order ZSET: 점수는 -priority, 같은 점수 안에서는 멤버 문자열 순서.
// 멤버는 "가입시각(ns):playerID" 를 0 으로 채운 고정 폭 문자열이라 사전순이 곧 (가입시각, playerID) 순
// joined ZSET: 같은 멤버를 점수 0 으로 넣어 ZRANGEBYLEX 로 만료 범위 조회
const memberWidth = 20

// KEYS: order, joined, entries, members
const removeFn = `
local function remove(id)
	local payload = redis.call("HGET", KEYS[3], id)
	local member = redis.call("HGET", KEYS[4], id)
	if member then
		redis.call("ZREM", KEYS[1], member)
		redis.call("ZREM", KEYS[2], member)
	end
	redis.call("HDEL", KEYS[3], id)
	redis.call("HDEL", KEYS[4], id)
	return payload
end

local function idOf(member)
	return string.match(member, ":0*(%d+)$")
end
`

// ARGV: playerID, priorityScore, member, payload, maxSize
var enqueueScript = redis.NewScript(`
	if redis.call("HEXISTS", KEYS[3], ARGV[1]) == 1 then
		return 0
	end
	local maxSize = tonumber(ARGV[5])
	if maxSize > 0 and redis.call("ZCARD", KEYS[1]) >= maxSize then
		return -1
	end
	redis.call("ZADD", KEYS[1], ARGV[2], ARGV[3])
	redis.call("ZADD", KEYS[2], 0, ARGV[3])
	redis.call("HSET", KEYS[3], ARGV[1], ARGV[4])
	redis.call("HSET", KEYS[4], ARGV[1], ARGV[3])
	return 1
`)

// ARGV: playerID
var dequeueScript = redis.NewScript(removeFn + `
	if remove(ARGV[1]) then
		return 1
	end
	return 0
`)

// ARGV: n
var popScript = redis.NewScript(removeFn + `
	local n = tonumber(ARGV[1])
	if redis.call("ZCARD", KEYS[1]) < n then
		return {}
	end
	local members = redis.call("ZRANGE", KEYS[1], 0, n - 1)
	local out = {}
	for i, member in ipairs(members) do
		out[i] = remove(idOf(member))
	end
	return out
`)

// ARGV: playerIDs. 한 명이라도 없으면 아무것도 제거하지 않음
var popPlayersScript = redis.NewScript(removeFn + `
	for _, id in ipairs(ARGV) do
		if redis.call("HEXISTS", KEYS[3], id) == 0 then
			return {}
		end
	end
	local out = {}
	for i, id in ipairs(ARGV) do
		out[i] = remove(id)
	end
	return out
`)

// ARGV: cutoff 가입시각(ns) 접두사. cutoff 보다 먼저 들어온 엔트리만
var sweepScript = redis.NewScript(removeFn + `
	local members = redis.call("ZRANGEBYLEX", KEYS[2], "-", "(" .. ARGV[1])
	local out = {}
	for i, member in ipairs(members) do
		out[i] = remove(idOf(member))
	end
	return out
`)

// ActiveMatchChecker 진행 중 매치 조회 (MatchStore 가 만족)
type ActiveMatchChecker interface {
	ActiveMatchForPlayer(ctx context.Context, playerID int64) (*models.MatchDetails, error)
}

// RedisQueueStore Redis Sorted Set 기반 매칭 대기열
// order ZSET 으로 선택 순서, joined ZSET 으로 만료, HASH 에 엔트리 본문과 멤버 키를 보관
type RedisQueueStore struct {
	client  redis.UniversalClient
	matches ActiveMatchChecker
	order   string
	joined  string
	entries string
	members string
	seq     string
}

var _ service.QueueStore = (*RedisQueueStore)(nil)

// NewRedisQueueStore matches 가 nil 이면 진행 중 매치 확인 생략
func NewRedisQueueStore(client redis.UniversalClient, prefix string, matches ActiveMatchChecker) *RedisQueueStore {
	if prefix == "" {
		prefix = "matchmaking:queue"
	}
	return &RedisQueueStore{
		client:  client,
		matches: matches,
		order:   prefix + ":order",
		joined:  prefix + ":joined",
		entries: prefix + ":entries",
		members: prefix + ":members",
		seq:     prefix + ":seq",
	}
}

func (q *RedisQueueStore) keys() []string {
	return []string{q.order, q.joined, q.entries, q.members}
}

func joinedKey(t time.Time) string {
	return fmt.Sprintf("%0*d", memberWidth, t.UnixNano())
}

func member(e models.QueueEntry) string {
	return fmt.Sprintf("%s:%0*d", joinedKey(e.JoinedAt), memberWidth, e.PlayerID)
}

func (q *RedisQueueStore) inMatch(ctx context.Context, playerID int64) (bool, error) {
	if q.matches == nil {
		return false, nil
	}
	m, err := q.matches.ActiveMatchForPlayer(ctx, playerID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// add 엔트리 추가. 이미 있으면 false
func (q *RedisQueueStore) add(ctx context.Context, entry models.QueueEntry, maxSize int) (int, error) {
	if entry.ID == 0 {
		id, err := q.client.Incr(ctx, q.seq).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to allocate entry id: %w", err)
		}
		entry.ID = id
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal entry: %w", err)
	}

	return enqueueScript.Run(ctx, q.client, q.keys(),
		strconv.FormatInt(entry.PlayerID, 10),
		-entry.Priority,
		member(entry),
		payload,
		maxSize,
	).Int()
}

func (q *RedisQueueStore) Enqueue(ctx context.Context, entry models.QueueEntry, maxSize int) error {
	busy, err := q.inMatch(ctx, entry.PlayerID)
	if err != nil {
		return err
	}
	if busy {
		return service.ErrAlreadyInMatch
	}

	result, err := q.add(ctx, entry, maxSize)
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	switch result {
	case 0:
		return service.ErrAlreadyQueued
	case -1:
		return service.ErrQueueFull
	}
	return nil
}

func (q *RedisQueueStore) Dequeue(ctx context.Context, playerID int64) (bool, error) {
	removed, err := dequeueScript.Run(ctx, q.client, q.keys(), strconv.FormatInt(playerID, 10)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to dequeue: %w", err)
	}
	return removed == 1, nil
}

func (q *RedisQueueStore) Contains(ctx context.Context, playerID int64) (bool, error) {
	return q.client.HExists(ctx, q.entries, strconv.FormatInt(playerID, 10)).Result()
}

func (q *RedisQueueStore) Size(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.order).Result()
	return int(n), err
}

func (q *RedisQueueStore) List(ctx context.Context) ([]models.QueueEntry, error) {
	raw, err := q.client.HVals(ctx, q.entries).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return decodeEntries(lo.Map(raw, func(s string, _ int) interface{} { return s }))
}

func (q *RedisQueueStore) SelectForMatch(ctx context.Context, n int, hook service.ReserveHook) ([]models.QueueEntry, error) {
	if n < 1 {
		return nil, nil
	}
	raw, err := popScript.Run(ctx, q.client, q.keys(), n).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to select players: %w", err)
	}
	return q.reserve(ctx, raw, hook)
}

func (q *RedisQueueStore) SelectPlayers(ctx context.Context, playerIDs []int64, hook service.ReserveHook) ([]models.QueueEntry, error) {
	if len(playerIDs) == 0 {
		return nil, nil
	}
	args := lo.Map(playerIDs, func(id int64, _ int) interface{} { return strconv.FormatInt(id, 10) })
	raw, err := popPlayersScript.Run(ctx, q.client, q.keys(), args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to select players: %w", err)
	}
	return q.reserve(ctx, raw, hook)
}

// reserve hook 이 실패하면 꺼낸 엔트리를 원래 점수 그대로 되돌림
func (q *RedisQueueStore) reserve(ctx context.Context, raw []interface{}, hook service.ReserveHook) ([]models.QueueEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(entries); err != nil {
			for _, e := range entries {
				_, _ = q.add(context.WithoutCancel(ctx), e, 0)
			}
			return nil, err
		}
	}
	return entries, nil
}

// Requeue 이미 대기 중이거나 진행 중 매치에 있는 플레이어는 건너뜀
func (q *RedisQueueStore) Requeue(ctx context.Context, entries []models.QueueEntry) error {
	for _, e := range entries {
		busy, err := q.inMatch(ctx, e.PlayerID)
		if err != nil {
			return err
		}
		if busy {
			continue
		}
		e.Priority = 0
		if _, err := q.add(ctx, e, 0); err != nil {
			return fmt.Errorf("failed to requeue player %d: %w", e.PlayerID, err)
		}
	}
	return nil
}

func (q *RedisQueueStore) Sweep(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error) {
	raw, err := sweepScript.Run(ctx, q.client, q.keys(), joinedKey(cutoff)).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to sweep queue: %w", err)
	}
	return decodeEntries(raw)
}

func decodeEntries(raw []interface{}) ([]models.QueueEntry, error) {
	entries := make([]models.QueueEntry, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		var e models.QueueEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("failed to decode queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
	return entries, nil
}
