// Package memory 프로세스 메모리 저장소. 단일 인스턴스 실행과 테스트용
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
)

// state 모든 저장소가 하나의 잠금을 공유해 트랜잭션처럼 동작
type state struct {
	mu  sync.Mutex
	now func() time.Time

	players    map[int64]*models.Player
	byExternal map[string]int64
	nextPlayer int64

	queue     map[int64]models.QueueEntry
	nextEntry int64

	matches     map[int64]*models.Match
	teams       map[int64]*models.Team
	teamPlayers map[int64][]models.TeamPlayer // matchID 별
	activeMatch map[int64]int64               // playerID → matchID
	nextMatch   int64
	nextTeam    int64

	voteKicks    map[int64]*models.VoteKick
	nextVoteKick int64
}

// Store 메모리 저장소 묶음
type Store struct {
	st *state

	Players   *PlayerStore
	Queue     *QueueStore
	Matches   *MatchStore
	VoteKicks *VoteKickStore
}

func New() *Store {
	st := &state{
		now:         time.Now,
		players:     make(map[int64]*models.Player),
		byExternal:  make(map[string]int64),
		queue:       make(map[int64]models.QueueEntry),
		matches:     make(map[int64]*models.Match),
		teams:       make(map[int64]*models.Team),
		teamPlayers: make(map[int64][]models.TeamPlayer),
		activeMatch: make(map[int64]int64),
		voteKicks:   make(map[int64]*models.VoteKick),
	}

	return &Store{
		st:        st,
		Players:   &PlayerStore{st: st},
		Queue:     &QueueStore{st: st},
		Matches:   &MatchStore{st: st},
		VoteKicks: &VoteKickStore{st: st},
	}
}

// SetClock 생성 시각 기록에 쓸 시계 교체
func (s *Store) SetClock(now func() time.Time) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.now = now
}

// sortedQueueLocked 선택 순서대로 정렬된 큐
func (st *state) sortedQueueLocked() []models.QueueEntry {
	entries := make([]models.QueueEntry, 0, len(st.queue))
	for _, e := range st.queue {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
	return entries
}
