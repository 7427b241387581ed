package service

import "sync"

// ProcessingSet 큐에서 빠져나와 아직 팀에 저장되지 않은 플레이어 (프로세스 로컬 캐시)
// 재시작 시 비어 있어도 정확성은 저장소 잠금과 유니크 인덱스로 보장됨
type ProcessingSet struct {
	mu      sync.RWMutex
	players map[int64]struct{}
}

func NewProcessingSet() *ProcessingSet {
	return &ProcessingSet{players: make(map[int64]struct{})}
}

func (s *ProcessingSet) Mark(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.players[id] = struct{}{}
	}
}

func (s *ProcessingSet) Clear(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.players, id)
	}
}

func (s *ProcessingSet) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.players[id]
	return ok
}

func (s *ProcessingSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}
