package service

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RetainedGroup 함께 진 뒤 다음 매치에서 다시 묶일 그룹
type RetainedGroup struct {
	ID       string
	Members  []int64
	Losses   map[int64]int
	LastLoss time.Time
}

// GroupTracker 연속 패배 그룹 추적 (프로세스 메모리에만 유지)
type GroupTracker struct {
	mu       sync.Mutex
	lossCap  int
	maxAge   time.Duration
	now      func() time.Time
	groups   map[string]*RetainedGroup
	memberOf map[int64]string
}

func NewGroupTracker(lossCap int) *GroupTracker {
	return &GroupTracker{
		lossCap:  lossCap,
		now:      time.Now,
		groups:   make(map[string]*RetainedGroup),
		memberOf: make(map[int64]string),
	}
}

// WithMaxAge 마지막 패배 후 maxAge 가 지나도록 다시 묶이지 않은 그룹은 버림. 0 이면 무제한
func (g *GroupTracker) WithMaxAge(maxAge time.Duration) *GroupTracker {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxAge = maxAge
	return g
}

// GroupID 정렬된 멤버 ID 로부터 결정적 그룹 ID 생성
func GroupID(members []int64) string {
	sorted := append([]int64(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}

	hash := sha1.Sum([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(hash[:])[:16]
}

// RecordLoss 패배 기록. 누군가 lossCap 에 도달하면 그룹 해체 후 멤버 반환
func (g *GroupTracker) RecordLoss(members []int64) (broken []int64) {
	if len(members) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.evictStaleLocked(now)

	id := GroupID(members)
	group, ok := g.groups[id]
	if !ok {
		// 다른 그룹에 속했던 멤버는 그 그룹에서 빠짐
		for _, m := range members {
			g.dissolveLocked(g.memberOf[m])
		}
		group = &RetainedGroup{
			ID:      id,
			Members: append([]int64(nil), members...),
			Losses:  make(map[int64]int, len(members)),
		}
		g.groups[id] = group
		for _, m := range members {
			g.memberOf[m] = id
		}
	}

	group.LastLoss = now
	capped := false
	for _, m := range members {
		group.Losses[m]++
		if group.Losses[m] >= g.lossCap {
			capped = true
		}
	}

	if capped {
		g.dissolveLocked(id)
		return append([]int64(nil), members...)
	}
	return nil
}

// RecordWin 이긴 플레이어가 속한 그룹 해체
func (g *GroupTracker) RecordWin(members []int64) {
	g.Forget(members)
}

// Forget 멤버가 속한 그룹 해체 (매치 취소 등)
func (g *GroupTracker) Forget(members []int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range members {
		g.dissolveLocked(g.memberOf[m])
	}
}

// RetainedGroups 유지 중인 그룹 스냅샷 (ID 순)
func (g *GroupTracker) RetainedGroups() []RetainedGroup {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.evictStaleLocked(g.now())

	out := make([]RetainedGroup, 0, len(g.groups))
	for _, group := range g.groups {
		losses := make(map[int64]int, len(group.Losses))
		for k, v := range group.Losses {
			losses[k] = v
		}
		out = append(out, RetainedGroup{
			ID:       group.ID,
			Members:  append([]int64(nil), group.Members...),
			Losses:   losses,
			LastLoss: group.LastLoss,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *GroupTracker) evictStaleLocked(now time.Time) {
	if g.maxAge <= 0 {
		return
	}
	for id, group := range g.groups {
		if now.Sub(group.LastLoss) > g.maxAge {
			g.dissolveLocked(id)
		}
	}
}

func (g *GroupTracker) dissolveLocked(id string) {
	if id == "" {
		return
	}
	group, ok := g.groups[id]
	if !ok {
		return
	}
	for _, m := range group.Members {
		if g.memberOf[m] == id {
			delete(g.memberOf, m)
		}
	}
	delete(g.groups, id)
}
