package models

import "time"

type MatchStatus string

const (
	MatchStatusWaiting   MatchStatus = "waiting"
	MatchStatusActive    MatchStatus = "active"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
	MatchStatusArchived  MatchStatus = "archived"
)

// IsTerminal completed/cancelled/archived 는 결과 보고나 취소 불가
func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusCompleted, MatchStatusCancelled, MatchStatusArchived:
		return true
	}
	return false
}

// CanTransitionTo 상태 전이는 단조 증가만 허용
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	switch s {
	case MatchStatusWaiting:
		return next == MatchStatusActive || next == MatchStatusCompleted || next == MatchStatusCancelled
	case MatchStatusActive:
		return next == MatchStatusCompleted || next == MatchStatusCancelled
	case MatchStatusCompleted, MatchStatusCancelled:
		return next == MatchStatusArchived
	}
	return false
}

type Match struct {
	ID            int64       `json:"id" db:"id"`
	Status        MatchStatus `json:"status" db:"status"`
	WinningTeamID *int64      `json:"winningTeamId,omitempty" db:"winning_team_id"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty" db:"completed_at"`
}

type Team struct {
	ID        int64     `json:"id" db:"id"`
	MatchID   int64     `json:"matchId" db:"match_id"`
	Name      string    `json:"name" db:"name"`
	AvgRating float64   `json:"avgRating" db:"avg_rating"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type TeamPlayer struct {
	TeamID   int64 `json:"teamId" db:"team_id"`
	PlayerID int64 `json:"playerId" db:"player_id"`
	MatchID  int64 `json:"matchId" db:"match_id"`
	Active   bool  `json:"active" db:"active"`
}

// TeamDetails 팀 + 소속 플레이어
type TeamDetails struct {
	Team
	Players []Player `json:"players"`
}

// MatchDetails 매치 + 두 팀
type MatchDetails struct {
	Match
	Teams []TeamDetails `json:"teams"`
}

// PlayerIDs 매치 참가자 전체 ID
func (m *MatchDetails) PlayerIDs() []int64 {
	var ids []int64
	for _, t := range m.Teams {
		for _, p := range t.Players {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// TeamOf 플레이어가 속한 팀
func (m *MatchDetails) TeamOf(playerID int64) *TeamDetails {
	for i := range m.Teams {
		for _, p := range m.Teams[i].Players {
			if p.ID == playerID {
				return &m.Teams[i]
			}
		}
	}
	return nil
}

// TeamByID ID로 팀 조회
func (m *MatchDetails) TeamByID(teamID int64) *TeamDetails {
	for i := range m.Teams {
		if m.Teams[i].ID == teamID {
			return &m.Teams[i]
		}
	}
	return nil
}

// NewTeam 매치 생성 요청의 팀 구성
type NewTeam struct {
	Name      string
	AvgRating float64
	PlayerIDs []int64
}

// MatchResult 결과 처리 후 반환값
type MatchResult struct {
	MatchID       int64          `json:"matchId"`
	WinningTeamID int64          `json:"winningTeamId"`
	LosingTeamID  int64          `json:"losingTeamId"`
	Updates       []PlayerUpdate `json:"updates"`
}
