package models

import "time"

type QueueEntry struct {
	ID           int64     `json:"id" db:"id"`
	PlayerID     int64     `json:"playerId" db:"player_id"`
	Priority     int       `json:"priority" db:"priority"`
	RatingAtJoin int       `json:"ratingAtJoin" db:"rating_at_join"`
	JoinedAt     time.Time `json:"joinedAt" db:"joined_at"`
}

// Before 선택 순서 비교 (priority 높은 순, 같으면 먼저 들어온 순)
func (e QueueEntry) Before(other QueueEntry) bool {
	if e.Priority != other.Priority {
		return e.Priority > other.Priority
	}
	if !e.JoinedAt.Equal(other.JoinedAt) {
		return e.JoinedAt.Before(other.JoinedAt)
	}
	return e.PlayerID < other.PlayerID
}

// QueueView 대시보드/커맨드용 큐 스냅샷 항목
type QueueView struct {
	PlayerID     int64     `json:"playerId"`
	ExternalID   string    `json:"externalId"`
	DisplayName  string    `json:"displayName"`
	JoinedAt     time.Time `json:"joinedAt"`
	Priority     int       `json:"priority"`
	RatingAtJoin int       `json:"ratingAtJoin"`
}
