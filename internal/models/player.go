package models

import "time"

// MinRating 레이팅 하한
const MinRating = 1

type Player struct {
	ID          int64     `json:"id" db:"id"`
	ExternalID  string    `json:"externalId" db:"external_id"`
	DisplayName string    `json:"displayName" db:"display_name"`
	Rating      int       `json:"rating" db:"rating"`
	Wins        int       `json:"wins" db:"wins"`
	Losses      int       `json:"losses" db:"losses"`
	WinStreak   int       `json:"winStreak" db:"win_streak"`
	LossStreak  int       `json:"lossStreak" db:"loss_streak"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// PlayerUpdate 매치 결과로 변경되는 플레이어 필드
type PlayerUpdate struct {
	PlayerID    int64 `json:"playerId"`
	Rating      int   `json:"rating"`
	RatingDelta int   `json:"ratingDelta"`
	StreakBonus int   `json:"streakBonus"`
	Wins        int   `json:"wins"`
	Losses      int   `json:"losses"`
	WinStreak   int   `json:"winStreak"`
	LossStreak  int   `json:"lossStreak"`
	Won         bool  `json:"won"`
}
