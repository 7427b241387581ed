package models

import "time"

type VoteKickStatus string

const (
	VoteKickPending  VoteKickStatus = "pending"
	VoteKickApproved VoteKickStatus = "approved"
	VoteKickRejected VoteKickStatus = "rejected"
)

type VoteKick struct {
	ID            int64          `json:"id" db:"id"`
	MatchID       int64          `json:"matchId" db:"match_id"`
	TeamID        int64          `json:"teamId" db:"team_id"`
	TargetID      int64          `json:"targetId" db:"target_id"`
	InitiatorID   int64          `json:"initiatorId" db:"initiator_id"`
	Status        VoteKickStatus `json:"status" db:"status"`
	Threshold     int            `json:"threshold" db:"threshold"`
	EligibleCount int            `json:"eligibleCount" db:"eligible_count"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	ResolvedAt    *time.Time     `json:"resolvedAt,omitempty" db:"resolved_at"`
	Votes         []VoteKickVote `json:"votes"`
}

type VoteKickVote struct {
	VoteKickID int64     `json:"voteKickId" db:"vote_kick_id"`
	VoterID    int64     `json:"voterId" db:"voter_id"`
	Approve    bool      `json:"approve" db:"approve"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Tally 찬성/반대 집계
func (v *VoteKick) Tally() (approvals, rejections int) {
	for _, vote := range v.Votes {
		if vote.Approve {
			approvals++
		} else {
			rejections++
		}
	}
	return
}

// HasVoted 이미 투표했는지
func (v *VoteKick) HasVoted(playerID int64) bool {
	for _, vote := range v.Votes {
		if vote.VoterID == playerID {
			return true
		}
	}
	return false
}
