package service

import (
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
)

// Metrics 서비스 계층 지표 (prometheus 구현은 internal/metrics)
type Metrics interface {
	SetQueueSize(n int)
	IncQueueTimeouts(n int)
	IncMatchesCreated()
	IncMatchCreationFailures(reason string)
	IncRollbacks()
	IncMatchesFinished(status models.MatchStatus)
	ObserveMatchCreation(d time.Duration)
	IncVoteKicks(status models.VoteKickStatus)
}

// NopMetrics 지표 비활성
type NopMetrics struct{}

func (NopMetrics) SetQueueSize(int)                      {}
func (NopMetrics) IncQueueTimeouts(int)                  {}
func (NopMetrics) IncMatchesCreated()                    {}
func (NopMetrics) IncMatchCreationFailures(string)       {}
func (NopMetrics) IncRollbacks()                         {}
func (NopMetrics) IncMatchesFinished(models.MatchStatus) {}
func (NopMetrics) ObserveMatchCreation(time.Duration)    {}
func (NopMetrics) IncVoteKicks(models.VoteKickStatus)    {}
