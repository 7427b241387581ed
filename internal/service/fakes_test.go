package service_test

import (
	"context"
	"errors"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"go.uber.org/zap"
)

func zapNop() *zap.Logger { return zap.NewNop() }

// blockingLocker 첫 획득에서 release 가 닫힐 때까지 대기
type blockingLocker struct {
	entered chan struct{}
	release chan struct{}
}

func (l *blockingLocker) Acquire(ctx context.Context, _ string) (func(), error) {
	close(l.entered)
	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() {}, nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, service.ErrMatchCreationInProgress
}

type failingSideChannel struct{}

func (failingSideChannel) Setup(context.Context, *models.MatchDetails) error {
	return errors.New("voice channel quota exceeded")
}

func (failingSideChannel) Teardown(context.Context, *models.MatchDetails) error {
	return errors.New("voice channel already gone")
}
