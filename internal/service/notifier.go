package service

import (
	"context"

	"go.uber.org/zap"
)

// NopNotifier 알림 비활성
type NopNotifier struct{}

func (NopNotifier) Announce(context.Context, string, interface{}) {}

// FanoutNotifier 여러 알림 대상에 순서대로 전달. 한 대상의 panic 이 다른 대상이나 호출자에 번지지 않음
type FanoutNotifier struct {
	sinks  []Notifier
	logger *zap.Logger
}

func NewFanoutNotifier(logger *zap.Logger, sinks ...Notifier) *FanoutNotifier {
	return &FanoutNotifier{sinks: sinks, logger: logger}
}

func (f *FanoutNotifier) Announce(ctx context.Context, event string, payload interface{}) {
	for _, sink := range f.sinks {
		f.safeAnnounce(ctx, sink, event, payload)
	}
}

func (f *FanoutNotifier) safeAnnounce(ctx context.Context, sink Notifier, event string, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Notifier panicked",
				zap.String("event", event),
				zap.Any("panic", r))
		}
	}()
	sink.Announce(ctx, event, payload)
}
