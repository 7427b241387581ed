package service

import (
	"context"

	"go.uber.org/zap"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Compensator 임시 변경마다 되돌리기 작업을 쌓아 두고, 실패 시 역순으로 실행
type Compensator struct {
	steps  []undoStep
	logger *zap.Logger
}

func NewCompensator(logger *zap.Logger) *Compensator {
	return &Compensator{logger: logger}
}

// Add 되돌리기 작업 등록
func (c *Compensator) Add(name string, fn func(ctx context.Context) error) {
	c.steps = append(c.steps, undoStep{name: name, fn: fn})
}

// Len 등록된 작업 수
func (c *Compensator) Len() int {
	return len(c.steps)
}

// Discard 성공 시 호출. 이후 Rollback 은 아무것도 하지 않음
func (c *Compensator) Discard() {
	c.steps = nil
}

// Rollback 역순 실행. 개별 실패는 기록하고 나머지를 계속 진행
func (c *Compensator) Rollback(ctx context.Context) []error {
	var errs []error
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.fn(ctx); err != nil {
			c.logger.Error("Compensation step failed",
				zap.String("step", step.name),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	c.steps = nil
	return errs
}
