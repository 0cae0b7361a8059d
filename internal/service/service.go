package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"go.uber.org/zap"
)

// Alerter raises an operator alert. Delivery failures are the alerter's
// problem.
type Alerter interface {
	Alert(ctx context.Context, text string)
}

// OTPSender delivers one-time codes.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code string) error
}

// failures turns storage errors into apperr values and reports the ones that
// left storage in an unknown state.
type failures struct {
	alerts Alerter
	logger *zap.Logger
}

func (f failures) translate(ctx context.Context, err error, op string, fields ...zap.Field) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, storage.ErrRollbackFailed) {
		f.reconcile(ctx, err, op, fields...)
		return apperr.Upstream(err, false, "%s failed and could not be rolled back", op)
	}

	if e, ok := apperr.As(err); ok {
		return e
	}

	if errors.Is(err, storage.ErrVersionConflict) {
		return apperr.Conflict(apperr.ReasonVersionMismatch, "shift configuration changed concurrently")
	}

	f.logger.Error("Operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
	return apperr.Upstream(err, true, "%s failed", op)
}

// reconcile logs and alerts about a failure that needs manual repair.
func (f failures) reconcile(ctx context.Context, err error, op string, fields ...zap.Field) {
	f.logger.Error("Manual reconciliation required",
		append(fields,
			zap.String("op", op),
			zap.Bool("reconciliation_required", true),
			zap.Error(err),
		)...,
	)
	if f.alerts != nil {
		f.alerts.Alert(ctx, fmt.Sprintf("%s: manual reconciliation required: %v", op, err))
	}
}
