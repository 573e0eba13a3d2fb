// Package lockvendor talks to the smart-lock vendor. Every operation is
// network bound and may fail; only ErrDeviceNotFound is definitive.
package lockvendor

import (
	"context"
	"errors"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
)

//go:generate mockgen -source=controller.go -destination=mocks/mock_controller.go -package=mocks

var (
	ErrDeviceNotFound = errors.New("lock device not found")
	ErrTimeout        = errors.New("lock vendor did not reply in time")
	ErrRejected       = errors.New("lock vendor rejected the command")
)

type Controller interface {
	Lock(ctx context.Context, deviceID string) error
	Unlock(ctx context.Context, deviceID string) error
	IssueTemporaryCode(ctx context.Context, deviceID string, window domain.TimeWindow) (domain.TemporaryCode, error)
}
