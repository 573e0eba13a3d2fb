package http

import (
	"errors"
	"net/http"

	"github.com/developer387/doorbell-app-sub000/internal/call"
	"github.com/developer387/doorbell-app-sub000/internal/lockvendor"
	"github.com/developer387/doorbell-app-sub000/internal/repository"
	"github.com/developer387/doorbell-app-sub000/internal/service"
	"github.com/developer387/doorbell-app-sub000/internal/signaling"
	"github.com/gin-gonic/gin"
)

var (
	notFoundErrors = []error{
		repository.ErrCallNotFound,
		repository.ErrPropertyNotFound,
		repository.ErrGuestNotFound,
		repository.ErrLockNotFound,
		lockvendor.ErrDeviceNotFound,
	}
	conflictErrors = []error{
		signaling.ErrCallTerminal,
		signaling.ErrAnswerAlreadySet,
		signaling.ErrOfferAlreadySet,
		service.ErrCallNotConnected,
		service.ErrCallClosed,
		service.ErrPINInUse,
		service.ErrPINsExhausted,
	}
	forbiddenErrors = []error{
		service.ErrRoleNotAllowed,
		service.ErrStatusNotAllowed,
		service.ErrLockNotAuthorized,
		service.ErrLockNotShared,
		service.ErrGuestWrongProperty,
	}
	badRequestErrors = []error{
		signaling.ErrMissingOffer,
		signaling.ErrMissingAnswer,
		signaling.ErrInvalidStatus,
		signaling.ErrInvalidRole,
		service.ErrCandidateRequired,
		service.ErrUnsupportedSignal,
		service.ErrMessageRequired,
		service.ErrPropertyIDRequired,
		service.ErrNameRequired,
		service.ErrOwnerRequired,
		service.ErrInvalidMasterPIN,
		service.ErrInvalidGuestPIN,
		service.ErrDeviceIDRequired,
		service.ErrGuestRequired,
		service.ErrInvalidWindow,
	}
	vendorErrors = []error{
		lockvendor.ErrTimeout,
		lockvendor.ErrRejected,
	}
)

func matches(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps a service error to an HTTP status and the message shown
// to clients. Anything unexpected is reported as a generic connection
// failure so visitors are told to retry rather than shown internals.
func statusFor(err error) (int, string) {
	switch {
	case matches(err, notFoundErrors):
		return http.StatusNotFound, err.Error()
	case matches(err, conflictErrors):
		return http.StatusConflict, err.Error()
	case matches(err, forbiddenErrors):
		return http.StatusForbidden, err.Error()
	case matches(err, badRequestErrors):
		return http.StatusBadRequest, err.Error()
	case matches(err, vendorErrors):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, call.ErrConnectionFailed.Error()
	}
}

func respondError(ctx *gin.Context, err error) {
	status, message := statusFor(err)
	ctx.JSON(status, gin.H{"error": message})
}
