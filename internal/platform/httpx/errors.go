package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

var statusByKind = map[shared.Kind]int{
	shared.KindValidation:          http.StatusBadRequest,
	shared.KindNotFound:            http.StatusNotFound,
	shared.KindInsufficientStock:   http.StatusUnprocessableEntity,
	shared.KindInsufficientBalance: http.StatusUnprocessableEntity,
	shared.KindMissingRelease:      http.StatusForbidden,
	shared.KindConflict:            http.StatusConflict,
}

// StatusFor returns the HTTP status matching err's kind.
func StatusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	if status, ok := statusByKind[shared.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := shared.KindOf(err)
	detail := shared.UserSafeMessage(err)
	if errors.Is(err, errBadRequest) {
		kind = shared.KindValidation
		detail = err.Error()
	}
	JSON(w, status, ProblemDetail{
		Type:   "urn:cargo-ledger:error:" + string(kind),
		Title:  http.StatusText(status),
		Status: status,
		Kind:   string(kind),
		Detail: detail,
	})
}

// Fail logs err at a level matching its status and responds with it.
func Fail(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if StatusFor(err) >= http.StatusInternalServerError {
		logger.Error(op+" failed", slog.Any("error", err))
	} else {
		logger.Warn(op+" rejected", slog.String("kind", string(shared.KindOf(err))), slog.Any("error", err))
	}
	RespondError(w, err)
}
