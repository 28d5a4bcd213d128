package routes

import (
	"errors"
	"net/http"

	"fundtreasury/gateway/middleware"
	"fundtreasury/ledger"
	"fundtreasury/native/treasury"
)

func statusForKind(kind treasury.Kind) int {
	switch kind {
	case treasury.KindAuthorization:
		return http.StatusForbidden
	case treasury.KindNotFound:
		return http.StatusNotFound
	case treasury.KindInvalidInput, treasury.KindZeroDeposit:
		return http.StatusBadRequest
	case treasury.KindStateConflict:
		return http.StatusConflict
	case treasury.KindResourceExhaustion:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if terr, ok := treasury.AsError(err); ok {
		middleware.WriteError(w, statusForKind(terr.Kind), terr.Kind.String(), terr.Code, terr.Error())
		return
	}
	if errors.Is(err, ledger.ErrCommit) {
		middleware.WriteError(w, http.StatusServiceUnavailable, "unavailable", "commit_failed", "operation could not be persisted, retry later")
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	middleware.WriteError(w, http.StatusInternalServerError, "internal", "internal_error", http.StatusText(http.StatusInternalServerError))
}

func badRequest(w http.ResponseWriter, code, message string) {
	middleware.WriteError(w, http.StatusBadRequest, treasury.KindInvalidInput.String(), code, message)
}
