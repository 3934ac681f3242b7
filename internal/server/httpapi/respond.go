package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/security"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// writeError maps service errors to status codes. Anything unrecognised is
// logged and reported as a bare 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *services.AccountLockedError

	switch {
	case errors.As(err, &locked):
		remaining := security.RemainingLockout(models.Account{LockedUntil: &locked.Until}, h.now())
		w.Header().Set("Retry-After", retryAfter(remaining))
		writeMessage(w, http.StatusLocked, "account locked")
	case errors.Is(err, common.ErrAccountLocked):
		writeMessage(w, http.StatusLocked, "account locked")
	case errors.Is(err, common.ErrorNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrorUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, common.ErrAccountInactive):
		writeMessage(w, http.StatusForbidden, "account inactive")
	case errors.Is(err, common.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "administrator rights required")
	case errors.Is(err, common.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, "email already in use")
	case errors.Is(err, common.ErrLastAdminProtected):
		writeMessage(w, http.StatusConflict, "last active administrator cannot be deactivated or demoted")
	case errors.Is(err, common.ErrWeakPassword):
		writeMessage(w, http.StatusBadRequest, "password does not satisfy policy")
	case errors.Is(err, common.ErrRoleInactive):
		writeMessage(w, http.StatusBadRequest, "role inactive")
	case errors.Is(err, common.ErrorValidation):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrInvalidToken):
		writeMessage(w, http.StatusBadRequest, "invalid token")
	case errors.Is(err, common.ErrTokenExpired):
		writeMessage(w, http.StatusGone, "token expired")
	case errors.Is(err, common.ErrTokenAlreadyUsed):
		writeMessage(w, http.StatusGone, "token already used")
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// retryAfter renders d in whole seconds, rounded up and never below one.
func retryAfter(d time.Duration) string {
	return strconv.Itoa(max(int(math.Ceil(d.Seconds())), 1))
}
