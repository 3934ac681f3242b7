package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

// listAccounts returns every account, or only the active accounts of one
// role when ?role_id is given.
func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Account
		err  error
	)

	if raw := r.URL.Query().Get("role_id"); raw != "" {
		roleID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			writeMessage(w, http.StatusBadRequest, "role_id must be an integer")
			return
		}
		list, err = h.accounts.ListByRole(r.Context(), roleID)
	} else {
		list, err = h.accounts.List(r.Context())
	}

	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountList(list))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.Create(r.Context(), services.NewAccount{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		RoleID:   req.RoleID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.Update(r.Context(), chi.URLParam(r, "id"), services.UpdateAccount{
		Name:   req.Name,
		Email:  req.Email,
		RoleID: req.RoleID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeMessage(w, http.StatusBadRequest, "active is required")
		return
	}

	if err := h.accounts.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// changePassword only lets an account change its own password.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, ok := services.ActorFrom(r.Context())
	if !ok || actor.AccountID != id {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.Unlock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handler) searchAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.SearchByName(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountList(list))
}

func (h *Handler) listLocked(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.ListLocked(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountList(list))
}

func (h *Handler) listFailedAttempts(w http.ResponseWriter, r *http.Request) {
	minCount := 1
	if raw := r.URL.Query().Get("min"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "min must be an integer")
			return
		}
		minCount = n
	}

	list, err := h.accounts.ListWithFailedAttempts(r.Context(), minCount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountList(list))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.accounts.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	url, err := h.exporter.ExportAccounts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{URL: url})
}
