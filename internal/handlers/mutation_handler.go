package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sakubank/backend/internal/services"
)

type MutationHandler struct {
	service *services.MutationService
}

func NewMutationHandler(service *services.MutationService) *MutationHandler {
	return &MutationHandler{service: service}
}

// ListMutations returns the caller's mutation history
// @Summary List mutations
// @Description Return the caller's ledger entries, newest first
// @Tags mutations
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size, capped at 100"
// @Success 200 {array} models.Mutation
// @Failure 401 {object} services.ErrorResponse
// @Router /mutations [get]
func (h *MutationHandler) ListMutations(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	mutations, err := h.service.ListRecent(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutations)
}

// GetMutation returns the detail of one ledger entry
// @Summary Get mutation detail
// @Description Return the kind-shaped detail of a single ledger entry
// @Tags mutations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Mutation ID"
// @Success 200 {object} models.MutationDetail
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /mutations/{id} [get]
func (h *MutationHandler) GetMutation(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entryID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || entryID <= 0 {
		services.SendErrorResponse(w, "Invalid mutation id", http.StatusBadRequest, nil)
		return
	}

	detail, err := h.service.GetDetails(r.Context(), entryID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
