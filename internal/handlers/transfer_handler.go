package handlers

import (
	"net/http"

	"github.com/sakubank/backend/internal/services"
)

type TransferHandler struct {
	transfers *services.TransferService
	accounts  *services.AccountService
	validator *services.ValidationHelper
}

func NewTransferHandler(transfers *services.TransferService, accounts *services.AccountService) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		accounts:  accounts,
		validator: services.NewValidationHelper(),
	}
}

// Transfer executes an intrabank transfer
// @Summary Transfer funds
// @Description Move funds to a saved destination, authorized by PIN
// @Tags transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.TransferRequest true "Transfer request"
// @Success 200 {object} models.TransferView
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req services.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	view, err := h.transfers.Transfer(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetProfile returns the caller's profile
// @Summary Get profile
// @Description Return the authenticated user's profile and balance
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} services.ErrorResponse
// @Router /account/profile [get]
func (h *TransferHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	user, err := h.accounts.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetBalance returns the caller's balance
// @Summary Balance enquiry
// @Description Return the authenticated user's current balance
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{accountNumber=string,balance=int64}
// @Failure 401 {object} services.ErrorResponse
// @Router /account/balance [get]
func (h *TransferHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	user, err := h.accounts.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountNumber": user.AccountNumber,
		"balance":       user.Balance,
	})
}

// ListDestinations returns saved transfer destinations
// @Summary List destinations
// @Description Return the caller's saved transfer destinations
// @Tags destinations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Destination
// @Failure 401 {object} services.ErrorResponse
// @Router /destinations [get]
func (h *TransferHandler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	destinations, err := h.accounts.ListDestinations(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, destinations)
}

// AddDestination saves a transfer destination
// @Summary Add destination
// @Description Save an account number as a transfer destination
// @Tags destinations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{accountNumber=string} true "Destination account"
// @Success 201 {object} models.Destination
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /destinations [post]
func (h *TransferHandler) AddDestination(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		AccountNumber string `json:"accountNumber" validate:"required,accnum"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	destination, err := h.accounts.AddDestination(r.Context(), userID, req.AccountNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, destination)
}
