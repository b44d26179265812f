package handlers

import (
	"net/http"

	"github.com/sakubank/backend/internal/services"
)

type QrisHandler struct {
	service   *services.QrisService
	validator *services.ValidationHelper
}

func NewQrisHandler(service *services.QrisService) *QrisHandler {
	return &QrisHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Redeem pays a scanned QRIS payload
// @Summary Redeem QRIS
// @Description Interpret a scanned payload and execute the payment
// @Tags QRIS
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.RedeemRequest true "Redemption request"
// @Success 200 {object} services.RedeemResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /qris/redeem [post]
func (h *QrisHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req services.RedeemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	result, err := h.service.Redeem(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GenerateMPM builds a receive code
// @Summary Generate receive code
// @Description Generate a merchant-presented payload for receiving money
// @Tags QRIS
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64} true "Optional fixed amount"
// @Success 200 {object} services.GeneratedPayload
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /qris/mpm [post]
func (h *QrisHandler) GenerateMPM(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount int64 `json:"amount" validate:"omitempty,gte=0"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	payload, err := h.service.GenerateMPM(r.Context(), userID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// GenerateCPM builds a customer-presented code
// @Summary Generate payment code
// @Description Generate a short-lived customer-presented payload for POS scanning
// @Tags QRIS
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{pin=string} true "Transaction PIN"
// @Success 200 {object} services.GeneratedPayload
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /qris/cpm [post]
func (h *QrisHandler) GenerateCPM(w http.ResponseWriter, r *http.Request) {
	userID, ok := services.AuthenticatedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		PIN string `json:"pin" validate:"required,pin"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	payload, err := h.service.GenerateCPM(r.Context(), userID, req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
