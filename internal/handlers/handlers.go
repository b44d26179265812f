package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/sakubank/backend/internal/apperr"
	"github.com/sakubank/backend/internal/services"
)

// writeError maps a domain error onto an HTTP response. Internal errors are
// logged under a correlation id and reported opaquely.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()

	if status == http.StatusInternalServerError {
		correlationID := uuid.New().String()
		log.Printf("[HTTP] Internal error %s: %v", correlationID, err)
		message = "An Internal Error Occurred (ref: " + correlationID + ")"
	}

	services.SendErrorResponse(w, message, status, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody applies the shared strict-decoding policy to a handler request.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
