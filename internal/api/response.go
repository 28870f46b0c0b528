package api

import (
	"encoding/json"
	"net/http"

	"github.com/seamark/payrecon/internal/domain"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps the error taxonomy to HTTP status classes. Transient
// dependency failures come out as 500 so webhook senders retry.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.ErrorCode(err) {
	case domain.EINVALID, domain.EAUTH:
		status = http.StatusBadRequest
	case domain.ENOTFOUND:
		status = http.StatusNotFound
	case domain.ECONFLICT:
		status = http.StatusConflict
	case domain.EPAYMENT:
		status = http.StatusBadGateway
	}
	writeError(w, status, domain.ErrorMessage(err))
}
