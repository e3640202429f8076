package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/ssohub/pkg/observability"
)

// ErrorResponse is the JSON body of every API error. RequestID lets an
// operator find the matching log lines.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes data as a 200 response
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteError writes an ErrorResponse carrying the request's ID
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: observability.GetRequestID(r.Context()),
	})
}

// WriteNotFound writes a 404
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, message)
}

// WriteBadRequest writes a 400
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, message)
}

// WriteUnavailable writes a 503. Used when the session registry or a
// backing database cannot be reached.
func WriteUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusServiceUnavailable, message)
}

// WriteInternalError logs err and writes a generic 500. Internal error text
// never reaches the client.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).Error("request failed")
	WriteError(w, r, http.StatusInternalServerError, "internal server error")
}
