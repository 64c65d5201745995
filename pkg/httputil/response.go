package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/loginoidc/pkg/contextkeys"
)

// ErrorResponse is the JSON body of every error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteCodedError writes a JSON error carrying a machine-readable code and the
// request id from r's context, if any.
func WriteCodedError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: contextkeys.GetRequestID(r.Context()),
	})
}

// WriteInternalError writes a generic 500 without leaking err to the client
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, message)
}

// Redirect issues a 302 Found to target
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
