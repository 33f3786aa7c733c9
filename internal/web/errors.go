package web

// errors.go maps handler errors to responses.
//
// The technical error is logged with the request ID; the client gets a
// short message in the format it asked for: JSON for the API, an alert
// fragment for script requests, plain text otherwise.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/frondo/internal/manuscript"
	"github.com/JonMunkholm/frondo/internal/session"
	"github.com/JonMunkholm/frondo/internal/web/templates"
)

var (
	errNoFile            = errors.New("no file in form")
	errUnknownDragAction = errors.New("unknown drag action")
)

// ErrorResponse is the JSON body of API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type userMessage struct {
	status  int
	message string
	code    string
}

func mapError(err error) userMessage {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, manuscript.ErrFileTooLarge), errors.As(err, &maxBytes):
		return userMessage{http.StatusRequestEntityTooLarge, "The manuscript is too large to upload.", "FILE_TOO_LARGE"}
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return userMessage{http.StatusBadRequest, "The upload must be sent as a multipart form.", "BAD_REQUEST"}
	case errors.Is(err, errNoFile):
		return userMessage{http.StatusBadRequest, "No file was provided.", "NO_FILE"}
	case errors.Is(err, errUnknownDragAction):
		return userMessage{http.StatusNotFound, "Unknown action.", "NOT_FOUND"}
	case errors.Is(err, session.ErrStoreClosed), errors.Is(err, manuscript.ErrControllerClosed):
		return userMessage{http.StatusServiceUnavailable, "The server is shutting down. Please try again.", "UNAVAILABLE"}
	default:
		return userMessage{http.StatusInternalServerError, "Something went wrong. Please try again.", "INTERNAL"}
	}
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := mapError(err)

	logFromRequest(r).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.status,
		"error", err.Error(),
		"code", msg.code,
	)

	switch {
	case wantsJSON(r):
		writeJSON(w, r, msg.status, ErrorResponse{Error: msg.message, Code: msg.code})
	case isFragmentRequest(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(msg.status)
		templates.ErrorAlert(msg.message).Render(r.Context(), w)
	default:
		http.Error(w, msg.message, msg.status)
	}
}

// writeError writes a message that needs no mapping.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logFromRequest(r).Warn("http error", "status", status, "message", message, "path", r.URL.Path)
	if wantsJSON(r) {
		writeJSON(w, r, status, ErrorResponse{Error: message, Code: strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))})
		return
	}
	http.Error(w, message, status)
}

// isFragmentRequest reports whether the page script made the request and
// expects an HTML fragment.
func isFragmentRequest(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "fetch"
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
