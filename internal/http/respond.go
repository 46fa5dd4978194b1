package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/github"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
)

const (
	unexpectedErrorMessage     = "An unexpected error occurred"
	upstreamUnavailableMessage = "GitHub is unavailable, try again later"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// writeMessage acknowledges a command that has no resource to return.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": true, "message": msg})
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are rejected when
// strict is set. An empty body is accepted only when optional is set.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any, strict, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxJSONBody))
	if strict {
		dec.DisallowUnknownFields()
	}
	err := dec.Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeServiceError maps service failures onto status codes. Unrecognised
// errors are logged and masked unless debug output is enabled.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
	case http.StatusBadGateway:
		// Upstream errors carry request URLs and response bodies.
		r.logger.Warn("upstream request failed", "path", req.URL.Path, "method", req.Method, "error", err)
		msg := upstreamUnavailableMessage
		if r.cfg.Debug {
			msg += ": " + err.Error()
		}
		writeError(w, status, msg)
		return
	default:
		writeError(w, status, publicMessage(err))
		return
	}
	r.logger.Error("request failed", "path", req.URL.Path, "method", req.Method, "error", err)
	msg := unexpectedErrorMessage
	if r.cfg.Debug {
		msg += ": " + err.Error()
	}
	writeError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, github.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var sentinelPrefixes = []string{
	repository.ErrNotFound.Error(),
	repository.ErrInvalidArgument.Error(),
	repository.ErrConflict.Error(),
	github.ErrUpstreamUnavailable.Error(),
}

// publicMessage strips sentinel prefixes so clients see the human-readable detail.
func publicMessage(err error) string {
	msg := err.Error()
	for trimmed := true; trimmed; {
		trimmed = false
		for _, prefix := range sentinelPrefixes {
			if strings.HasPrefix(msg, prefix+": ") {
				msg = strings.TrimPrefix(msg, prefix+": ")
				trimmed = true
			}
		}
	}
	switch msg {
	case repository.ErrNotFound.Error():
		return "not found"
	case repository.ErrInvalidArgument.Error():
		return "invalid request"
	case repository.ErrConflict.Error():
		return "conflict"
	case github.ErrUpstreamUnavailable.Error():
		return upstreamUnavailableMessage
	}
	return msg
}
