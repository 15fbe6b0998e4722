package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/opsboard/issue-calendar/internal/assignment"
	"github.com/opsboard/issue-calendar/internal/collab"
	"github.com/opsboard/issue-calendar/internal/model"
	"github.com/opsboard/issue-calendar/internal/searchcache"
	"github.com/opsboard/issue-calendar/internal/session"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// fail maps err to a status code and writes it. Remote and internal
// failures are logged and reported with a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *collab.APIError
	var urlErr *url.Error
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrEmptyQuery),
		errors.Is(err, session.ErrInvalidNumber),
		errors.Is(err, searchcache.ErrInvalidPage),
		errors.Is(err, model.ErrMalformedIssue):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, assignment.ErrDuplicate):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, session.ErrUnknownSession),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, searchcache.ErrNoSearch),
		errors.Is(err, collab.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, session.ErrExportDisabled):
		writeError(w, http.StatusNotImplemented, err)
	case errors.As(err, &apiErr), errors.Is(err, collab.ErrUnsuccessful), errors.As(err, &urlErr):
		s.logger.Warn("issue API failure", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, errors.New("issue service unavailable"))
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	n, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, r.PathValue(name))
	}
	return n, nil
}
