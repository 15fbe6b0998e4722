package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opsboard/issue-calendar/internal/assignment"
	"github.com/opsboard/issue-calendar/internal/model"
	"github.com/opsboard/issue-calendar/internal/searchcache"
	"github.com/opsboard/issue-calendar/internal/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

type sessionResponse struct {
	ID       string               `json:"id"`
	Calendar session.CalendarView `json:"calendar"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID(), Calendar: sess.Calendar()})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Calendar())
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Number string `json:"number"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := sess.LookupNumber(r.Context(), req.Number)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type pageResponse struct {
	Worker      string        `json:"worker"`
	Page        int           `json:"page"`
	SearchRange string        `json:"search_range"`
	Issues      []model.Issue `json:"issues"`
	CachedAt    string        `json:"cached_at"`
}

func newPageResponse(e *searchcache.Entry) pageResponse {
	return pageResponse{
		Worker:      e.Worker,
		Page:        e.Page,
		SearchRange: e.SearchRange,
		Issues:      e.Issues,
		CachedAt:    e.Timestamp.Format(time.RFC3339),
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Worker string `json:"worker"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	entry, err := sess.SearchWorker(r.Context(), req.Worker)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(entry))
}

func (s *Server) handleCurrentPage(w http.ResponseWriter, r *http.Request) {
	s.pageHandler(w, r, (*session.Session).CurrentPage)
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request) {
	s.pageHandler(w, r, (*session.Session).NextPage)
}

func (s *Server) handlePrevPage(w http.ResponseWriter, r *http.Request) {
	s.pageHandler(w, r, (*session.Session).PrevPage)
}

func (s *Server) pageHandler(w http.ResponseWriter, r *http.Request, move func(*session.Session, context.Context) (*searchcache.Entry, error)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	entry, err := move(sess, r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(entry))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, err := pathInt64(r, "issue")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	window, err := sess.Preview(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func (s *Server) handleAddAssignments(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	added, err := sess.AddFromResults(req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"added":    added,
		"calendar": sess.Calendar(),
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, r, errBadRequest)
		return
	}
	payload, err := assignment.DecodePayload(data)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := sess.Transfer(payload); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Calendar())
}

func (s *Server) handleRemoveAssignment(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, err := pathInt64(r, "issue")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	removed := sess.Remove(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed":  removed,
		"calendar": sess.Calendar(),
	})
}

func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, err := pathInt64(r, "issue")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := sess.Description(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
