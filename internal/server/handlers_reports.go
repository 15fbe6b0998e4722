package server

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/opsboard/issue-calendar/internal/model"
	"github.com/opsboard/issue-calendar/internal/session"
)

func writeYAML(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, err := sess.Report().YAML()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeYAML(w, http.StatusOK, data)
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rec, err := sess.ExportReport(r.Context(), s.exporter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	exports, err := s.db.ListReportExports(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if exports == nil {
		exports = []model.ReportExport{}
	}
	writeJSON(w, http.StatusOK, exports)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "rid")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.db.GetReportExport(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, fmt.Errorf("report %d not found", id))
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.reports == nil {
		s.fail(w, r, session.ErrExportDisabled)
		return
	}
	data, err := s.reports.GetReport(r.Context(), rec.ObjectKey)
	if err != nil {
		s.logger.Error("fetch report", "key", rec.ObjectKey, "error", err)
		writeError(w, http.StatusBadGateway, errors.New("report storage unavailable"))
		return
	}
	writeYAML(w, http.StatusOK, data)
}
