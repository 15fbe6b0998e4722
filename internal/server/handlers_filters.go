package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/opsboard/issue-calendar/internal/model"
)

func (s *Server) writeItems(w http.ResponseWriter, r *http.Request, items []model.NamedItem, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.NamedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	items, err := s.filters.Sites(r.Context())
	s.writeItems(w, r, items, err)
}

func (s *Server) handleSubSites(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		s.fail(w, r, fmt.Errorf("%w: invalid site index %q", errBadRequest, r.PathValue("index")))
		return
	}
	items, err := s.filters.SubSites(r.Context(), index)
	s.writeItems(w, r, items, err)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		s.fail(w, r, fmt.Errorf("%w: sub-site name is required", errBadRequest))
		return
	}
	items, err := s.filters.Products(r.Context(), name)
	s.writeItems(w, r, items, err)
}

func (s *Server) handleProductsForSubSites(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubSites []string `json:"subsites"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.SubSites) == 0 {
		s.fail(w, r, fmt.Errorf("%w: subsites is required", errBadRequest))
		return
	}
	items, err := s.filters.ProductsForSubSites(r.Context(), req.SubSites)
	s.writeItems(w, r, items, err)
}
