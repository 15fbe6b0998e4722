package server

import "net/http"

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	// Sessions
	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/calendar", s.handleCalendar)
	mux.HandleFunc("POST /api/v1/sessions/{id}/lookup", s.handleLookup)

	// Worker search
	mux.HandleFunc("POST /api/v1/sessions/{id}/search", s.handleSearch)
	mux.HandleFunc("GET /api/v1/sessions/{id}/search", s.handleCurrentPage)
	mux.HandleFunc("POST /api/v1/sessions/{id}/search/next", s.handleNextPage)
	mux.HandleFunc("POST /api/v1/sessions/{id}/search/prev", s.handlePrevPage)
	mux.HandleFunc("GET /api/v1/sessions/{id}/search/preview/{issue}", s.handlePreview)

	// Assignments
	mux.HandleFunc("POST /api/v1/sessions/{id}/assignments", s.handleAddAssignments)
	mux.HandleFunc("POST /api/v1/sessions/{id}/transfer", s.handleTransfer)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/assignments/{issue}", s.handleRemoveAssignment)
	mux.HandleFunc("GET /api/v1/sessions/{id}/assignments/{issue}/description", s.handleDescription)

	// Reports
	mux.HandleFunc("GET /api/v1/sessions/{id}/report", s.handleReport)
	mux.HandleFunc("POST /api/v1/sessions/{id}/report/export", s.handleExportReport)
	mux.HandleFunc("GET /api/v1/reports", s.handleListReports)
	mux.HandleFunc("GET /api/v1/reports/{rid}", s.handleGetReport)

	// Filter lookups, passed through to the issue API
	mux.HandleFunc("GET /api/v1/filters/sites", s.handleSites)
	mux.HandleFunc("GET /api/v1/filters/sites/{index}/subsites", s.handleSubSites)
	mux.HandleFunc("GET /api/v1/filters/subsites/{name}/products", s.handleProducts)
	mux.HandleFunc("POST /api/v1/filters/products", s.handleProductsForSubSites)
}
